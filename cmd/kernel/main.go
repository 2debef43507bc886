package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"agentkernel.ai/internal/catalog"
	"agentkernel.ai/internal/engine/wasm"
	"agentkernel.ai/internal/kernel"
	"agentkernel.ai/internal/persistence/archive"
	"agentkernel.ai/internal/persistence/indexdb"
	persistlog "agentkernel.ai/internal/persistence/log"
	"agentkernel.ai/internal/persistence/snapshot"
	"agentkernel.ai/internal/persona/director"
	"agentkernel.ai/internal/prompt"
	"agentkernel.ai/internal/selection"
	"agentkernel.ai/internal/transport/ws"
	"agentkernel.ai/internal/tuning"
)

func main() {
	var (
		tuningPath   = flag.String("tuning", "", "path to kernel.yaml (empty for defaults)")
		catalogPath  = flag.String("catalog", "", "pool catalog json (optional)")
		loadoutsPath = flag.String("loadouts", "", "motivation loadouts json (optional)")
		receiptPath  = flag.String("receipt", "", "budget receipt artifact json (optional; derived from the plan when empty)")
		responsePath = flag.String("response", "", "language model reply to draft from")
		goal         = flag.String("goal", "", "build goal for the menu prompt")
		wasmPath     = flag.String("engine", "", "simulation engine wasm module (optional)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		runID        = flag.String("run", "", "run id (default: random)")
		snapPath     = flag.String("snapshot", "", "snapshot to resume from (default: latest for -run)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite run index")
		listen       = flag.String("listen", "", "telemetry http listen address, e.g. 127.0.0.1:8081 (empty to disable)")
		hold         = flag.Bool("hold", false, "keep serving telemetry after the run finishes")
		printPrompt  = flag.Bool("print_prompt", false, "print the menu prompt and exit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[kernel] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	promptCtx := prompt.Context{Goal: *goal, BudgetTokens: int(tune.BudgetTokens)}
	if *printPrompt {
		fmt.Print(prompt.BuildMenuPrompt(promptCtx))
		return
	}

	var cat *catalog.Catalog
	if strings.TrimSpace(*catalogPath) != "" {
		cat, err = catalog.Load(*catalogPath)
		if err != nil {
			logger.Fatalf("load catalog: %v", err)
		}
		logger.Printf("catalog entries=%d digest=%s", len(cat.Entries), cat.Digest)
	}
	loadouts, err := loadLoadouts(*loadoutsPath)
	if err != nil {
		logger.Fatalf("load loadouts: %v", err)
	}
	receipt, err := loadReceipt(*receiptPath)
	if err != nil {
		logger.Fatalf("load receipt: %v", err)
	}
	response, err := loadResponse(*responsePath)
	if err != nil {
		logger.Fatalf("load response: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var solver kernel.Solver
	if strings.TrimSpace(*wasmPath) != "" {
		eng, err := wasm.Load(ctx, *wasmPath)
		if err != nil {
			logger.Fatalf("load engine: %v", err)
		}
		defer eng.Close(context.Background())
		solver = eng
	}

	cfg := kernel.Config{
		RunID:         strings.TrimSpace(*runID),
		Prompt:        promptCtx,
		DirectorEvery: uint64(tune.DirectorEveryTicks),
		Director: director.Config{
			Catalog:  cat,
			Loadouts: loadouts,
			Selection: selection.Options{
				DefaultAffinity: tune.DefaultAffinity,
				ActorVitals:     tune.Vitals(),
			},
			BudgetTokens: tune.Budget(),
		},
		Receipt: receipt,
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, "runs", cfg.RunID)

	logDir := runDir
	if dir := strings.TrimSpace(tune.Telemetry.Dir); dir != "" {
		logDir = filepath.Join(dir, cfg.RunID)
	}
	telemetryLog := persistlog.NewTelemetryLogger(logDir)
	defer telemetryLog.Close()
	ledgerLog := persistlog.NewLedgerLogger(logDir)
	defer ledgerLog.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertRun(cfg.RunID, cat, tune); err != nil {
			logger.Printf("index: upsert run: %v", err)
		}
	}

	sinks := []kernel.TelemetrySink{telemetryLog}
	if idx != nil {
		sinks = append(sinks, idx)
	}

	var hub *ws.Server
	if addr := strings.TrimSpace(*listen); addr != "" {
		hub = ws.NewServer(cfg.RunID, logger)
		hub.QueueSize = tune.Telemetry.BroadcastBuffer
		sinks = append(sinks, hub)
	}

	deps := kernel.Deps{
		Generator: kernel.StaticGenerator(response),
		Solver:    solver,
		Telemetry: sinks,
		Ledger:    ledgerLog,
	}
	if idx != nil {
		deps.Index = idx
	}
	k := kernel.New(cfg, deps)
	if hub != nil {
		srv := startHTTP(ctx, strings.TrimSpace(*listen), hub, k.RunID(), idx, logger)
		defer srv.Close()
	}

	resume := strings.TrimSpace(*snapPath)
	if resume == "" && strings.TrimSpace(*runID) != "" {
		resume = latestSnapshot(runDir)
	}
	if resume != "" {
		snap, err := snapshot.ReadSnapshot(resume)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := k.Restore(snap); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(resume), snap.Header.Tick)
	}

	logger.Printf("run=%s tick_limit=%d director_every=%d", k.RunID(), tune.TickLimit, tune.DirectorEveryTicks)
	started := time.Now()
	var rep kernel.StepReport
	for i := 0; i < tune.TickLimit && !k.Done(); i++ {
		rep, err = k.Step(ctx)
		if err != nil {
			break
		}
		if every := tune.Telemetry.SnapshotEveryTicks; every > 0 && rep.Tick%uint64(every) == 0 {
			writeSnapshot(runDir, k, idx, logger)
		}
	}
	path := writeSnapshot(runDir, k, idx, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Printf("interrupted at tick %d; snapshot=%s", rep.Tick, path)
			return
		}
		logger.Fatalf("step: %v", err)
	}

	if path != "" {
		if dst, ok, err := archive.ArchivePlanSnapshot(runDir, path, k.Snapshot()); err != nil {
			logger.Printf("archive: %v", err)
		} else if ok {
			logger.Printf("archived plan snapshot=%s", dst)
		}
	}

	d := k.Director()
	logger.Printf("plan=%s state=%s ticks=%d elapsed=%s", d.PlanRef, d.State, rep.Tick, time.Since(started).Round(time.Millisecond))
	logger.Printf("selections=%d requested=%s approved=%s missing=%d",
		len(d.Selections), humanize.Commaf(d.TotalRequested), humanize.Commaf(d.TotalApproved), len(d.Missing))
	if l := k.Ledger(); l != nil {
		logger.Printf("ledger spend_events=%d remaining=%s", len(l.SpendEvents), humanize.Commaf(l.Remaining))
	}
	if !k.Done() {
		logger.Printf("tick limit reached before the plan was finalized")
	}

	if *hold && hub != nil {
		logger.Printf("holding for observers; ctrl-c to exit")
		<-ctx.Done()
	}
}

func writeSnapshot(runDir string, k *kernel.Kernel, idx *indexdb.SQLiteIndex, logger *log.Logger) string {
	snap := k.Snapshot()
	path := filepath.Join(runDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return ""
	}
	if fi, err := os.Stat(path); err == nil {
		logger.Printf("snapshot tick=%d size=%s", snap.Header.Tick, humanize.Bytes(uint64(fi.Size())))
	}
	if idx != nil {
		idx.RecordSnapshot(k.RunID(), snap.Header.Tick, path)
	}
	return path
}

func startHTTP(ctx context.Context, addr string, hub *ws.Server, runID string, idx *indexdb.SQLiteIndex, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP agentkernel_telemetry_subscribers Connected telemetry observers.\n")
		fmt.Fprintf(rw, "# TYPE agentkernel_telemetry_subscribers gauge\n")
		fmt.Fprintf(rw, "agentkernel_telemetry_subscribers{run=%q} %d\n", runID, hub.Subscribers())
		fmt.Fprintf(rw, "# HELP agentkernel_telemetry_dropped_total Records dropped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE agentkernel_telemetry_dropped_total counter\n")
		fmt.Fprintf(rw, "agentkernel_telemetry_dropped_total{run=%q} %d\n", runID, hub.Dropped())
		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP agentkernel_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE agentkernel_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "agentkernel_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP agentkernel_index_dropped_total Index writes dropped under backpressure.\n")
			fmt.Fprintf(rw, "# TYPE agentkernel_index_dropped_total counter\n")
			fmt.Fprintf(rw, "agentkernel_index_dropped_total{kind=%q} %d\n", "telemetry", st.DropTelemetryTotal)
			fmt.Fprintf(rw, "agentkernel_index_dropped_total{kind=%q} %d\n", "plan", st.DropPlanTotal)
			fmt.Fprintf(rw, "agentkernel_index_dropped_total{kind=%q} %d\n", "ledger", st.DropLedgerTotal)
			fmt.Fprintf(rw, "agentkernel_index_dropped_total{kind=%q} %d\n", "snapshot", st.DropSnapshotTotal)
		}
	})
	mux.HandleFunc("/v1/telemetry", hub.WSHandler())
	mux.HandleFunc("/v1/telemetry/bootstrap", hub.BootstrapHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()
	go func() {
		logger.Printf("telemetry listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
		}
	}()
	return srv
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
