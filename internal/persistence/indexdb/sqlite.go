package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"agentkernel.ai/internal/catalog"
	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/protocol"
)

// SQLiteIndex is a queryable secondary index of kernel runs. Writes are
// queued and applied by a single writer goroutine; the zstd JSONL logs stay
// the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTelemetry atomic.Uint64
	dropPlan      atomic.Uint64
	dropLedger    atomic.Uint64
	dropSnapshot  atomic.Uint64
}

type reqKind int

const (
	reqTelemetry reqKind = iota + 1
	reqPlan
	reqLedger
	reqSnapshot
)

type req struct {
	kind reqKind

	telemetry protocol.TelemetryRecord
	plan      planRow
	ledger    ledgerRow
	snapshot  snapshotRow
}

type planRow struct {
	RunID      string
	PlanRef    string
	Tick       uint64
	Selections []model.Selection
}

type ledgerRow struct {
	RunID  string
	Tick   uint64
	Ledger protocol.BudgetLedgerArtifact
}

type snapshotRow struct {
	RunID string
	Tick  uint64
	Path  string
}

type Stats struct {
	DropTelemetryTotal uint64 `json:"drop_telemetry_total"`
	DropPlanTotal      uint64 `json:"drop_plan_total"`
	DropLedgerTotal    uint64 `json:"drop_ledger_total"`
	DropSnapshotTotal  uint64 `json:"drop_snapshot_total"`
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			config_digest TEXT NOT NULL,
			config_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS telemetry (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			persona TEXT NOT NULL,
			event TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_persona_tick ON telemetry(persona, tick);`,
		`CREATE TABLE IF NOT EXISTS selections (
			run_id TEXT NOT NULL,
			plan_ref TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			applied_id TEXT,
			unit_cost REAL NOT NULL,
			requested INTEGER NOT NULL,
			approved INTEGER NOT NULL,
			PRIMARY KEY (run_id, plan_ref, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS spend_events (
			run_id TEXT NOT NULL,
			ledger_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			item_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			quantity REAL NOT NULL,
			unit_cost REAL NOT NULL,
			total_cost REAL NOT NULL,
			remaining REAL NOT NULL,
			PRIMARY KEY (run_id, ledger_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropTelemetryTotal: s.dropTelemetry.Load(),
		DropPlanTotal:      s.dropPlan.Load(),
		DropLedgerTotal:    s.dropLedger.Load(),
		DropSnapshotTotal:  s.dropSnapshot.Load(),
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTelemetry(rec protocol.TelemetryRecord) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTelemetry, telemetry: rec}, &s.dropTelemetry)
	return nil
}

// RecordPlan indexes the selections of one drafted plan.
func (s *SQLiteIndex) RecordPlan(runID, planRef string, tick uint64, sels []model.Selection) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqPlan, plan: planRow{RunID: runID, PlanRef: planRef, Tick: tick, Selections: model.CloneSelections(sels)}}, &s.dropPlan)
}

func (s *SQLiteIndex) RecordLedger(runID string, tick uint64, l protocol.BudgetLedgerArtifact) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqLedger, ledger: ledgerRow{RunID: runID, Tick: tick, Ledger: l}}, &s.dropLedger)
}

func (s *SQLiteIndex) RecordSnapshot(runID string, tick uint64, path string) {
	if s == nil || path == "" {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{RunID: runID, Tick: tick, Path: path}}, &s.dropSnapshot)
}

// UpsertRun stores the run row plus the catalog and config it ran with. It
// writes synchronously.
func (s *SQLiteIndex) UpsertRun(runID string, cat *catalog.Catalog, config any) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(cfgJSON)
	cfgDigest := hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO runs(run_id,started_at,config_digest,config_json) VALUES(?,?,?,?)`,
		runID, now, cfgDigest, string(cfgJSON)); err != nil {
		return err
	}
	if cat != nil {
		b, err := json.Marshal(cat.Entries)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
			"pool_catalog", cat.Digest, string(b), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTelemetry, _ := s.db.Prepare(`INSERT OR REPLACE INTO telemetry(run_id,seq,tick,persona,event,from_state,to_state,error,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSelection, _ := s.db.Prepare(`INSERT OR REPLACE INTO selections(run_id,plan_ref,seq,tick,source,kind,applied_id,unit_cost,requested,approved) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSpend, _ := s.db.Prepare(`INSERT OR REPLACE INTO spend_events(run_id,ledger_id,seq,tick,item_id,kind,quantity,unit_cost,total_cost,remaining) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path) VALUES(?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTelemetry, insertSelection, insertSpend, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		telemetrySeq = map[string]int{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTelemetry:
			t := r.telemetry
			seq := telemetrySeq[t.RunID]
			telemetrySeq[t.RunID] = seq + 1
			raw, _ := json.Marshal(t)
			exec(insertTelemetry, t.RunID, seq, int64(t.Tick), t.Persona, t.Event, t.From, t.To, t.Error, string(raw))

		case reqPlan:
			p := r.plan
			for i, sel := range p.Selections {
				if !exec(insertSelection, p.RunID, p.PlanRef, i, int64(p.Tick), sel.Source, sel.Kind,
					sel.Applied.ID, sel.Applied.Cost, sel.Requested.Count, sel.ApprovedCount) {
					break
				}
			}

		case reqLedger:
			l := r.ledger
			id := l.Ledger.Meta.ID
			if id == "" {
				id = protocol.UnknownID
			}
			for i, ev := range l.Ledger.SpendEvents {
				if !exec(insertSpend, l.RunID, id, i, int64(l.Tick), ev.ID, ev.Kind, ev.Quantity, ev.UnitCost, ev.TotalCost, l.Ledger.Remaining) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.RunID, int64(sn.Tick), sn.Path)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
