// Package kernel drives the personas through a run. It owns every persona
// snapshot and is the only writer; callers step it from one goroutine.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agentkernel.ai/internal/budget"
	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/persistence/snapshot"
	"agentkernel.ai/internal/persona"
	"agentkernel.ai/internal/persona/actor"
	"agentkernel.ai/internal/persona/allocator"
	"agentkernel.ai/internal/persona/annotator"
	"agentkernel.ai/internal/persona/director"
	"agentkernel.ai/internal/persona/fsm"
	"agentkernel.ai/internal/persona/moderator"
	"agentkernel.ai/internal/prompt"
	"agentkernel.ai/internal/protocol"
)

const Producer = "agent-kernel"

var (
	ErrNoGenerator   = errors.New("kernel: no generator configured")
	ErrDraftRejected = errors.New("kernel: model reply did not yield a summary")
)

// Generator asks a language model for a summary.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Solver checks a staged plan. The simulation engine is one.
type Solver interface {
	Solve(ctx context.Context, req any) (any, error)
}

// Ticker is implemented by solvers that also want every moderator tick.
type Ticker interface {
	Tick(ctx context.Context, tick uint64, planRef string) (any, error)
}

type TelemetrySink interface {
	WriteTelemetry(rec protocol.TelemetryRecord) error
}

type LedgerSink interface {
	WriteLedger(l protocol.BudgetLedgerArtifact) error
}

type Indexer interface {
	RecordPlan(runID, planRef string, tick uint64, sels []model.Selection)
	RecordLedger(runID string, tick uint64, l protocol.BudgetLedgerArtifact)
}

// StaticGenerator replies with the same text every time, e.g. a saved model reply.
type StaticGenerator string

func (g StaticGenerator) Generate(context.Context, string) (string, error) { return string(g), nil }

type Config struct {
	RunID     string
	IntentRef string
	Prompt    prompt.Context

	DirectorEvery uint64
	// MaxRevisions bounds how many drafts a solver may ask for.
	MaxRevisions     int
	MaxDraftAttempts int

	Director director.Config
	// Receipt prices the final ledger. Nil derives one from the plan.
	Receipt *protocol.BudgetReceiptArtifact
	Clock   fsm.Clock
}

type Deps struct {
	Generator Generator
	Solver    Solver
	Telemetry []TelemetrySink
	Ledger    LedgerSink
	Index     Indexer
}

type StepReport struct {
	Tick     uint64    `json:"tick"`
	Director fsm.State `json:"director"`
	Done     bool      `json:"done"`
}

type Kernel struct {
	cfg  Config
	deps Deps
	mod  *moderator.Moderator
	dir  *director.Director

	moderator moderator.Snapshot
	director  director.Snapshot
	allocator fsm.Snapshot
	annotator fsm.Snapshot
	actor     fsm.Snapshot

	ledger        *protocol.BudgetLedgerArtifact
	observations  []string
	tickObs       []string
	lastResponse  string
	lastResult    any
	draftAttempts int
	forwarded     *director.SolverRequest
	done          bool
}

func New(cfg Config, deps Deps) *Kernel {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.IntentRef == "" {
		cfg.IntentRef = cfg.RunID + "/intent"
	}
	if cfg.MaxRevisions <= 0 {
		cfg.MaxRevisions = 3
	}
	if cfg.MaxDraftAttempts <= 0 {
		cfg.MaxDraftAttempts = 3
	}
	k := &Kernel{
		cfg:  cfg,
		deps: deps,
		mod:  moderator.New(moderator.Config{DirectorEvery: cfg.DirectorEvery}, cfg.Clock),
		dir:  director.New(cfg.Director, cfg.Clock),
	}
	k.moderator = k.mod.Start()
	k.director = k.dir.Start()
	k.allocator = allocator.Start(cfg.Clock)
	k.annotator = annotator.Start(cfg.Clock)
	k.actor = actor.Start(cfg.Clock)
	return k
}

func (k *Kernel) RunID() string                          { return k.cfg.RunID }
func (k *Kernel) Done() bool                             { return k.done }
func (k *Kernel) Director() director.Snapshot            { return k.director }
func (k *Kernel) Moderator() moderator.Snapshot          { return k.moderator }
func (k *Kernel) Allocator() fsm.Snapshot                { return k.allocator }
func (k *Kernel) Annotator() fsm.Snapshot                { return k.annotator }
func (k *Kernel) Ledger() *protocol.BudgetLedgerArtifact { return k.ledger }

// Run steps until the plan is finalized or maxTicks ticks have passed.
func (k *Kernel) Run(ctx context.Context, maxTicks int) (StepReport, error) {
	if maxTicks <= 0 {
		return k.report(), fmt.Errorf("kernel: maxTicks must be > 0")
	}
	rep := k.report()
	for i := 0; i < maxTicks && !k.done; i++ {
		var err error
		rep, err = k.Step(ctx)
		if err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Step advances the moderator by one tick and lets the director take a step
// when signalled.
func (k *Kernel) Step(ctx context.Context) (StepReport, error) {
	if err := ctx.Err(); err != nil {
		return k.report(), err
	}
	if k.done {
		return k.report(), nil
	}
	k.tickObs = k.tickObs[:0]

	if k.moderator.State == moderator.Idle {
		if _, err := k.advanceModerator(moderator.EventStart, fsm.Payload{"intentRef": k.cfg.IntentRef}); err != nil {
			return k.report(), err
		}
	}
	clock, err := k.clockPayload()
	if err != nil {
		return k.report(), err
	}
	res, err := k.advanceModerator(moderator.EventTick, clock)
	if err != nil {
		return k.report(), err
	}

	if t, ok := k.deps.Solver.(Ticker); ok {
		if _, err := t.Tick(ctx, k.moderator.Tick, k.director.PlanRef); err != nil {
			return k.report(), fmt.Errorf("engine tick %d: %w", k.moderator.Tick, err)
		}
		k.tickObs = append(k.tickObs, "engine:tick")
	}

	for _, a := range res.Actions {
		if a.Kind != moderator.ActionSignalDirector {
			continue
		}
		if err := k.stepDirector(ctx); err != nil {
			return k.report(), err
		}
	}

	if err := k.record(); err != nil {
		return k.report(), err
	}
	if k.done {
		if err := k.finish(); err != nil {
			return k.report(), err
		}
	}
	return k.report(), nil
}

func (k *Kernel) report() StepReport {
	return StepReport{Tick: k.moderator.Tick, Director: k.director.State, Done: k.done}
}

func (k *Kernel) stepDirector(ctx context.Context) error {
	switch k.director.State {
	case director.Idle:
		if _, err := k.advanceDirector(director.EventIntake, fsm.Payload{"intentRef": k.cfg.IntentRef}); err != nil {
			return err
		}
		return k.advanceFSM(allocator.Machine, &k.allocator, allocator.EventBudget, nil)

	case director.Intake:
		return k.draft(ctx, nil)

	case director.Drafting:
		res, err := k.advanceDirector(director.EventRequestSolver, nil)
		if err != nil {
			return err
		}
		k.lastResult = k.solve(ctx, res.Snapshot.LastSolverRequest)
		return nil

	case director.AwaitingSolver:
		_, err := k.advanceDirector(director.EventSolverResult, fsm.Payload{"result": k.lastResult})
		return err

	case director.Refining:
		if limit, ok := redraftBudget(k.lastResult); ok && k.director.Revision < k.cfg.MaxRevisions {
			return k.draft(ctx, &limit)
		}
		if _, err := k.advanceDirector(director.EventFinalize, nil); err != nil {
			return err
		}
		k.done = true
	}
	return nil
}

func (k *Kernel) solve(ctx context.Context, req *director.SolverRequest) any {
	if k.deps.Solver == nil {
		return map[string]any{"status": "unsolved"}
	}
	out, err := k.deps.Solver.Solve(ctx, req)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	if out == nil {
		return map[string]any{"status": "ok"}
	}
	return out
}

// redraftBudget reads a solver verdict of the form {"budgetTokens": n}.
func redraftBudget(result any) (float64, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return 0, false
	}
	n, ok := protocol.Number(m["budgetTokens"])
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

// draft asks the generator for a reply, or reuses the last accepted one on a
// solver-requested redraft, and runs it through draft_plan.
func (k *Kernel) draft(ctx context.Context, limit *float64) error {
	text := k.lastResponse
	if limit == nil || text == "" {
		if k.deps.Generator == nil {
			return ErrNoGenerator
		}
		var err error
		text, err = k.deps.Generator.Generate(ctx, prompt.BuildMenuPrompt(k.cfg.Prompt))
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
	}
	p := fsm.Payload{"response": text}
	if limit != nil {
		p["budgetTokens"] = *limit
	}
	res, err := k.advanceDirector(director.EventDraftPlan, p)
	if errors.Is(err, fsm.ErrGuardRejected) {
		k.draftAttempts++
		if k.draftAttempts >= k.cfg.MaxDraftAttempts {
			return fmt.Errorf("%w after %d attempts", ErrDraftRejected, k.draftAttempts)
		}
		return nil
	}
	if err != nil {
		return err
	}
	k.lastResponse = text
	if k.deps.Index != nil {
		k.deps.Index.RecordPlan(k.cfg.RunID, res.Snapshot.PlanRef, k.moderator.Tick, res.Snapshot.Selections)
	}
	return k.allocate(res.Output)
}

// allocate walks the allocator through a drafted plan: one budget line per
// approved selection, then a rebalance when the enforcer trimmed anything.
func (k *Kernel) allocate(out persona.Output) error {
	if k.allocator.State == allocator.Budgeting {
		budgets := []any{}
		for _, s := range k.director.Selections {
			if s.ApprovedCount > 0 {
				budgets = append(budgets, map[string]any{"id": s.ItemID(), "cost": s.Applied.Cost * float64(s.ApprovedCount)})
			}
		}
		err := k.advanceFSM(allocator.Machine, &k.allocator, allocator.EventAllocate, fsm.Payload{"budgets": budgets})
		if errors.Is(err, fsm.ErrGuardRejected) {
			// Nothing was approved; the allocator waits for the next draft.
			return nil
		}
		if err != nil {
			return err
		}
		if err := k.advanceFSM(allocator.Machine, &k.allocator, allocator.EventMonitor, nil); err != nil {
			return err
		}
	}
	signals := []any{}
	for _, a := range out.Actions {
		if a.Kind == budget.ActionDownTierOrDrop {
			signals = append(signals, map[string]any{"id": a.ID, "amountTrimmed": a.Payload["amountTrimmed"]})
		}
	}
	if len(signals) == 0 || k.allocator.State != allocator.Monitoring {
		return nil
	}
	if err := k.advanceFSM(allocator.Machine, &k.allocator, allocator.EventRebalance, fsm.Payload{"signals": signals}); err != nil {
		return err
	}
	return k.advanceFSM(allocator.Machine, &k.allocator, allocator.EventMonitor, nil)
}

// finish settles the ledger, summarizes the run and stops the clock.
func (k *Kernel) finish() error {
	receipt := k.receipt()
	spend := make([]protocol.SpendRequest, 0, len(k.director.Selections))
	for _, s := range k.director.Selections {
		if s.ApprovedCount == 0 {
			continue
		}
		spend = append(spend, protocol.SpendRequest{ID: s.ItemID(), Kind: s.Kind, Quantity: float64(s.ApprovedCount)})
	}
	meta := k.meta("ledger")
	l := budget.UpdateLedger(receipt, spend, &meta, nil).Ledger
	k.ledger = &l
	if k.deps.Ledger != nil {
		if err := k.deps.Ledger.WriteLedger(l); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	if k.deps.Index != nil {
		k.deps.Index.RecordLedger(k.cfg.RunID, k.moderator.Tick, l)
	}

	k.tickObs = k.tickObs[:0]
	obs := make([]any, 0, len(k.observations))
	for _, o := range k.observations {
		obs = append(obs, o)
	}
	if k.annotator.State == annotator.Recording {
		if err := k.advanceFSM(annotator.Machine, &k.annotator, annotator.EventSummarize, fsm.Payload{"observations": obs}); err != nil {
			return err
		}
	}
	clock, err := k.clockPayload()
	if err != nil {
		return err
	}
	_, err = k.advanceModerator(moderator.EventStop, clock)
	return err
}

// clockPayload carries the director's plan ref and, once per staged request,
// its solver request over to the moderator.
func (k *Kernel) clockPayload() (fsm.Payload, error) {
	p := fsm.Payload{}
	if k.director.PlanRef != "" {
		p["planRef"] = k.director.PlanRef
	}
	if req := k.director.LastSolverRequest; req != nil && req != k.forwarded {
		g, err := protocol.Generic(req)
		if err != nil {
			return nil, fmt.Errorf("solver request: %w", err)
		}
		if m, ok := g.(map[string]any); ok {
			p["lastSolverRequest"] = m
		}
		k.forwarded = req
	}
	return p, nil
}

// receipt returns the configured receipt or issues one against the plan's
// own prices, capped by the budget the director enforced.
func (k *Kernel) receipt() protocol.BudgetReceiptArtifact {
	if k.cfg.Receipt != nil {
		return *k.cfg.Receipt
	}
	tokens := k.director.TotalApproved
	if k.director.BudgetTokens != nil {
		tokens = *k.director.BudgetTokens
	}
	b := protocol.BudgetArtifact{
		Header: protocol.NewHeader(protocol.SchemaBudget, k.meta("budget")),
		Budget: protocol.Budget{Tokens: tokens},
	}
	return budget.IssueReceipt(b, k.priceList(), k.meta("receipt"))
}

// priceList is the catalog's price list plus the token-hint price of every
// selection the catalog did not cover.
func (k *Kernel) priceList() protocol.PriceListInput {
	meta := k.meta("prices")
	var pl protocol.PriceListInput
	if k.cfg.Director.Catalog != nil {
		pl = k.cfg.Director.Catalog.PriceList(meta)
	} else {
		pl = protocol.PriceListInput{Header: protocol.NewHeader(protocol.SchemaPriceList, meta)}
	}
	seen := map[string]bool{}
	for _, it := range pl.Items {
		seen[it.Kind+"/"+it.ID] = true
	}
	for _, s := range k.director.Selections {
		key := s.Kind + "/" + s.ItemID()
		if seen[key] {
			continue
		}
		seen[key] = true
		pl.Items = append(pl.Items, protocol.PriceItem{ID: s.ItemID(), Kind: s.Kind, UnitCost: s.Applied.Cost})
	}
	return pl
}

func (k *Kernel) meta(kind string) protocol.Meta {
	return protocol.Meta{
		ID:        fmt.Sprintf("%s/%s", k.cfg.RunID, kind),
		RunID:     k.cfg.RunID,
		CreatedAt: k.now().Format(time.RFC3339),
		Producer:  Producer,
	}
}

func (k *Kernel) now() time.Time {
	if k.cfg.Clock != nil {
		return k.cfg.Clock()
	}
	return time.Now().UTC()
}

// record hands this tick's observations to the annotator.
func (k *Kernel) record() error {
	if len(k.tickObs) == 0 {
		return nil
	}
	k.observations = append(k.observations, k.tickObs...)
	obs := make([]any, 0, len(k.tickObs))
	for _, o := range k.tickObs {
		obs = append(obs, o)
	}
	return k.advanceFSM(annotator.Machine, &k.annotator, annotator.EventRecord, fsm.Payload{"observations": obs})
}

func (k *Kernel) advanceModerator(ev fsm.Event, p fsm.Payload) (moderator.Result, error) {
	res, err := k.mod.Advance(k.moderator, ev, p)
	if err != nil {
		return res, k.reject(moderator.Name, ev, k.moderator.State, err)
	}
	k.moderator = res.Snapshot
	return res, k.emitOutput(res.Output)
}

func (k *Kernel) advanceDirector(ev fsm.Event, p fsm.Payload) (director.Result, error) {
	res, err := k.dir.Advance(k.director, ev, p)
	if err != nil {
		return res, k.reject(director.Name, ev, k.director.State, err)
	}
	k.director = res.Snapshot
	return res, k.emitOutput(res.Output)
}

// advanceFSM applies ev to a persona that only walks its table.
func (k *Kernel) advanceFSM(m fsm.Machine, cur *fsm.Snapshot, ev fsm.Event, p fsm.Payload) error {
	next, err := m.Advance(*cur, ev, p, k.cfg.Clock)
	if err != nil {
		return k.reject(m.Name, ev, cur.State, err)
	}
	rec := k.newRecord(m.Name, ev, cur.State, next.State)
	if len(next.Context.Counters) > 0 {
		rec.Data = map[string]any{}
		for name, v := range next.Context.Counters {
			rec.Data[name] = v
		}
	}
	*cur = next
	return k.emit(rec, m.Name != annotator.Name)
}

// reject records a failed transition and returns err unless a sink failed.
func (k *Kernel) reject(name string, ev fsm.Event, state fsm.State, err error) error {
	rec := k.newRecord(name, ev, state, state)
	rec.Error = err.Error()
	if werr := k.emit(rec, true); werr != nil {
		return werr
	}
	return err
}

func (k *Kernel) emitOutput(out persona.Output) error {
	actions := make([]string, 0, len(out.Actions))
	for _, a := range out.Actions {
		actions = append(actions, a.Kind)
	}
	effects := make([]string, 0, len(out.Effects))
	for _, e := range out.Effects {
		effects = append(effects, e.Kind)
	}
	for _, t := range out.Telemetry {
		rec := k.newRecord(t.Persona, t.Event, t.From, t.To)
		rec.Data = t.Data
		rec.Actions = actions
		rec.Effects = effects
		if err := k.emit(rec, true); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kernel) newRecord(name string, ev fsm.Event, from, to fsm.State) protocol.TelemetryRecord {
	return protocol.TelemetryRecord{
		Schema:  protocol.SchemaTelemetry,
		RunID:   k.cfg.RunID,
		Tick:    k.moderator.Tick,
		At:      k.now().Format(time.RFC3339Nano),
		Persona: name,
		Event:   string(ev),
		From:    string(from),
		To:      string(to),
	}
}

func (k *Kernel) emit(rec protocol.TelemetryRecord, observe bool) error {
	if observe {
		k.tickObs = append(k.tickObs, rec.Persona+":"+rec.Event)
	}
	for _, s := range k.deps.Telemetry {
		if err := s.WriteTelemetry(rec); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}

// Snapshot captures the run so it can be resumed with Restore.
func (k *Kernel) Snapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header:       snapshot.Header{Version: snapshot.Version, RunID: k.cfg.RunID, Tick: k.moderator.Tick},
		Moderator:    k.moderator,
		Director:     k.director,
		Allocator:    k.allocator,
		Annotator:    k.annotator,
		Actor:        k.actor,
		Observations: append([]string(nil), k.observations...),
	}
	snap.Director.Selections = model.CloneSelections(k.director.Selections)
	if k.ledger != nil {
		l := *k.ledger
		l.SpendEvents = append([]protocol.SpendEvent(nil), k.ledger.SpendEvents...)
		snap.Ledger = &l
	}
	return snap
}

// Restore replaces the kernel's state with snap. The run id must match.
func (k *Kernel) Restore(snap snapshot.SnapshotV1) error {
	if snap.Header.RunID != k.cfg.RunID {
		return fmt.Errorf("snapshot run %q does not match kernel run %q", snap.Header.RunID, k.cfg.RunID)
	}
	k.moderator = snap.Moderator
	k.director = snap.Director
	k.allocator = snap.Allocator
	k.annotator = snap.Annotator
	k.actor = snap.Actor
	k.ledger = snap.Ledger
	k.observations = append([]string(nil), snap.Observations...)
	k.done = snap.Director.State == director.Ready
	return nil
}
