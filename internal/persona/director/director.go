// Package director plans and refines a build. Its draft_plan step turns a
// validated summary into budget-capped selections and stages them as
// placement actions.
package director

import (
	"fmt"

	"agentkernel.ai/internal/budget"
	"agentkernel.ai/internal/catalog"
	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/persona"
	"agentkernel.ai/internal/persona/fsm"
	"agentkernel.ai/internal/prompt"
	"agentkernel.ai/internal/protocol"
	"agentkernel.ai/internal/selection"
)

const Name = "director"

const (
	Idle           fsm.State = "idle"
	Intake         fsm.State = "intake"
	Drafting       fsm.State = "drafting"
	AwaitingSolver fsm.State = "awaiting_solver"
	Refining       fsm.State = "refining"
	Ready          fsm.State = "ready"
)

const (
	EventIntake        fsm.Event = "intake"
	EventDraftPlan     fsm.Event = "draft_plan"
	EventRequestSolver fsm.Event = "request_solver"
	EventSolverResult  fsm.Event = "solver_result"
	EventFinalize      fsm.Event = "finalize"
)

const (
	ActionPlaceSelection = "place_selection"
	ActionSolve          = "solve"
	ActionEmitPlan       = "emit_plan"

	EffectPlanDrafted   = "plan_drafted"
	EffectSolverResult  = "solver_result"
	EffectPlanFinalized = "plan_finalized"
)

var Machine = fsm.Machine{
	Name:    Name,
	Initial: Idle,
	States:  []fsm.State{Idle, Intake, Drafting, AwaitingSolver, Refining, Ready},
	Transitions: []fsm.Transition{
		{From: Idle, Event: EventIntake, To: Intake, Guard: fsm.Present("intentRef")},
		{From: Intake, Event: EventDraftPlan, To: Drafting, Guard: hasSummary},
		{From: Drafting, Event: EventRequestSolver, To: AwaitingSolver},
		{From: AwaitingSolver, Event: EventSolverResult, To: Refining, Guard: fsm.Present("result")},
		{From: Refining, Event: EventDraftPlan, To: Drafting, Guard: hasSummary},
		{From: Refining, Event: EventFinalize, To: Ready},
		{From: Ready, Event: EventIntake, To: Intake, Guard: fsm.Present("intentRef")},
	},
	Counters: []fsm.CounterRule{{Counter: "lastSelectionCount", Field: "selections"}},
}

type Config struct {
	Catalog   *catalog.Catalog
	Loadouts  []model.Loadout
	Selection selection.Options
	// BudgetTokens caps plans whose summary names no budget. Nil is uncapped.
	BudgetTokens *float64
}

type SolverRequest struct {
	PlanRef    string            `json:"planRef"`
	IntentRef  string            `json:"intentRef"`
	Theme      string            `json:"theme,omitempty"`
	Selections []model.Selection `json:"selections"`
}

type Snapshot struct {
	fsm.Snapshot
	IntentRef         string            `json:"intentRef,omitempty"`
	PlanRef           string            `json:"planRef,omitempty"`
	Revision          int               `json:"revision"`
	Theme             string            `json:"theme,omitempty"`
	Selections        []model.Selection `json:"selections,omitempty"`
	Missing           []string          `json:"missing,omitempty"`
	TotalRequested    float64           `json:"totalRequested"`
	TotalApproved     float64           `json:"totalApproved"`
	BudgetTokens      *float64          `json:"budgetTokens,omitempty"`
	LastSolverRequest *SolverRequest    `json:"lastSolverRequest,omitempty"`
}

type Result struct {
	Snapshot Snapshot `json:"snapshot"`
	persona.Output
}

type Director struct {
	cfg   Config
	clock fsm.Clock
}

func New(cfg Config, clock fsm.Clock) *Director {
	return &Director{cfg: cfg, clock: clock}
}

func (d *Director) Start() Snapshot {
	return Snapshot{Snapshot: Machine.Start(d.clock)}
}

// Advance applies ev. Payloads:
//
//	intake:         intentRef (string)
//	draft_plan:     summary (model.Summary) or response (raw model reply), budgetTokens (optional)
//	request_solver: none
//	solver_result:  result (any)
//	finalize:       none
func (d *Director) Advance(cur Snapshot, ev fsm.Event, p fsm.Payload) (Result, error) {
	inner, err := Machine.Advance(cur.Snapshot, ev, p, d.clock)
	if err != nil {
		return Result{Snapshot: cur, Output: persona.NewOutput()}, err
	}
	next := cur
	next.Snapshot = inner
	out := persona.NewOutput()
	data := map[string]any{}

	switch ev {
	case EventIntake:
		intent, _ := p["intentRef"].(string)
		next = Snapshot{Snapshot: inner, IntentRef: intent}
	case EventDraftPlan:
		data = d.draft(&next, p, &out)
	case EventRequestSolver:
		req := SolverRequest{
			PlanRef:    next.PlanRef,
			IntentRef:  next.IntentRef,
			Theme:      next.Theme,
			Selections: model.CloneSelections(next.Selections),
		}
		next.LastSolverRequest = &req
		out.Actions = append(out.Actions, persona.Action{
			Kind:    ActionSolve,
			ID:      next.PlanRef,
			Payload: map[string]any{"planRef": next.PlanRef, "selections": len(req.Selections)},
		})
	case EventSolverResult:
		out.Effects = append(out.Effects, persona.Effect{
			Kind: EffectSolverResult,
			Data: map[string]any{"planRef": next.PlanRef, "result": p["result"]},
		})
	case EventFinalize:
		out.Actions = append(out.Actions, persona.Action{Kind: ActionEmitPlan, ID: next.PlanRef})
		out.Effects = append(out.Effects, persona.Effect{
			Kind: EffectPlanFinalized,
			Data: map[string]any{
				"planRef":       next.PlanRef,
				"selections":    len(next.Selections),
				"totalApproved": next.TotalApproved,
			},
		})
	}
	data["planRef"] = next.PlanRef
	out.Telemetry = append(out.Telemetry, persona.Transitioned(Name, ev, cur.Snapshot, inner, data))
	return Result{Snapshot: next, Output: out}, nil
}

func (d *Director) draft(next *Snapshot, p fsm.Payload, out *persona.Output) map[string]any {
	summary, summaryErrs, _ := summaryFrom(p)

	sels := selection.BuildSelectionsFromSummary(summary, d.cfg.Selection)
	missing := []string{}
	if d.cfg.Catalog != nil {
		sels, missing = selection.ApplyCatalog(sels, d.cfg.Catalog)
	}
	sels = selection.AttachLoadouts(sels, d.cfg.Loadouts)

	limit := d.budgetFor(summary, p)
	enforced := budget.EnforceBudget(budget.EnforceInput{Selections: sels, BudgetTokens: limit})

	next.Revision++
	next.PlanRef = fmt.Sprintf("%s#plan-%d", next.IntentRef, next.Revision)
	next.Theme = summary.DungeonTheme
	next.Selections = enforced.Selections
	next.Missing = append(append([]string{}, summary.Missing...), missing...)
	next.TotalRequested = enforced.TotalRequested
	next.TotalApproved = enforced.TotalApproved
	next.BudgetTokens = limit
	next.LastSolverRequest = nil

	for _, s := range enforced.Selections {
		if s.ApprovedCount == 0 {
			continue
		}
		ids := make([]string, 0, len(s.Instances))
		for _, inst := range s.Instances {
			ids = append(ids, inst.ID)
		}
		out.Actions = append(out.Actions, persona.Action{
			Kind: ActionPlaceSelection,
			ID:   s.ItemID(),
			Payload: map[string]any{
				"kind":      s.Kind,
				"source":    s.Source,
				"count":     s.ApprovedCount,
				"unitCost":  s.Applied.Cost,
				"instances": ids,
			},
		})
	}
	for _, a := range enforced.Actions {
		out.Actions = append(out.Actions, persona.Action{
			Kind:    a.Action,
			ID:      a.ID,
			Payload: map[string]any{"amountTrimmed": a.AmountTrimmed},
		})
	}
	out.Effects = append(out.Effects, persona.Effect{
		Kind: EffectPlanDrafted,
		Data: map[string]any{
			"planRef":        next.PlanRef,
			"totalRequested": enforced.TotalRequested,
			"totalApproved":  enforced.TotalApproved,
			"trimmed":        len(enforced.Actions),
			"missing":        next.Missing,
		},
	})

	data := map[string]any{
		"selections":     len(enforced.Selections),
		"totalRequested": enforced.TotalRequested,
		"totalApproved":  enforced.TotalApproved,
	}
	if len(summaryErrs) > 0 {
		data["summaryErrors"] = protocol.Join(summaryErrs)
	}
	return data
}

func (d *Director) budgetFor(s model.Summary, p fsm.Payload) *float64 {
	if n, ok := protocol.Number(p["budgetTokens"]); ok {
		return budget.Tokens(n)
	}
	if s.BudgetTokens > 0 {
		return budget.Tokens(float64(s.BudgetTokens))
	}
	if d.cfg.BudgetTokens != nil {
		return budget.Tokens(*d.cfg.BudgetTokens)
	}
	return nil
}

// summaryFrom reads the draft_plan payload. A raw model reply is run through
// the prompt contract; it counts as present when it yields a summary.
func summaryFrom(p fsm.Payload) (model.Summary, []protocol.FieldError, bool) {
	switch v := p["summary"].(type) {
	case model.Summary:
		return v, nil, true
	case *model.Summary:
		if v != nil {
			return *v, nil, true
		}
	}
	if text, ok := p["response"].(string); ok && text != "" {
		c := prompt.CapturePromptResponse(prompt.Capture{ResponseText: text})
		if c.Summary != nil {
			return *c.Summary, c.Errors, true
		}
	}
	return model.Summary{}, nil, false
}

func hasSummary(p fsm.Payload, _ fsm.Snapshot) bool {
	_, _, ok := summaryFrom(p)
	return ok
}
