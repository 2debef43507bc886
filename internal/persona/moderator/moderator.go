// Package moderator advances the simulation clock and tells the director when
// to take its next step.
package moderator

import (
	"agentkernel.ai/internal/persona"
	"agentkernel.ai/internal/persona/fsm"
)

const Name = "moderator"

const (
	Idle    fsm.State = "idle"
	Running fsm.State = "running"
	Paused  fsm.State = "paused"
	Stopped fsm.State = "stopped"
)

const (
	EventStart  fsm.Event = "start"
	EventTick   fsm.Event = "tick"
	EventPause  fsm.Event = "pause"
	EventResume fsm.Event = "resume"
	EventStop   fsm.Event = "stop"
)

const (
	ActionSignalDirector = "signal_director"
	EffectTickAdvanced   = "tick_advanced"
	EffectClockStopped   = "clock_stopped"
)

var Machine = fsm.Machine{
	Name:    Name,
	Initial: Idle,
	States:  []fsm.State{Idle, Running, Paused, Stopped},
	Transitions: []fsm.Transition{
		{From: Idle, Event: EventStart, To: Running},
		{From: Running, Event: EventTick, To: Running},
		{From: Running, Event: EventPause, To: Paused},
		{From: Paused, Event: EventResume, To: Running},
		{From: Running, Event: EventStop, To: Stopped},
		{From: Paused, Event: EventStop, To: Stopped},
	},
}

type Config struct {
	// DirectorEvery signals the director on every Nth tick. 0 means every tick.
	DirectorEvery uint64
}

type Snapshot struct {
	fsm.Snapshot
	Tick              uint64         `json:"tick"`
	IntentRef         string         `json:"intentRef,omitempty"`
	PlanRef           string         `json:"planRef,omitempty"`
	LastSolverRequest map[string]any `json:"lastSolverRequest,omitempty"`
}

type Result struct {
	Snapshot Snapshot `json:"snapshot"`
	persona.Output
}

type Moderator struct {
	cfg   Config
	clock fsm.Clock
}

func New(cfg Config, clock fsm.Clock) *Moderator {
	if cfg.DirectorEvery == 0 {
		cfg.DirectorEvery = 1
	}
	return &Moderator{cfg: cfg, clock: clock}
}

func (m *Moderator) Start() Snapshot {
	return Snapshot{Snapshot: Machine.Start(m.clock)}
}

// Advance applies ev. Payload fields intentRef, planRef and lastSolverRequest
// are recorded whenever present, on any event.
func (m *Moderator) Advance(cur Snapshot, ev fsm.Event, p fsm.Payload) (Result, error) {
	inner, err := Machine.Advance(cur.Snapshot, ev, p, m.clock)
	if err != nil {
		return Result{Snapshot: cur, Output: persona.NewOutput()}, err
	}
	next := cur
	next.Snapshot = inner
	if s, ok := p["intentRef"].(string); ok && s != "" {
		next.IntentRef = s
	}
	if s, ok := p["planRef"].(string); ok && s != "" {
		next.PlanRef = s
	}
	if req, ok := p["lastSolverRequest"].(map[string]any); ok {
		next.LastSolverRequest = make(map[string]any, len(req))
		for k, v := range req {
			next.LastSolverRequest[k] = v
		}
	}

	out := persona.NewOutput()
	switch ev {
	case EventTick:
		next.Tick = cur.Tick + 1
		out.Effects = append(out.Effects, persona.Effect{Kind: EffectTickAdvanced, Data: map[string]any{"tick": next.Tick}})
		if next.Tick%m.cfg.DirectorEvery == 0 {
			out.Actions = append(out.Actions, persona.Action{
				Kind:    ActionSignalDirector,
				Payload: map[string]any{"tick": next.Tick, "intentRef": next.IntentRef},
			})
		}
	case EventStop:
		out.Effects = append(out.Effects, persona.Effect{Kind: EffectClockStopped, Data: map[string]any{"tick": next.Tick}})
	}
	out.Telemetry = append(out.Telemetry, persona.Transitioned(Name, ev, cur.Snapshot, inner, map[string]any{"tick": next.Tick}))
	return Result{Snapshot: next, Output: out}, nil
}
