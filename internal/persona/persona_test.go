package persona_test

import (
	"errors"
	"testing"
	"time"

	"agentkernel.ai/internal/persona/actor"
	"agentkernel.ai/internal/persona/allocator"
	"agentkernel.ai/internal/persona/annotator"
	"agentkernel.ai/internal/persona/director"
	"agentkernel.ai/internal/persona/fsm"
	"agentkernel.ai/internal/persona/moderator"
)

var machines = []fsm.Machine{
	allocator.Machine,
	annotator.Machine,
	director.Machine,
	moderator.Machine,
	actor.Machine,
}

func allEvents() []fsm.Event {
	seen := map[fsm.Event]bool{}
	out := []fsm.Event{"bogus"}
	for _, m := range machines {
		for _, t := range m.Transitions {
			if !seen[t.Event] {
				seen[t.Event] = true
				out = append(out, t.Event)
			}
		}
	}
	return out
}

func TestPersonas_UnknownEventsFromInitialState(t *testing.T) {
	clock := fsm.FixedClock(time.Unix(0, 0).UTC())
	for _, m := range machines {
		allowed := map[fsm.Event]bool{}
		for _, ev := range m.Allowed(m.Initial) {
			allowed[ev] = true
		}
		start := m.Start(clock)
		for _, ev := range allEvents() {
			if allowed[ev] {
				continue
			}
			out, err := m.Advance(start, ev, fsm.Payload{}, clock)
			if !errors.Is(err, fsm.ErrInvalidTransition) {
				t.Fatalf("%s: event %s from %s: expected invalid transition, got %v", m.Name, ev, m.Initial, err)
			}
			if out.State != start.State {
				t.Fatalf("%s: state changed on invalid transition", m.Name)
			}
		}
	}
}

func TestPersonas_GuardFailuresLeaveSnapshot(t *testing.T) {
	clock := fsm.FixedClock(time.Unix(10, 0).UTC())
	for _, m := range machines {
		for _, tr := range m.Transitions {
			if tr.Guard == nil {
				continue
			}
			cur := fsm.Snapshot{State: tr.From, Context: fsm.Context{LastEvent: "prev", UpdatedAt: time.Unix(1, 0).UTC()}}
			out, err := m.Advance(cur, tr.Event, fsm.Payload{}, clock)
			if !errors.Is(err, fsm.ErrGuardRejected) {
				t.Fatalf("%s: %s --%s--> expected guard rejection, got %v", m.Name, tr.From, tr.Event, err)
			}
			if out.State != cur.State || out.Context.LastEvent != "prev" || !out.Context.UpdatedAt.Equal(cur.Context.UpdatedAt) {
				t.Fatalf("%s: snapshot changed on guard failure: %+v", m.Name, out)
			}
		}
	}
}

func TestPersonas_TablesAreWellFormed(t *testing.T) {
	for _, m := range machines {
		states := map[fsm.State]bool{}
		for _, s := range m.States {
			states[s] = true
		}
		if !states[m.Initial] {
			t.Fatalf("%s: initial state %s not in states", m.Name, m.Initial)
		}
		pairs := map[[2]string]bool{}
		for _, tr := range m.Transitions {
			if !states[tr.From] || !states[tr.To] {
				t.Fatalf("%s: transition %+v uses unknown state", m.Name, tr)
			}
			k := [2]string{string(tr.From), string(tr.Event)}
			if pairs[k] {
				t.Fatalf("%s: duplicate transition for %v", m.Name, k)
			}
			pairs[k] = true
		}
	}
}
