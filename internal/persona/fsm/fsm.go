// Package fsm is the transition table engine shared by every persona.
//
// A Machine is constant data. Callers own the Snapshot and thread it through
// Advance; the engine keeps no state of its own and performs no I/O beyond the
// injected clock.
package fsm

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

type State string

type Event string

// Payload is the JSON-shaped event body.
type Payload map[string]any

// Clock returns the timestamp stamped into Context.UpdatedAt. A nil Clock
// means the wall clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// Guard must be pure.
type Guard func(p Payload, s Snapshot) bool

type Transition struct {
	From  State
	Event Event
	To    State
	Guard Guard
}

// CounterRule sets Counter to len(payload[Field]) when that field is an array,
// otherwise the previous value is kept.
type CounterRule struct {
	Counter string
	Field   string
}

type Context struct {
	LastEvent Event          `json:"lastEvent,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Counters  map[string]int `json:"counters,omitempty"`
}

// Counter returns a counter value, zero if never set.
func (c Context) Counter(name string) int { return c.Counters[name] }

type Snapshot struct {
	State   State   `json:"state"`
	Context Context `json:"context"`
}

type Machine struct {
	Name        string
	Initial     State
	States      []State
	Transitions []Transition
	Counters    []CounterRule
}

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrGuardRejected     = errors.New("guard rejected")
)

// TransitionError names the state and event that failed. Allowed is only
// populated for invalid transitions.
type TransitionError struct {
	Machine string
	State   State
	Event   Event
	Allowed []Event
	Err     error
}

func (e *TransitionError) Error() string {
	if errors.Is(e.Err, ErrGuardRejected) {
		return fmt.Sprintf("%s: %v: %s --%s-->", e.Machine, e.Err, e.State, e.Event)
	}
	return fmt.Sprintf("%s: %v: %s --%s--> (allowed: %v)", e.Machine, e.Err, e.State, e.Event, e.Allowed)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Start returns the initial snapshot.
func (m Machine) Start(clock Clock) Snapshot {
	return Snapshot{State: m.Initial, Context: Context{UpdatedAt: clock.now()}}
}

// Allowed lists the events with a transition out of state, in table order.
func (m Machine) Allowed(state State) []Event {
	out := []Event{}
	seen := map[Event]bool{}
	for _, t := range m.Transitions {
		if t.From != state || seen[t.Event] {
			continue
		}
		seen[t.Event] = true
		out = append(out, t.Event)
	}
	return out
}

func (m Machine) lookup(state State, ev Event) (Transition, bool) {
	for _, t := range m.Transitions {
		if t.From == state && t.Event == ev {
			return t, true
		}
	}
	return Transition{}, false
}

// Advance applies ev to cur. On error cur is returned unchanged.
func (m Machine) Advance(cur Snapshot, ev Event, p Payload, clock Clock) (Snapshot, error) {
	t, ok := m.lookup(cur.State, ev)
	if !ok {
		return cur, &TransitionError{
			Machine: m.Name,
			State:   cur.State,
			Event:   ev,
			Allowed: m.Allowed(cur.State),
			Err:     ErrInvalidTransition,
		}
	}
	if t.Guard != nil && !t.Guard(p, cur) {
		return cur, &TransitionError{
			Machine: m.Name,
			State:   cur.State,
			Event:   ev,
			Err:     ErrGuardRejected,
		}
	}
	return Snapshot{State: t.To, Context: m.nextContext(cur.Context, ev, p, clock)}, nil
}

func (m Machine) nextContext(prev Context, ev Event, p Payload, clock Clock) Context {
	next := Context{LastEvent: ev, UpdatedAt: clock.now()}
	if len(prev.Counters) > 0 || len(m.Counters) > 0 {
		next.Counters = make(map[string]int, len(prev.Counters)+len(m.Counters))
		for k, v := range prev.Counters {
			next.Counters[k] = v
		}
	}
	for _, r := range m.Counters {
		if n, ok := ArrayLen(p, r.Field); ok {
			next.Counters[r.Counter] = n
		}
	}
	return next
}

// ArrayLen reports the length of payload[field] when it holds an array.
func ArrayLen(p Payload, field string) (int, bool) {
	v, ok := p[field]
	if !ok || v == nil {
		return 0, false
	}
	if a, ok := v.([]any); ok {
		return len(a), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), true
	default:
		return 0, false
	}
}

// NonEmpty is the common guard: payload[field] must be a non-empty array.
func NonEmpty(field string) Guard {
	return func(p Payload, _ Snapshot) bool {
		n, ok := ArrayLen(p, field)
		return ok && n > 0
	}
}

// Present guards on a non-empty string or any non-nil non-string value.
func Present(field string) Guard {
	return func(p Payload, _ Snapshot) bool {
		v, ok := p[field]
		if !ok || v == nil {
			return false
		}
		if s, ok := v.(string); ok {
			return s != ""
		}
		return true
	}
}

// FixedClock is a test and replay helper.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// StepClock returns start, start+step, start+2*step... on successive calls.
func StepClock(start time.Time, step time.Duration) Clock {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(step)
		return t
	}
}
