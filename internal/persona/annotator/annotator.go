// Package annotator records observations and summarizes them.
package annotator

import "agentkernel.ai/internal/persona/fsm"

const Name = "annotator"

const (
	Idle        fsm.State = "idle"
	Recording   fsm.State = "recording"
	Summarizing fsm.State = "summarizing"
)

const (
	EventRecord    fsm.Event = "record"
	EventSummarize fsm.Event = "summarize"
	EventReset     fsm.Event = "reset"
)

const CounterObservations = "lastObservationCount"

var Machine = fsm.Machine{
	Name:    Name,
	Initial: Idle,
	States:  []fsm.State{Idle, Recording, Summarizing},
	Transitions: []fsm.Transition{
		{From: Idle, Event: EventRecord, To: Recording},
		{From: Recording, Event: EventRecord, To: Recording},
		{From: Recording, Event: EventSummarize, To: Summarizing, Guard: fsm.NonEmpty("observations")},
		{From: Summarizing, Event: EventReset, To: Idle},
	},
	Counters: []fsm.CounterRule{{Counter: CounterObservations, Field: "observations"}},
}

func Start(clock fsm.Clock) fsm.Snapshot { return Machine.Start(clock) }

func Advance(cur fsm.Snapshot, ev fsm.Event, p fsm.Payload, clock fsm.Clock) (fsm.Snapshot, error) {
	return Machine.Advance(cur, ev, p, clock)
}
