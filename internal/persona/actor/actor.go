// Package actor is the placeholder persona for spawned actors. It has one
// state and no transitions, so every event is an invalid transition.
package actor

import "agentkernel.ai/internal/persona/fsm"

const Name = "actor"

const Idle fsm.State = "idle"

var Machine = fsm.Machine{
	Name:    Name,
	Initial: Idle,
	States:  []fsm.State{Idle},
}

func Start(clock fsm.Clock) fsm.Snapshot { return Machine.Start(clock) }

func Advance(cur fsm.Snapshot, ev fsm.Event, p fsm.Payload, clock fsm.Clock) (fsm.Snapshot, error) {
	return Machine.Advance(cur, ev, p, clock)
}
