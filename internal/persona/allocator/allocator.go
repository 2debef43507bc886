// Package allocator manages spend against a budget.
package allocator

import "agentkernel.ai/internal/persona/fsm"

const Name = "allocator"

const (
	Idle        fsm.State = "idle"
	Budgeting   fsm.State = "budgeting"
	Allocating  fsm.State = "allocating"
	Monitoring  fsm.State = "monitoring"
	Rebalancing fsm.State = "rebalancing"
)

const (
	EventBudget    fsm.Event = "budget"
	EventAllocate  fsm.Event = "allocate"
	EventMonitor   fsm.Event = "monitor"
	EventRebalance fsm.Event = "rebalance"
)

const (
	CounterBudgets = "lastBudgetCount"
	CounterSignals = "lastSignalCount"
)

var Machine = fsm.Machine{
	Name:    Name,
	Initial: Idle,
	States:  []fsm.State{Idle, Budgeting, Allocating, Monitoring, Rebalancing},
	Transitions: []fsm.Transition{
		{From: Idle, Event: EventBudget, To: Budgeting},
		{From: Budgeting, Event: EventAllocate, To: Allocating, Guard: fsm.NonEmpty("budgets")},
		{From: Allocating, Event: EventMonitor, To: Monitoring},
		{From: Monitoring, Event: EventRebalance, To: Rebalancing, Guard: fsm.NonEmpty("signals")},
		{From: Rebalancing, Event: EventMonitor, To: Monitoring},
	},
	Counters: []fsm.CounterRule{
		{Counter: CounterBudgets, Field: "budgets"},
		{Counter: CounterSignals, Field: "signals"},
	},
}

func Start(clock fsm.Clock) fsm.Snapshot { return Machine.Start(clock) }

func Advance(cur fsm.Snapshot, ev fsm.Event, p fsm.Payload, clock fsm.Clock) (fsm.Snapshot, error) {
	return Machine.Advance(cur, ev, p, clock)
}
