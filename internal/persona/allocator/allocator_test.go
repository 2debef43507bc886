package allocator

import (
	"errors"
	"testing"
	"time"

	"agentkernel.ai/internal/persona/fsm"
)

func TestAllocator_Lifecycle(t *testing.T) {
	clock := fsm.StepClock(time.Unix(100, 0).UTC(), time.Second)
	s := Start(clock)
	if s.State != Idle {
		t.Fatalf("expected idle, got %s", s.State)
	}

	s, err := Advance(s, EventBudget, nil, clock)
	if err != nil || s.State != Budgeting {
		t.Fatalf("budget: %v %s", err, s.State)
	}

	if _, err := Advance(s, EventAllocate, fsm.Payload{"budgets": []any{}}, clock); !errors.Is(err, fsm.ErrGuardRejected) {
		t.Fatalf("expected empty budgets to be rejected, got %v", err)
	}

	s, err = Advance(s, EventAllocate, fsm.Payload{"budgets": []any{"x"}}, clock)
	if err != nil || s.State != Allocating {
		t.Fatalf("allocate: %v %s", err, s.State)
	}
	if s.Context.Counter(CounterBudgets) != 1 || s.Context.LastEvent != EventAllocate {
		t.Fatalf("unexpected context: %+v", s.Context)
	}

	s, err = Advance(s, EventMonitor, nil, clock)
	if err != nil || s.State != Monitoring {
		t.Fatalf("monitor: %v %s", err, s.State)
	}
	if s.Context.Counter(CounterBudgets) != 1 {
		t.Fatalf("budget count should carry over, got %d", s.Context.Counter(CounterBudgets))
	}

	if _, err := Advance(s, EventRebalance, fsm.Payload{}, clock); !errors.Is(err, fsm.ErrGuardRejected) {
		t.Fatalf("expected missing signals to be rejected, got %v", err)
	}
	s, err = Advance(s, EventRebalance, fsm.Payload{"signals": []any{"a", "b"}}, clock)
	if err != nil || s.State != Rebalancing || s.Context.Counter(CounterSignals) != 2 {
		t.Fatalf("rebalance: %v %+v", err, s)
	}
	s, err = Advance(s, EventMonitor, nil, clock)
	if err != nil || s.State != Monitoring {
		t.Fatalf("monitor after rebalance: %v %s", err, s.State)
	}

	_, err = Advance(s, EventBudget, nil, clock)
	var te *fsm.TransitionError
	if !errors.As(err, &te) || te.State != Monitoring || len(te.Allowed) != 1 || te.Allowed[0] != EventRebalance {
		t.Fatalf("expected invalid transition listing rebalance, got %v", err)
	}
}
