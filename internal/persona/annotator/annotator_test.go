package annotator

import (
	"errors"
	"testing"
	"time"

	"agentkernel.ai/internal/persona/fsm"
)

func TestAnnotator_RecordSummarizeReset(t *testing.T) {
	clock := fsm.FixedClock(time.Unix(5, 0).UTC())
	s := Start(clock)

	s, err := Advance(s, EventRecord, fsm.Payload{"observations": []any{"a"}}, clock)
	if err != nil || s.State != Recording {
		t.Fatalf("record: %v %s", err, s.State)
	}
	s, err = Advance(s, EventRecord, fsm.Payload{"observations": []any{"a", "b", "c"}}, clock)
	if err != nil || s.Context.Counter(CounterObservations) != 3 {
		t.Fatalf("second record: %v %+v", err, s.Context)
	}

	if _, err := Advance(s, EventSummarize, fsm.Payload{"observations": []any{}}, clock); !errors.Is(err, fsm.ErrGuardRejected) {
		t.Fatalf("expected guard rejection, got %v", err)
	}
	s, err = Advance(s, EventSummarize, fsm.Payload{"observations": []any{"a", "b"}}, clock)
	if err != nil || s.State != Summarizing || s.Context.Counter(CounterObservations) != 2 {
		t.Fatalf("summarize: %v %+v", err, s)
	}

	s, err = Advance(s, EventReset, nil, clock)
	if err != nil || s.State != Idle {
		t.Fatalf("reset: %v %s", err, s.State)
	}
	if s.Context.LastEvent != EventReset || s.Context.Counter(CounterObservations) != 2 {
		t.Fatalf("unexpected context after reset: %+v", s.Context)
	}
}
