package order

import "testing"

func TestStateMachineLifecycle(t *testing.T) {
	sm := NewStateMachine()
	path := []Status{
		StatusUnsubmitted,
		StatusSubmitted,
		StatusAcknowledged,
		StatusPartiallyFilled,
		StatusPartiallyFilled,
		StatusPendingCancel,
		StatusCancelRejected,
		StatusFilled,
	}
	for i := 1; i < len(path); i++ {
		if err := sm.ValidateTransition(path[i-1], path[i]); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestStateMachineIllegalTransitions(t *testing.T) {
	sm := NewStateMachine()
	illegal := []StateTransition{
		{StatusFilled, StatusCancelled},
		{StatusCancelled, StatusAcknowledged},
		{StatusRejected, StatusSubmitted},
		{StatusUnsubmitted, StatusFilled},
		{StatusExpired, StatusPendingCancel},
	}
	for _, tr := range illegal {
		if err := sm.ValidateTransition(tr.From, tr.To); err == nil {
			t.Errorf("expected %s -> %s to be illegal", tr.From, tr.To)
		}
	}
	if err := sm.ValidateTransition(StatusFilled, StatusFilled); err != nil {
		t.Errorf("same state should be idempotent: %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	for _, st := range []Status{StatusFilled, StatusCancelled, StatusRejected, StatusExpired} {
		if !IsFinal(st) || IsActive(st) || CanCancel(st) {
			t.Errorf("%s should be final only", st)
		}
		if len(NewStateMachine().AllowedTransitions(st)) != 0 {
			t.Errorf("%s should have no outgoing transitions", st)
		}
	}
	if !IsActive(StatusPendingCancel) || CanCancel(StatusPendingCancel) {
		t.Errorf("pending cancel is active but not cancelable again")
	}
	if Description(StatusCancelRejected) == "未知状态" {
		t.Errorf("missing description")
	}
}
