package precondition

import (
	"testing"
	"time"
)

func TestScenarioS5MissingBothPreconditions(t *testing.T) {
	n := NewNegotiator()
	result := n.Evaluate(false, false)
	if result.Status != 428 {
		t.Fatalf("Status = %d, want 428", result.Status)
	}
	if len(result.Missing) != 2 || result.Missing[0] != "database" || result.Missing[1] != "translations_zip" {
		t.Fatalf("Missing = %+v, want [database translations_zip]", result.Missing)
	}
}

func TestEvaluateDebouncesWithinWindow(t *testing.T) {
	now := time.Unix(0, 0)
	n := NewNegotiator(WithClock(func() time.Time { return now }))

	first := n.Evaluate(false, true)
	if first.Status != 428 {
		t.Fatalf("first Status = %d, want 428", first.Status)
	}

	now = now.Add(500 * time.Millisecond)
	second := n.Evaluate(false, true)
	if second.Status != 202 || !second.Retry {
		t.Fatalf("second = %+v, want 202/retry", second)
	}

	now = now.Add(600 * time.Millisecond)
	third := n.Evaluate(false, true)
	if third.Status != 428 {
		t.Fatalf("third Status = %d, want 428 after debounce window elapses", third.Status)
	}
}

func TestEvaluateOKWhenAllPreconditionsMet(t *testing.T) {
	n := NewNegotiator()
	result := n.Evaluate(true, true)
	if !result.OK {
		t.Fatalf("expected OK result, got %+v", result)
	}
}

func TestScenarioS6RequestResourcesNoopWithoutConnection(t *testing.T) {
	n := NewNegotiator()
	if got := n.RequestResources([]string{"flags_zip"}, false); got != nil {
		t.Fatalf("expected nil (no-op) result, got %+v", got)
	}
}

func TestScenarioS6RequestResourcesWithConnection(t *testing.T) {
	n := NewNegotiator()
	got := n.RequestResources([]string{"flags_zip"}, true)
	if got == nil || got.Status != 428 || got.Reason != "plugin_preconditions" {
		t.Fatalf("got %+v", got)
	}
}

func TestDatabaseZipGraceWindow(t *testing.T) {
	now := time.Unix(0, 0)
	n := NewNegotiator(WithClock(func() time.Time { return now }))
	n.BeginDatabasePending(now)

	now = now.Add(4 * time.Second)
	if !n.DatabaseZipArrived(now) {
		t.Fatalf("expected zip within grace window to be on time")
	}
}

func TestDatabaseZipExpiresAfterGraceWindow(t *testing.T) {
	now := time.Unix(0, 0)
	n := NewNegotiator(WithClock(func() time.Time { return now }))
	n.BeginDatabasePending(now)

	now = now.Add(6 * time.Second)
	if !n.CheckDatabasePendingExpired(now) {
		t.Fatalf("expected pending flag to have expired")
	}
	if n.CheckDatabasePendingExpired(now) {
		t.Fatalf("expected expiry check to be a one-shot edge")
	}
}
