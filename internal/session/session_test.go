package session

import (
	"testing"
	"time"
)

func TestScenarioS4DoneThenReopenedByTimer(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(0, 0)
	if trans := tr.ApplyUpdate("A", "GroupDone", "GROUP_DONE", "", t0); trans != TransitionDone {
		t.Fatalf("expected TransitionDone, got %v", trans)
	}
	if !tr.IsDone("A") {
		t.Fatalf("expected session to be done")
	}

	t1 := time.Unix(1, 0)
	if trans := tr.ApplyTimer("A", t1); trans != TransitionReopened {
		t.Fatalf("expected TransitionReopened, got %v", trans)
	}
	if tr.IsDone("A") {
		t.Fatalf("expected session to be reopened")
	}
}

func TestTransitionsNeverDuplicateWithinState(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(0, 0)
	tr.ApplyUpdate("A", "GroupDone", "", "", t0)
	if trans := tr.ApplyUpdate("A", "GroupDone", "", "", t0); trans != TransitionNone {
		t.Fatalf("expected no duplicate transition, got %v", trans)
	}
}

func TestUnknownFopReportsNotDone(t *testing.T) {
	tr := NewTracker()
	status := tr.Status("Z")
	if status.IsDone {
		t.Fatalf("expected unknown FOP to report isDone=false")
	}
}

func TestBlankUiEventTreatedAsActivity(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(0, 0)
	tr.ApplyUpdate("A", "GroupDone", "", "", t0)
	if trans := tr.ApplyUpdate("A", "", "", "", time.Unix(1, 0)); trans != TransitionReopened {
		t.Fatalf("expected blank uiEvent to reopen the session, got %v", trans)
	}
}
