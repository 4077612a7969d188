package fop

import (
	"testing"
	"time"
)

func TestMergeUpdateBumpsVersionOnDataFrames(t *testing.T) {
	s := NewStore()
	now := time.Unix(0, 0)
	s.MergeUpdate(map[string]interface{}{"fop": "A", "uiEvent": "LiftingOrderUpdated"}, now, nil, nil, nil)
	snap := s.MergeUpdate(map[string]interface{}{"fop": "A", "uiEvent": "LiftingOrderUpdated"}, now, nil, nil, nil)
	if snap.Version != 2 {
		t.Fatalf("Version = %d, want 2", snap.Version)
	}
}

func TestMergeTimerDoesNotChangeLastDataUpdate(t *testing.T) {
	s := NewStore()
	t0 := time.Unix(0, 0)
	t1 := time.Unix(100, 0)
	upd := s.MergeUpdate(map[string]interface{}{"fop": "A", "uiEvent": "x"}, t0, nil, nil, nil)
	timer := s.MergeTimer(map[string]interface{}{"fop": "A", "athleteTimerEventType": "StartTime"}, t1)
	if !timer.LastDataUpdate.Equal(upd.LastDataUpdate) {
		t.Fatalf("lastDataUpdate changed on timer frame: %v vs %v", timer.LastDataUpdate, upd.LastDataUpdate)
	}
	if timer.Version != upd.Version {
		t.Fatalf("timer frame must not bump version: got %d want %d", timer.Version, upd.Version)
	}
}

// TestBumpAllVersionsStampsLastDataUpdate guards §3's freshness signal: a
// database commit confirms fresh data for every known FOP even without an
// accompanying update frame, so lastDataUpdate must advance too.
func TestBumpAllVersionsStampsLastDataUpdate(t *testing.T) {
	s := NewStore()
	s.Ensure("A")
	now := time.Unix(500, 0)
	s.BumpAllVersions(now)
	snap := s.Snapshot("A")
	if snap.Version != 1 {
		t.Fatalf("Version = %d, want 1", snap.Version)
	}
	if !snap.LastDataUpdate.Equal(now) {
		t.Fatalf("LastDataUpdate = %v, want %v", snap.LastDataUpdate, now)
	}
}

func TestScenarioS3CurrentAthleteAttempts(t *testing.T) {
	s := NewStore()
	payload := map[string]interface{}{
		"fop":               "A",
		"uiEvent":           "LiftingOrderUpdated",
		"currentAthleteKey": "1",
		"sessionAthletes": []interface{}{
			map[string]interface{}{
				"key":                 "1",
				"snatch1Declaration":  float64(100),
				"snatch1ActualLift":   float64(-100),
				"snatch2Declaration":  float64(100),
			},
		},
		"liftingOrderKeys": []interface{}{"1"},
	}
	snap := s.MergeUpdate(payload, time.Unix(0, 0), nil, nil, nil)

	if len(snap.SessionAthletes) != 1 {
		t.Fatalf("expected 1 session athlete, got %d", len(snap.SessionAthletes))
	}
	a := snap.SessionAthletes[0]
	if a.Sattempts[0].StringValue != "100" || a.Sattempts[0].LiftStatus != "bad" {
		t.Fatalf("attempt 1 = %+v, want 100/bad", a.Sattempts[0])
	}
	if a.Sattempts[1].StringValue != "100" || a.Sattempts[1].LiftStatus != "request" {
		t.Fatalf("attempt 2 = %+v, want 100/request", a.Sattempts[1])
	}
	if a.Sattempts[2].StringValue != "-" || a.Sattempts[2].LiftStatus != "empty" {
		t.Fatalf("attempt 3 = %+v, want -/empty", a.Sattempts[2])
	}

	current, _, _ := snap.CurrentNextPrevious()
	if current != "1" {
		t.Fatalf("current athlete key = %q, want 1", current)
	}
}

func TestFopDiscoveredViaUpdateAppearsInNames(t *testing.T) {
	s := NewStore()
	s.MergeUpdate(map[string]interface{}{"fop": "B", "uiEvent": "x"}, time.Unix(0, 0), nil, nil, nil)
	names := s.Names()
	found := false
	for _, n := range names {
		if n == "B" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected discovered FOP %q in %+v", "B", names)
	}
	if snap := s.Snapshot("B"); snap == nil {
		t.Fatalf("expected a snapshot for discovered FOP B")
	}
}

func TestResolveDisplayModePriority(t *testing.T) {
	decision := &Snapshot{Decision: DecisionSlice{DecisionsVisible: true}}
	if got := decision.Resolve(false); got != DisplayDecision {
		t.Fatalf("Resolve() = %q, want decision", got)
	}

	brk := &Snapshot{Break: true}
	if got := brk.Resolve(false); got != DisplayBreak {
		t.Fatalf("Resolve() = %q, want break", got)
	}

	paused := &Snapshot{Break: true, BreakTimer: BreakTimerSlice{BreakTimerEventType: "Pause"}}
	if got := paused.Resolve(false); got == DisplayBreak {
		t.Fatalf("paused break must not resolve to break")
	}

	athleteMode := &Snapshot{CurrentAthleteKey: "1", Timer: TimerSlice{AthleteTimerEventType: "SetTime"}}
	if got := athleteMode.Resolve(false); got != DisplayAthlete {
		t.Fatalf("Resolve() = %q, want athlete", got)
	}

	none := &Snapshot{}
	if got := none.Resolve(false); got != DisplayNone {
		t.Fatalf("Resolve() = %q, want none", got)
	}
}

func TestResolveDefensiveBreakOverride(t *testing.T) {
	snap := &Snapshot{
		Break:      false,
		BreakTimer: BreakTimerSlice{BreakTimerEventType: "StartTime"},
	}
	if got := snap.Resolve(true); got != DisplayBreak {
		t.Fatalf("Resolve() = %q, want defensive break override", got)
	}
}

func TestCurrentAthleteKeyDeletedWhenOmitted(t *testing.T) {
	s := NewStore()
	s.MergeUpdate(map[string]interface{}{"fop": "A", "uiEvent": "x", "currentAthleteKey": "1"}, time.Unix(0, 0), nil, nil, nil)
	snap := s.MergeUpdate(map[string]interface{}{"fop": "A", "uiEvent": "y"}, time.Unix(1, 0), nil, nil, nil)
	if snap.CurrentAthleteKey != "" {
		t.Fatalf("expected stale currentAthleteKey to be cleared, got %q", snap.CurrentAthleteKey)
	}
}
