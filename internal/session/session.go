// Package session tracks, per field of play, whether the current lifting
// group has finished ("done") or is active, transitioning on the GroupDone
// sentinel and on any subsequent activity.
package session

import (
	"sync"
	"time"
)

// Transition reports an edge crossed by an Apply* call, so the caller can
// decide whether to emit a SESSION_DONE/SESSION_REOPENED event. Transitions
// are never duplicated within a single state.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionDone
	TransitionReopened
)

// Status is the externally visible per-FOP session state.
type Status struct {
	FopName      string
	IsDone       bool
	SessionName  string
	LastActivity time.Time
}

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithClock injects a deterministic clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// Tracker holds the done/active finite state machine for every FOP the hub
// has observed.
type Tracker struct {
	mu       sync.RWMutex
	clock    func() time.Time
	statuses map[string]*Status
}

// NewTracker constructs an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clock:    time.Now,
		statuses: make(map[string]*Status),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) get(fopName string) *Status {
	s, ok := t.statuses[fopName]
	if !ok {
		s = &Status{FopName: fopName}
		t.statuses[fopName] = s
	}
	return s
}

// ApplyUpdate folds an "update" frame's uiEvent/breakType into the FOP's
// session state. A missing uiEvent is treated as activity (reopen), per the
// resolved ambiguity in how the source handles blank-event updates.
func (t *Tracker) ApplyUpdate(fopName, uiEvent, breakType, sessionName string, now time.Time) Transition {
	isGroupDone := uiEvent == "GroupDone" || breakType == "GROUP_DONE"
	return t.apply(fopName, sessionName, isGroupDone, now)
}

// ApplyTimer records a timer event as activity (always a candidate reopen).
func (t *Tracker) ApplyTimer(fopName string, now time.Time) Transition {
	return t.apply(fopName, "", false, now)
}

// ApplyDecision records a decision event as activity (always a candidate reopen).
func (t *Tracker) ApplyDecision(fopName string, now time.Time) Transition {
	return t.apply(fopName, "", false, now)
}

func (t *Tracker) apply(fopName, sessionName string, isGroupDone bool, now time.Time) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(fopName)
	s.LastActivity = now
	if sessionName != "" {
		s.SessionName = sessionName
	}

	switch {
	case !s.IsDone && isGroupDone:
		s.IsDone = true
		return TransitionDone
	case s.IsDone && !isGroupDone:
		s.IsDone = false
		return TransitionReopened
	default:
		return TransitionNone
	}
}

// Status returns a copy of the current status for fopName. Unknown FOPs
// report the zero-value ("not done", no activity yet) per B2.
func (t *Tracker) Status(fopName string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.statuses[fopName]; ok {
		return *s
	}
	return Status{FopName: fopName}
}

// IsDone reports whether fopName's current session has finished.
func (t *Tracker) IsDone(fopName string) bool {
	return t.Status(fopName).IsDone
}

// Now returns the tracker's injected clock's current time.
func (t *Tracker) Now() time.Time {
	return t.clock()
}
