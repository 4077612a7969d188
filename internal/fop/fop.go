// Package fop folds successive update/timer/decision frames into a single
// per-platform ("field of play") snapshot, preserving timer/decision/break
// state across unrelated updates and bumping a version counter on every
// update frame.
package fop

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/owlcms/competition-hub/internal/athlete"
)

// DisplayMode is the "what to show" reduction computed on demand.
type DisplayMode string

const (
	DisplayDecision DisplayMode = "decision"
	DisplayBreak    DisplayMode = "break"
	DisplayAthlete  DisplayMode = "athlete"
	DisplayNone     DisplayMode = "none"
)

// TimerSlice is the athlete-clock portion of a FOP snapshot.
type TimerSlice struct {
	AthleteTimerEventType  string
	AthleteMillisRemaining int64
	AthleteStartTimeMillis int64
	TimeAllowed            int64
}

// BreakTimerSlice is the break-clock portion. A Pause event clears the
// remaining/start fields, per the wire contract.
type BreakTimerSlice struct {
	BreakTimerEventType  string
	BreakMillisRemaining int64
	BreakStartTimeMillis int64
}

// DecisionSlice is the referee-decision portion. D1/D2/D3 are tristate:
// nil = undecided, true = good, false = no-lift.
type DecisionSlice struct {
	DecisionEventType string
	DecisionsVisible  bool
	D1                *bool
	D2                *bool
	D3                *bool
	Down              bool
}

// OrderEntry is one row of a start-order or lifting-order sequence: either an
// athlete key or a spacer sentinel (category spacer in start order, lift-type
// spacer in lifting order).
type OrderEntry struct {
	AthleteKey string
	IsSpacer   bool
	ClassName  string // "current" | "next" | ""
}

// Snapshot is one platform's merged, denormalized state.
type Snapshot struct {
	FopName            string
	CurrentAthleteKey  string
	NextAthleteKey     string
	PreviousAthleteKey string
	UIEvent            string
	FopState           string
	Break              bool
	BreakType          string
	Mode               string

	StartOrderKeys   []OrderEntry
	LiftingOrderKeys []OrderEntry
	SessionAthletes  []*athlete.Athlete

	Timer      TimerSlice
	BreakTimer BreakTimerSlice
	Decision   DecisionSlice

	LastUpdate     time.Time
	LastDataUpdate time.Time
	Version        uint64
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return &Snapshot{}
	}
	c := *s
	c.StartOrderKeys = append([]OrderEntry(nil), s.StartOrderKeys...)
	c.LiftingOrderKeys = append([]OrderEntry(nil), s.LiftingOrderKeys...)
	c.SessionAthletes = append([]*athlete.Athlete(nil), s.SessionAthletes...)
	return &c
}

// AthleteMerger folds a freshly normalized session athlete back into the
// database's athlete index. Injected rather than imported to keep this
// package decoupled from internal/database.
type AthleteMerger func(a *athlete.Athlete)

// Store holds the current snapshot for every FOP the hub has seen.
type Store struct {
	mu   sync.RWMutex
	fops map[string]*Snapshot
}

// NewStore returns an empty FOP store.
func NewStore() *Store {
	return &Store{fops: make(map[string]*Snapshot)}
}

// Names returns every FOP name the store has observed, database-confirmed or
// update-discovered.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.fops))
	for name := range s.fops {
		names = append(names, name)
	}
	return names
}

// Ensure makes sure a (possibly empty) snapshot exists for fopName, used when
// the database assembler confirms a FOP list before any update has arrived.
func (s *Store) Ensure(fopName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fops[fopName]; !ok {
		s.fops[fopName] = &Snapshot{FopName: fopName}
	}
}

// BumpAllVersions increments the version counter of every known FOP and
// stamps LastDataUpdate with now, used after a database commit confirms
// fresh data even though no update/timer/decision frame accompanied it.
func (s *Store) BumpAllVersions(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, snap := range s.fops {
		next := snap.clone()
		next.FopName = name
		next.Version = snap.versionOrZero() + 1
		next.LastDataUpdate = now
		s.fops[name] = next
	}
}

// Snapshot returns the current snapshot for fopName, or nil if unknown.
func (s *Store) Snapshot(fopName string) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fops[fopName]
}

// ResolveFopName extracts the FOP name a frame targets, defaulting to the
// inferred singleton "A" when the producer omits both fop and fopName.
func ResolveFopName(payload map[string]interface{}) string {
	return resolveFopName(payload)
}

func resolveFopName(payload map[string]interface{}) string {
	if v, ok := payload["fop"].(string); ok && v != "" {
		return v
	}
	if v, ok := payload["fopName"].(string); ok && v != "" {
		return v
	}
	return "A"
}

// jsonStringFields lists payload keys that are occasionally delivered as a
// JSON-encoded string rather than the native object/array.
var jsonStringFields = []string{
	"sessionAthletes", "startOrderKeys", "liftingOrderKeys",
	"startOrderAthletes", "liftingOrderAthletes", "leaders", "records",
}

// normalizeEmbeddedJSON returns a copy of payload in which any of
// jsonStringFields that arrived as a string is replaced by its decoded form.
func normalizeEmbeddedJSON(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	for _, key := range jsonStringFields {
		raw, ok := out[key].(string)
		if !ok || raw == "" {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			out[key] = decoded
		}
	}
	return out
}

func parseOrderKeys(v interface{}) []OrderEntry {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	entries := make([]OrderEntry, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			entries = append(entries, OrderEntry{AthleteKey: t})
		case map[string]interface{}:
			if spacer, ok := t["isSpacer"].(bool); ok && spacer {
				entries = append(entries, OrderEntry{IsSpacer: true})
				continue
			}
			key := ""
			if av, ok := t["athleteKey"]; ok && av != nil {
				key = toDisplayString(av)
			}
			entries = append(entries, OrderEntry{AthleteKey: key})
		}
	}
	return entries
}

func toDisplayString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func classifyOrder(entries []OrderEntry, current, next string) []OrderEntry {
	out := make([]OrderEntry, len(entries))
	for i, e := range entries {
		if e.ClassName == "" && !e.IsSpacer {
			switch e.AthleteKey {
			case current:
				e.ClassName = "current"
			case next:
				e.ClassName = "next"
			}
		}
		out[i] = e
	}
	return out
}

// MergeUpdate folds an "update" frame into the FOP snapshot, rebuilds the
// denormalized session-athlete view, and bumps the version counter.
func (s *Store) MergeUpdate(payload map[string]interface{}, now time.Time, teamLookup athlete.TeamNameLookup, categoryLookup athlete.CategoryNameLookup, merger AthleteMerger) *Snapshot {
	fopName := resolveFopName(payload)
	payload = normalizeEmbeddedJSON(payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.fops[fopName]
	next := prev.clone()
	next.FopName = fopName

	applyCommonFields(next, payload)
	next.LastUpdate = now
	next.LastDataUpdate = now

	if sessionRaw, ok := payload["sessionAthletes"].([]interface{}); ok {
		athletes := make([]*athlete.Athlete, 0, len(sessionRaw))
		for _, raw := range sessionRaw {
			m, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			a := athlete.Normalize(m, teamLookup, categoryLookup)
			athletes = append(athletes, a)
			if merger != nil {
				merger(a)
			}
		}
		next.SessionAthletes = athletes
	}

	if v, ok := payload["startOrderKeys"]; ok {
		next.StartOrderKeys = classifyOrder(parseOrderKeys(v), next.CurrentAthleteKey, next.NextAthleteKey)
	}
	if v, ok := payload["liftingOrderKeys"]; ok {
		next.LiftingOrderKeys = classifyOrder(parseOrderKeys(v), next.CurrentAthleteKey, next.NextAthleteKey)
	}

	next.Version = prev.versionOrZero() + 1

	s.fops[fopName] = next
	return next
}

func (s *Snapshot) versionOrZero() uint64 {
	if s == nil {
		return 0
	}
	return s.Version
}

// MergeTimer folds a "timer" frame: athlete-clock or break-clock fields only.
// lastDataUpdate is deliberately left unchanged.
func (s *Store) MergeTimer(payload map[string]interface{}, now time.Time) *Snapshot {
	fopName := resolveFopName(payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.fops[fopName]
	next := prev.clone()
	next.FopName = fopName
	next.LastUpdate = now

	if v, ok := payload["athleteTimerEventType"].(string); ok {
		next.Timer.AthleteTimerEventType = v
		next.Timer.AthleteMillisRemaining = int64OrZero(payload["athleteMillisRemaining"])
		next.Timer.AthleteStartTimeMillis = int64OrZero(payload["athleteStartTimeMillis"])
		next.Timer.TimeAllowed = int64OrZero(payload["timeAllowed"])
	}
	if v, ok := payload["breakTimerEventType"].(string); ok {
		if v == "Pause" {
			next.BreakTimer = BreakTimerSlice{BreakTimerEventType: "Pause"}
		} else {
			next.BreakTimer.BreakTimerEventType = v
			next.BreakTimer.BreakMillisRemaining = int64OrZero(payload["breakMillisRemaining"])
			next.BreakTimer.BreakStartTimeMillis = int64OrZero(payload["breakStartTimeMillis"])
		}
	}

	s.fops[fopName] = next
	return next
}

// MergeDecision folds a "decision" frame: decision slice only.
func (s *Store) MergeDecision(payload map[string]interface{}, now time.Time) *Snapshot {
	fopName := resolveFopName(payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.fops[fopName]
	next := prev.clone()
	next.FopName = fopName
	next.LastUpdate = now

	if v, ok := payload["decisionEventType"].(string); ok {
		next.Decision.DecisionEventType = v
	}
	if v, ok := payload["decisionsVisible"].(bool); ok {
		next.Decision.DecisionsVisible = v
	}
	if v, ok := payload["down"].(bool); ok {
		next.Decision.Down = v
	}
	next.Decision.D1 = tristate(payload["d1"])
	next.Decision.D2 = tristate(payload["d2"])
	next.Decision.D3 = tristate(payload["d3"])

	s.fops[fopName] = next
	return next
}

func tristate(v interface{}) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func int64OrZero(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

// applyCommonFields copies the scalar fields an "update" payload may carry,
// deleting a stale currentAthleteKey when the new payload omits it (prevents
// ghost-current).
func applyCommonFields(next *Snapshot, payload map[string]interface{}) {
	if v, ok := payload["uiEvent"].(string); ok {
		next.UIEvent = v
	} else {
		next.UIEvent = ""
	}
	if v, ok := payload["fopState"].(string); ok {
		next.FopState = v
	}
	if v, ok := payload["break"].(bool); ok {
		next.Break = v
	}
	if v, ok := payload["breakType"].(string); ok {
		next.BreakType = v
	}
	if v, ok := payload["mode"].(string); ok {
		next.Mode = v
	}
	if v, ok := payload["currentAthleteKey"]; ok && v != nil {
		next.CurrentAthleteKey = toDisplayString(v)
	} else {
		next.CurrentAthleteKey = ""
	}
	if v, ok := payload["nextAthleteKey"]; ok && v != nil {
		next.NextAthleteKey = toDisplayString(v)
	}
	if v, ok := payload["previousAthleteKey"]; ok && v != nil {
		next.PreviousAthleteKey = toDisplayString(v)
	}
}

// Resolve computes the display-mode reduction for the current snapshot.
// sessionDone comes from the session lifecycle tracker, which this package
// does not depend on.
func (s *Snapshot) Resolve(sessionDone bool) DisplayMode {
	if s == nil {
		return DisplayNone
	}
	decisionVisible := s.Decision.DecisionsVisible || s.Decision.DecisionEventType == "DOWN_SIGNAL"
	if decisionVisible {
		return DisplayDecision
	}

	breakTimerRunning := s.BreakTimer.BreakTimerEventType == "StartTime"
	if breakTimerRunning {
		//1.- Defensive override: a running break timer forces break display
		// even if other flags disagree, as long as no decision is visible.
		return DisplayBreak
	}

	breakPaused := s.BreakTimer.BreakTimerEventType == "Pause"
	athleteTimerStarting := s.Timer.AthleteTimerEventType == "StartTime"
	if s.Break && !breakPaused && !athleteTimerStarting && !sessionDone {
		return DisplayBreak
	}

	if s.CurrentAthleteKey != "" && s.Timer.AthleteTimerEventType != "" {
		return DisplayAthlete
	}
	return DisplayNone
}

// InterruptionLabel returns the literal countdown replacement text for the
// INTERRUPTION special case, localized for Norwegian, or "" when not
// applicable.
func (s *Snapshot) InterruptionLabel(locale string) string {
	if s == nil || s.Mode != "INTERRUPTION" {
		return ""
	}
	if locale == "no" || locale == "nb" || locale == "nn" {
		return "STOPP"
	}
	return "STOP"
}

// despacered returns the athlete keys of entries, skipping spacers.
func despacered(entries []OrderEntry) []string {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsSpacer {
			continue
		}
		keys = append(keys, e.AthleteKey)
	}
	return keys
}

// CurrentNextPrevious resolves the current/next/previous athlete keys,
// preferring explicit keys on the snapshot and falling back to the
// despacered lifting-order neighbors of CurrentAthleteKey.
func (s *Snapshot) CurrentNextPrevious() (current, next, previous string) {
	if s == nil {
		return "", "", ""
	}
	current = s.CurrentAthleteKey
	next = s.NextAthleteKey
	previous = s.PreviousAthleteKey
	if current == "" {
		return
	}
	keys := despacered(s.LiftingOrderKeys)
	idx := -1
	for i, k := range keys {
		if k == current {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	if next == "" && idx+1 < len(keys) {
		next = keys[idx+1]
	}
	if previous == "" && idx-1 >= 0 {
		previous = keys[idx-1]
	}
	return
}
