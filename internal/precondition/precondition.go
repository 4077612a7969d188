// Package precondition computes which upstream data the hub still needs
// before it can safely process further frames, and negotiates that with the
// producer via 428/202 response envelopes, debounced against a request
// storm.
package precondition

import (
	"sync"
	"time"
)

const (
	// requestDebounceWindow bounds how often a 428 re-requests the database:
	// once requested, subsequent data frames get a 202 "already asked" reply.
	requestDebounceWindow = 1000 * time.Millisecond
	// databaseZipGrace is how long an empty database text frame may wait for
	// its accompanying database_zip binary frame before the pending flag is
	// dropped and a fresh request is warranted.
	databaseZipGrace = 5 * time.Second
)

// Result is the negotiation outcome for one incoming frame.
type Result struct {
	OK      bool
	Status  int
	Reason  string
	Missing []string
	Retry   bool
}

// PluginResult is the outcome of a subscriber-initiated resource request.
type PluginResult struct {
	Status  int
	Reason  string
	Missing []string
}

// Negotiator tracks required-precondition state and the debounce/pairing
// timers layered on top of it.
type Negotiator struct {
	mu sync.Mutex

	clock func() time.Time

	lastDatabaseRequest time.Time
	requested           bool

	databaseZipPending  bool
	databaseZipDeadline time.Time
}

// Option configures a Negotiator at construction time.
type Option func(*Negotiator)

// WithClock injects a deterministic clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(n *Negotiator) { n.clock = clock }
}

// NewNegotiator constructs a negotiator with no pending requests.
func NewNegotiator(opts ...Option) *Negotiator {
	n := &Negotiator{clock: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Reset clears all pending-request and debounce state, used alongside the
// connection lifecycle's first-connection/disconnect resets.
func (n *Negotiator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = false
	n.lastDatabaseRequest = time.Time{}
	n.databaseZipPending = false
	n.databaseZipDeadline = time.Time{}
}

// Missing computes the always-required preconditions still unmet.
// flags_zip/logos_zip/pictures_zip are never included: they are requested
// on-demand by subscribers, not auto-required.
func Missing(databaseReady, translationsReady bool) []string {
	var missing []string
	if !databaseReady {
		missing = append(missing, "database")
	}
	if !translationsReady {
		missing = append(missing, "translations_zip")
	}
	return missing
}

// Evaluate inspects the hub's current readiness and returns the envelope the
// connection layer should send in response to the just-merged frame.
func (n *Negotiator) Evaluate(databaseReady, translationsReady bool) Result {
	missing := Missing(databaseReady, translationsReady)
	if len(missing) == 0 {
		n.mu.Lock()
		n.requested = false
		n.mu.Unlock()
		return Result{OK: true}
	}

	now := n.clock()
	n.mu.Lock()
	defer n.mu.Unlock()

	if !databaseReady && n.requested && now.Sub(n.lastDatabaseRequest) < requestDebounceWindow {
		return Result{Status: 202, Reason: "waiting_for_database", Retry: true}
	}

	if !databaseReady {
		n.requested = true
		n.lastDatabaseRequest = now
	}
	return Result{Status: 428, Reason: "missing_preconditions", Missing: missing}
}

// RequestResources handles a subscriber-initiated requestPluginPreconditions
// call. Without an active producer connection it is a no-op (the caller
// should just log it); with one, it returns the 428 envelope to send.
func (n *Negotiator) RequestResources(resources []string, connected bool) *PluginResult {
	if !connected {
		return nil
	}
	return &PluginResult{Status: 428, Reason: "plugin_preconditions", Missing: resources}
}

// BeginDatabasePending starts the 5s grace window between an empty database
// text frame and its accompanying database_zip binary frame.
func (n *Negotiator) BeginDatabasePending(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.databaseZipPending = true
	n.databaseZipDeadline = now.Add(databaseZipGrace)
}

// DatabaseZipArrived clears the pending flag and reports whether the zip
// arrived within the grace window.
func (n *Negotiator) DatabaseZipArrived(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	wasPending := n.databaseZipPending
	onTime := wasPending && !now.After(n.databaseZipDeadline)
	n.databaseZipPending = false
	n.databaseZipDeadline = time.Time{}
	return !wasPending || onTime
}

// CheckDatabasePendingExpired reports whether the grace window has elapsed
// without the database_zip arriving, clearing the pending flag so the next
// database text frame can re-arm it.
func (n *Negotiator) CheckDatabasePendingExpired(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.databaseZipPending || !now.After(n.databaseZipDeadline) {
		return false
	}
	n.databaseZipPending = false
	n.databaseZipDeadline = time.Time{}
	return true
}
