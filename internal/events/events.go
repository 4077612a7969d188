// Package events implements the hub's publish-subscribe bus: synchronous,
// single-writer, FIFO-per-subscriber delivery with a per-(FOP, event-kind)
// debounce window.
package events

import (
	"sync"
	"time"
)

// Kind is the exhaustive set of event kinds the bus carries.
type Kind string

const (
	KindDatabase            Kind = "DATABASE"
	KindUpdate              Kind = "UPDATE"
	KindTimer               Kind = "TIMER"
	KindDecision            Kind = "DECISION"
	KindFlagsLoaded         Kind = "FLAGS_LOADED"
	KindLogosLoaded         Kind = "LOGOS_LOADED"
	KindTranslationsLoaded  Kind = "TRANSLATIONS_LOADED"
	KindDatabaseReady       Kind = "DATABASE_READY"
	KindHubReady            Kind = "HUB_READY"
	KindSessionDone         Kind = "SESSION_DONE"
	KindSessionReopened     Kind = "SESSION_REOPENED"
)

const debounceWindow = 100 * time.Millisecond

// Envelope is one published occurrence.
type Envelope struct {
	Kind        Kind
	FopName     string
	DebounceKey string // for KindUpdate, the uiEvent string; otherwise unused
	Payload     interface{}
	At          time.Time
}

// Clone returns a shallow copy of the envelope, safe to hand to a second
// subscriber without aliasing mutable bus-internal state.
func (e Envelope) Clone() Envelope {
	return e
}

// Handler receives a delivered envelope. Returning an error, or panicking,
// removes the subscriber from the bus; no other subscriber is affected.
type Handler func(Envelope) error

type subscription struct {
	id       uint64
	kind     Kind // "" matches every kind
	oneShot  bool
	handler  Handler
}

// Bus is the hub's single event bus instance.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]*subscription
	lastEmit map[string]time.Time
	clock    func() time.Time

	// onSubscriberCountChanged, if set, is invoked after every subscribe/
	// unsubscribe with the new subscriber count (metrics.Registry.SubscriberCount
	// is wired this way to avoid importing the metrics package here).
	onSubscriberCountChanged func(int)

	// onSubscriberFailure, if set, is invoked with the recovered panic value
	// whenever dispatch isolates a failing subscriber (telemetry.Sink.Recover
	// is wired this way to avoid importing the telemetry package here).
	onSubscriberFailure func(kind Kind, recovered any)
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithClock injects a deterministic clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Bus) { b.clock = clock }
}

// WithSubscriberCountCallback registers a callback invoked whenever the
// subscriber count changes.
func WithSubscriberCountCallback(cb func(int)) Option {
	return func(b *Bus) { b.onSubscriberCountChanged = cb }
}

// WithSubscriberFailureCallback registers a callback invoked whenever a
// subscriber handler panics, alongside the kind it failed while handling.
func WithSubscriberFailureCallback(cb func(kind Kind, recovered any)) Option {
	return func(b *Bus) { b.onSubscriberFailure = cb }
}

// NewBus constructs an empty event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:     make(map[uint64]*subscription),
		lastEmit: make(map[string]time.Time),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a recurring handler for kind ("" for every kind).
// The returned function unsubscribes it.
func (b *Bus) Subscribe(kind Kind, handler Handler) func() {
	return b.subscribe(kind, false, handler)
}

// SubscribeOnce registers a one-shot handler: it fires for the next matching,
// non-debounced occurrence, then auto-unsubscribes.
func (b *Bus) SubscribeOnce(kind Kind, handler Handler) func() {
	return b.subscribe(kind, true, handler)
}

func (b *Bus) subscribe(kind Kind, oneShot bool, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = &subscription{id: id, kind: kind, oneShot: oneShot, handler: handler}
	count := len(b.subs)
	b.mu.Unlock()
	b.notifyCount(count)

	return func() {
		b.mu.Lock()
		_, existed := b.subs[id]
		delete(b.subs, id)
		count := len(b.subs)
		b.mu.Unlock()
		if existed {
			b.notifyCount(count)
		}
	}
}

func (b *Bus) notifyCount(count int) {
	if b.onSubscriberCountChanged != nil {
		b.onSubscriberCountChanged(count)
	}
}

func (b *Bus) debounceKey(env Envelope) string {
	discriminator := string(env.Kind)
	if env.Kind == KindUpdate && env.DebounceKey != "" {
		discriminator = env.DebounceKey
	}
	return env.FopName + "|" + discriminator
}

// Publish delivers env to every matching subscriber, FIFO, on the calling
// goroutine. It returns false without delivering anything if the
// per-(FOP, event-kind) debounce window suppresses this occurrence. A
// one-shot subscriber is removed only after it is actually dispatched to.
func (b *Bus) Publish(env Envelope) bool {
	if env.At.IsZero() {
		env.At = b.clock()
	}

	b.mu.Lock()
	key := b.debounceKey(env)
	if last, ok := b.lastEmit[key]; ok && env.At.Sub(last) < debounceWindow {
		b.mu.Unlock()
		return false
	}
	b.lastEmit[key] = env.At

	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kind == "" || sub.kind == env.Kind {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	var toRemove []uint64
	for _, sub := range targets {
		if !b.dispatch(sub, env) {
			toRemove = append(toRemove, sub.id)
			continue
		}
		if sub.oneShot {
			toRemove = append(toRemove, sub.id)
		}
	}

	if len(toRemove) > 0 {
		b.mu.Lock()
		for _, id := range toRemove {
			delete(b.subs, id)
		}
		count := len(b.subs)
		b.mu.Unlock()
		b.notifyCount(count)
	}
	return true
}

// dispatch invokes sub's handler, isolating panics and errors as a single
// "failed" outcome so one bad subscriber never blocks the others.
func (b *Bus) dispatch(sub *subscription, env Envelope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if b.onSubscriberFailure != nil {
				b.onSubscriberFailure(env.Kind, r)
			}
		}
	}()
	return sub.handler(env.Clone()) == nil
}

// SubscriberCount returns the current number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
