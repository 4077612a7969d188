package events

import (
	"errors"
	"testing"
	"time"
)

func TestPublishDeliversToMatchingSubscribersOnly(t *testing.T) {
	b := NewBus()
	var gotUpdate, gotAny int
	b.Subscribe(KindUpdate, func(Envelope) error { gotUpdate++; return nil })
	b.Subscribe("", func(Envelope) error { gotAny++; return nil })

	b.Publish(Envelope{Kind: KindUpdate, FopName: "A", DebounceKey: "LiftingOrderUpdated"})
	b.Publish(Envelope{Kind: KindTimer, FopName: "A"})

	if gotUpdate != 1 {
		t.Fatalf("gotUpdate = %d, want 1", gotUpdate)
	}
	if gotAny != 2 {
		t.Fatalf("gotAny = %d, want 2", gotAny)
	}
}

func TestPerFopEventKindDebounceWindow(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	b := NewBus(WithClock(clock))

	var count int
	b.Subscribe(KindUpdate, func(Envelope) error { count++; return nil })

	env := Envelope{Kind: KindUpdate, FopName: "A", DebounceKey: "LiftingOrderUpdated"}
	if delivered := b.Publish(env); !delivered {
		t.Fatalf("expected first publish to be delivered")
	}
	now = now.Add(50 * time.Millisecond)
	if delivered := b.Publish(env); delivered {
		t.Fatalf("expected second publish within 100ms window to be suppressed")
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (debounced emission not delivered)", count)
	}

	now = now.Add(100 * time.Millisecond)
	if delivered := b.Publish(env); !delivered {
		t.Fatalf("expected publish after window elapses to be delivered")
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestUpdateDebounceKeyIsUiEventNotKind(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBus(WithClock(func() time.Time { return now }))
	var delivered []string
	b.Subscribe(KindUpdate, func(e Envelope) error { delivered = append(delivered, e.DebounceKey); return nil })

	b.Publish(Envelope{Kind: KindUpdate, FopName: "A", DebounceKey: "LiftingOrderUpdated"})
	b.Publish(Envelope{Kind: KindUpdate, FopName: "A", DebounceKey: "SwitchGroup"})

	if len(delivered) != 2 {
		t.Fatalf("expected both distinct uiEvents to be delivered independently, got %+v", delivered)
	}
}

func TestOneShotSubscriberFiresOnceThenAutoUnsubscribes(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBus(WithClock(func() time.Time { return now }))
	var count int
	b.SubscribeOnce(KindHubReady, func(Envelope) error { count++; return nil })

	b.Publish(Envelope{Kind: KindHubReady, FopName: ""})
	now = now.Add(time.Second)
	b.Publish(Envelope{Kind: KindHubReady, FopName: ""})

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestFailingSubscriberIsRemovedAndOthersStillNotified(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBus(WithClock(func() time.Time { return now }))
	var secondCalled bool
	b.Subscribe(KindDatabaseReady, func(Envelope) error { return errors.New("boom") })
	b.Subscribe(KindDatabaseReady, func(Envelope) error { secondCalled = true; return nil })

	b.Publish(Envelope{Kind: KindDatabaseReady})
	if !secondCalled {
		t.Fatalf("expected second subscriber to still be notified")
	}
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected failing subscriber to be removed, count = %d", b.SubscriberCount())
	}
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBus(WithClock(func() time.Time { return now }))
	b.Subscribe(KindTimer, func(Envelope) error { panic("boom") })

	func() {
		defer func() { recover() }()
		b.Publish(Envelope{Kind: KindTimer})
	}()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected panicking subscriber to be removed, count = %d", b.SubscriberCount())
	}
}

func TestSubscriberFailureCallbackReceivesRecoveredValueAndKind(t *testing.T) {
	var gotKind Kind
	var gotRecovered any
	b := NewBus(WithSubscriberFailureCallback(func(kind Kind, recovered any) {
		gotKind = kind
		gotRecovered = recovered
	}))
	b.Subscribe(KindDecision, func(Envelope) error { panic("boom") })

	func() {
		defer func() { recover() }()
		b.Publish(Envelope{Kind: KindDecision})
	}()

	if gotKind != KindDecision {
		t.Fatalf("kind = %q, want %q", gotKind, KindDecision)
	}
	if gotRecovered != "boom" {
		t.Fatalf("recovered = %v, want %q", gotRecovered, "boom")
	}
}

func TestSubscriberCountCallback(t *testing.T) {
	var last int
	b := NewBus(WithSubscriberCountCallback(func(n int) { last = n }))
	unsub := b.Subscribe(KindTimer, func(Envelope) error { return nil })
	if last != 1 {
		t.Fatalf("last = %d, want 1", last)
	}
	unsub()
	if last != 0 {
		t.Fatalf("last = %d, want 0", last)
	}
}
