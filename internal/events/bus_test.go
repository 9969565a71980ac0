/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestPublishReachesMatchingSubscriptions(t *testing.T) {
	bus := NewBus()
	stateSub := bus.Subscribe(EventStateChanged)
	allSub := bus.Subscribe()

	bus.Publish(Event{Type: EventStateChanged, Entity: "light.kitchen", State: "on"})
	select {
	case ev := <-stateSub.C:
		if ev.Entity != "light.kitchen" || ev.State != "on" {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatal("expected an event")
	}

	// other event types do not leak into a typed subscription
	bus.Publish(Event{Type: EventResultApplied, Room: "living", Value: 21.5})
	select {
	case ev := <-stateSub.C:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	// an untyped subscription sees everything
	if got := len(allSub.C); got != 2 {
		t.Fatalf("untyped subscription buffered %d events", got)
	}
}

func TestPublishDropsWhenSubscriptionFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventReevaluation)

	for i := 0; i < 40; i++ {
		bus.Publish(Event{Type: EventReevaluation, Room: "living"})
	}
	if got := len(sub.C); got != cap(sub.C) {
		t.Fatalf("buffered = %d, want %d", got, cap(sub.C))
	}
}

func TestCloseDetachesSubscription(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventConnected)
	sub.Close()

	if _, ok := <-sub.C; ok {
		t.Fatal("channel should be closed")
	}
	// publishing after close must not panic, closing twice must not panic
	bus.Publish(Event{Type: EventConnected})
	sub.Close()
}

func TestCloseDuringPublish(t *testing.T) {
	bus := NewBus()
	subs := make([]*Subscription, 32)
	for i := range subs {
		subs[i] = bus.Subscribe(EventReevaluation)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Type: EventReevaluation})
		}
	}()
	for _, sub := range subs {
		sub.Close()
	}
	<-done
}
