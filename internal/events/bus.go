/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events carries the daemon's in-process notifications: upstream
// connectivity, entity state changes and room lifecycle.
package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventStateChanged fires when an external entity changes state.
	EventStateChanged EventType = "state_changed"
	// EventConnected fires when the upstream websocket comes up.
	EventConnected EventType = "connection.up"
	// EventDisconnected fires when the upstream websocket drops.
	EventDisconnected EventType = "connection.down"

	// Room lifecycle events
	EventResultApplied   EventType = "room.result_applied"
	EventResultDropped   EventType = "room.result_dropped"
	EventValueOverride   EventType = "room.value_override"
	EventOverlayStarted  EventType = "room.overlay_started"
	EventOverlayReverted EventType = "room.overlay_reverted"
	EventReevaluation    EventType = "room.reevaluation"
)

// Event is one notification. Fields beyond Type are set where they apply:
// Entity and State for state changes, Room, Value and Trigger for room
// lifecycle events.
type Event struct {
	Type    EventType
	Entity  string
	State   string
	Room    string
	Value   any
	Trigger string
}

// Subscription receives matching events on C until Close is called.
type Subscription struct {
	C     chan Event
	types map[EventType]struct{}
	bus   *Bus
}

// Bus fans events out to subscriptions. Delivery is best-effort: a
// subscription that falls behind loses events rather than stalling the
// publisher.
type Bus struct {
	mu   sync.RWMutex
	subs []*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers interest in the given event types. With no types the
// subscription receives every event.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	sub := &Subscription{C: make(chan Event, 16), bus: b}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers the event to interested subscriptions. Sends happen under
// the read lock and Close takes the write lock before closing a channel, so
// a send can never hit a closed channel.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
		}
	}
}

func (s *Subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Close detaches the subscription and closes its channel. Closing twice is a
// no-op.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.C)
			return
		}
	}
}
