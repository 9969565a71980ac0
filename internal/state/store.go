/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package state keeps a read-only snapshot of external entity state for use
// by schedule expressions. The snapshot is fed by the websocket client and
// queried synchronously during evaluation; expressions never block on I/O.
package state

import (
	"strings"
	"sync"
	"time"
)

// Entity is one entity's last known state.
type Entity struct {
	ID          string
	State       string
	Attributes  map[string]any
	LastChanged time.Time
}

// Provider is the read side consumed by the expression sandbox.
type Provider interface {
	// State returns an entity's state string.
	State(entityID string) (string, bool)
	// Attribute returns a single attribute of an entity.
	Attribute(entityID, attribute string) (any, bool)
	// EntityIDs returns all known entity ids.
	EntityIDs() []string
}

// Store is an in-memory entity state snapshot safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entities map[string]Entity
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{entities: make(map[string]Entity)}
}

// Set records the current state of an entity.
func (s *Store) Set(entity Entity) {
	s.mu.Lock()
	s.entities[entity.ID] = entity
	s.mu.Unlock()
}

// Get returns the full entity record.
func (s *Store) Get(entityID string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[entityID]
	return entity, ok
}

// State implements Provider.
func (s *Store) State(entityID string) (string, bool) {
	entity, ok := s.Get(entityID)
	return entity.State, ok
}

// Attribute implements Provider.
func (s *Store) Attribute(entityID, attribute string) (any, bool) {
	entity, ok := s.Get(entityID)
	if !ok {
		return nil, false
	}
	value, ok := entity.Attributes[attribute]
	return value, ok
}

// EntityIDs implements Provider.
func (s *Store) EntityIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	return ids
}

// Domain extracts the domain part of an entity id ("light.kitchen" ->
// "light"). An id without a dot is its own domain.
func Domain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return entityID
}
