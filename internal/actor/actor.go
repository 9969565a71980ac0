/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package actor translates schedule result values into commands for
// external entities and back. Each room owns one actor per controlled
// entity; the actor type decides what values are acceptable and which
// service calls realize them.
package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/state"
)

// Off is the sentinel result value that turns an entity off. It passes
// through the postprocessor chain untouched.
const Off = "OFF"

// ErrInvalidValue rejects a result value an actor cannot realize.
var ErrInvalidValue = errors.New("invalid value for actor")

// Command is one service call to the upstream connection.
type Command struct {
	Domain  string
	Service string
	Data    map[string]any
}

// Sink accepts commands for delivery upstream.
type Sink interface {
	CallService(ctx context.Context, cmd Command) error
}

// Actor realizes schedule values on one entity.
type Actor interface {
	// EntityID returns the controlled entity.
	EntityID() string
	// Validate normalizes a candidate value or rejects it with
	// ErrInvalidValue.
	Validate(value any) (any, error)
	// Apply sends the value to the entity via the sink.
	Apply(ctx context.Context, sink Sink, value any) error
	// CurrentValue derives the value currently in effect from entity
	// state, for deduplication and overlay reverting.
	CurrentValue(states state.Provider) (any, bool)
}

// Config selects and parameterizes an actor.
type Config struct {
	Type     string         `yaml:"type"`
	EntityID string         `yaml:"entity_id"`
	Options  map[string]any `yaml:"options"`
}

// New builds an actor from its configuration.
func New(cfg Config, logger zerolog.Logger) (Actor, error) {
	if cfg.EntityID == "" {
		return nil, fmt.Errorf("actor of type %q: entity_id is required", cfg.Type)
	}
	logger = logger.With().Str("entity", cfg.EntityID).Logger()
	switch cfg.Type {
	case "switch", "":
		return newSwitch(cfg, logger), nil
	case "generic":
		return newGeneric(cfg, logger)
	case "thermostat":
		return newThermostat(cfg, logger)
	}
	return nil, fmt.Errorf("unknown actor type %q", cfg.Type)
}

func optString(options map[string]any, key, def string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optFloat(options map[string]any, key string, def float64) float64 {
	switch v := options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}
