/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package actor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/state"
)

// Switch controls on/off entities (switches, lights, input booleans).
type Switch struct {
	entityID string
	logger   zerolog.Logger
}

func newSwitch(cfg Config, logger zerolog.Logger) *Switch {
	return &Switch{entityID: cfg.EntityID, logger: logger}
}

func (a *Switch) EntityID() string { return a.entityID }

// Validate accepts booleans and the on/off strings.
func (a *Switch) Validate(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return "on", nil
		}
		return "off", nil
	case string:
		switch v {
		case "on", "off":
			return v, nil
		case Off:
			return "off", nil
		}
	}
	return nil, fmt.Errorf("%w: switch cannot realize %v", ErrInvalidValue, value)
}

func (a *Switch) Apply(ctx context.Context, sink Sink, value any) error {
	service := "turn_off"
	if value == "on" {
		service = "turn_on"
	}
	a.logger.Debug().Str("service", service).Msg("switching entity")
	return sink.CallService(ctx, Command{
		Domain:  "homeassistant",
		Service: service,
		Data:    map[string]any{"entity_id": a.entityID},
	})
}

func (a *Switch) CurrentValue(states state.Provider) (any, bool) {
	s, ok := states.State(a.entityID)
	if !ok || (s != "on" && s != "off") {
		return nil, false
	}
	return s, true
}
