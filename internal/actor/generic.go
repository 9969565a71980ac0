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

// Generic sets an arbitrary entity attribute through a configured service.
// Options:
//
//	service:   "<domain>/<service>" to call (default "homeassistant/turn_on")
//	attribute: service data key carrying the value (default "value")
//	state_attr: entity attribute to read the current value back from
//	            (default: the entity's state string)
type Generic struct {
	entityID  string
	domain    string
	service   string
	attribute string
	stateAttr string
	logger    zerolog.Logger
}

func newGeneric(cfg Config, logger zerolog.Logger) (*Generic, error) {
	service := optString(cfg.Options, "service", "homeassistant/turn_on")
	domain, name, ok := splitService(service)
	if !ok {
		return nil, fmt.Errorf("generic actor %s: service %q must be domain/service", cfg.EntityID, service)
	}
	return &Generic{
		entityID:  cfg.EntityID,
		domain:    domain,
		service:   name,
		attribute: optString(cfg.Options, "attribute", "value"),
		stateAttr: optString(cfg.Options, "state_attr", ""),
		logger:    logger,
	}, nil
}

func splitService(s string) (domain, name string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:], s[:i] != "" && s[i+1:] != ""
		}
	}
	return "", "", false
}

func (a *Generic) EntityID() string { return a.entityID }

// Validate accepts any scalar.
func (a *Generic) Validate(value any) (any, error) {
	switch value.(type) {
	case bool, string, int, int64, float64:
		return value, nil
	}
	return nil, fmt.Errorf("%w: generic actor cannot realize %T", ErrInvalidValue, value)
}

func (a *Generic) Apply(ctx context.Context, sink Sink, value any) error {
	data := map[string]any{"entity_id": a.entityID}
	if value != Off {
		data[a.attribute] = value
	}
	a.logger.Debug().Str("service", a.domain+"/"+a.service).Interface("value", value).
		Msg("applying value")
	return sink.CallService(ctx, Command{Domain: a.domain, Service: a.service, Data: data})
}

func (a *Generic) CurrentValue(states state.Provider) (any, bool) {
	if a.stateAttr != "" {
		return states.Attribute(a.entityID, a.stateAttr)
	}
	s, ok := states.State(a.entityID)
	if !ok {
		return nil, false
	}
	return s, true
}
