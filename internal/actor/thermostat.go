/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package actor

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/state"
)

// Thermostat controls climate entities. Values are target temperatures; the
// Off sentinel turns the climate entity off. Options:
//
//	min_temp, max_temp: clamp bounds for targets (default 7 / 30)
//	temp_step:          rounding step for targets (default 0.5)
//	off_is_min:         send min_temp instead of turning off (default false)
type Thermostat struct {
	entityID string
	minTemp  float64
	maxTemp  float64
	tempStep float64
	offIsMin bool
	logger   zerolog.Logger
}

func newThermostat(cfg Config, logger zerolog.Logger) (*Thermostat, error) {
	a := &Thermostat{
		entityID: cfg.EntityID,
		minTemp:  optFloat(cfg.Options, "min_temp", 7),
		maxTemp:  optFloat(cfg.Options, "max_temp", 30),
		tempStep: optFloat(cfg.Options, "temp_step", 0.5),
		offIsMin: cfg.Options["off_is_min"] == true,
		logger:   logger,
	}
	if a.minTemp >= a.maxTemp {
		return nil, fmt.Errorf("thermostat %s: min_temp %v must be below max_temp %v",
			cfg.EntityID, a.minTemp, a.maxTemp)
	}
	if a.tempStep <= 0 {
		return nil, fmt.Errorf("thermostat %s: temp_step must be positive", cfg.EntityID)
	}
	return a, nil
}

func (a *Thermostat) EntityID() string { return a.entityID }

// Validate clamps numeric targets to the configured bounds and rounds them
// to the step. The Off sentinel passes through.
func (a *Thermostat) Validate(value any) (any, error) {
	if value == Off {
		if a.offIsMin {
			return a.minTemp, nil
		}
		return Off, nil
	}
	temp, ok := toFloat(value)
	if !ok {
		return nil, fmt.Errorf("%w: thermostat cannot realize %v", ErrInvalidValue, value)
	}
	temp = math.Round(temp/a.tempStep) * a.tempStep
	if temp < a.minTemp {
		temp = a.minTemp
	} else if temp > a.maxTemp {
		temp = a.maxTemp
	}
	return temp, nil
}

func (a *Thermostat) Apply(ctx context.Context, sink Sink, value any) error {
	if value == Off {
		a.logger.Debug().Msg("turning climate entity off")
		return sink.CallService(ctx, Command{
			Domain:  "climate",
			Service: "turn_off",
			Data:    map[string]any{"entity_id": a.entityID},
		})
	}
	temp, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("%w: thermostat cannot realize %v", ErrInvalidValue, value)
	}
	a.logger.Debug().Float64("temperature", temp).Msg("setting target temperature")
	return sink.CallService(ctx, Command{
		Domain:  "climate",
		Service: "set_temperature",
		Data:    map[string]any{"entity_id": a.entityID, "temperature": temp},
	})
}

// CurrentValue reads the target temperature back, or Off when the climate
// entity reports itself off.
func (a *Thermostat) CurrentValue(states state.Provider) (any, bool) {
	s, ok := states.State(a.entityID)
	if !ok {
		return nil, false
	}
	if s == "off" {
		return Off, true
	}
	raw, ok := states.Attribute(a.entityID, "temperature")
	if !ok {
		return nil, false
	}
	temp, ok := toFloat(raw)
	if !ok {
		return nil, false
	}
	return temp, true
}
