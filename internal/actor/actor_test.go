/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package actor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/state"
)

// captureSink records commands instead of sending them.
type captureSink struct {
	commands []Command
}

func (s *captureSink) CallService(ctx context.Context, cmd Command) error {
	s.commands = append(s.commands, cmd)
	return nil
}

func mustActor(t *testing.T, cfg Config) Actor {
	t.Helper()
	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return a
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Type: "switch"}, zerolog.Nop()); err == nil {
		t.Fatal("missing entity_id should fail")
	}
	if _, err := New(Config{Type: "hologram", EntityID: "x.y"}, zerolog.Nop()); err == nil {
		t.Fatal("unknown type should fail")
	}
	if _, err := New(Config{Type: "thermostat", EntityID: "climate.x",
		Options: map[string]any{"min_temp": 25, "max_temp": 20}}, zerolog.Nop()); err == nil {
		t.Fatal("reversed temp bounds should fail")
	}
}

func TestSwitchValidate(t *testing.T) {
	a := mustActor(t, Config{Type: "switch", EntityID: "switch.fan"})

	tests := []struct {
		in   any
		want any
	}{
		{true, "on"},
		{false, "off"},
		{"on", "on"},
		{"off", "off"},
		{Off, "off"},
	}
	for _, tt := range tests {
		got, err := a.Validate(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("Validate(%v) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := a.Validate(21.5); err == nil {
		t.Fatal("switch should reject numbers")
	}
}

func TestSwitchApply(t *testing.T) {
	a := mustActor(t, Config{Type: "switch", EntityID: "switch.fan"})
	sink := &captureSink{}

	if err := a.Apply(context.Background(), sink, "on"); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(context.Background(), sink, "off"); err != nil {
		t.Fatal(err)
	}
	if len(sink.commands) != 2 {
		t.Fatalf("commands = %+v", sink.commands)
	}
	if sink.commands[0].Service != "turn_on" || sink.commands[1].Service != "turn_off" {
		t.Fatalf("services = %s, %s", sink.commands[0].Service, sink.commands[1].Service)
	}
	if sink.commands[0].Data["entity_id"] != "switch.fan" {
		t.Fatalf("data = %+v", sink.commands[0].Data)
	}
}

func TestThermostatValidate(t *testing.T) {
	a := mustActor(t, Config{Type: "thermostat", EntityID: "climate.living",
		Options: map[string]any{"min_temp": 7, "max_temp": 25, "temp_step": 0.5}})

	tests := []struct {
		in   any
		want any
	}{
		{21.3, 21.5},
		{21.2, 21.0},
		{int64(19), 19.0},
		{30.0, 25.0},
		{2.0, 7.0},
		{Off, Off},
	}
	for _, tt := range tests {
		got, err := a.Validate(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("Validate(%v) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := a.Validate("warm"); err == nil {
		t.Fatal("thermostat should reject strings")
	}
}

func TestThermostatApplyAndReadback(t *testing.T) {
	a := mustActor(t, Config{Type: "thermostat", EntityID: "climate.living"})
	sink := &captureSink{}

	if err := a.Apply(context.Background(), sink, 21.5); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(context.Background(), sink, Off); err != nil {
		t.Fatal(err)
	}
	if len(sink.commands) != 2 {
		t.Fatalf("commands = %+v", sink.commands)
	}
	if sink.commands[0].Domain != "climate" || sink.commands[0].Service != "set_temperature" {
		t.Fatalf("set command = %+v", sink.commands[0])
	}
	if sink.commands[0].Data["temperature"] != 21.5 {
		t.Fatalf("set data = %+v", sink.commands[0].Data)
	}
	if sink.commands[1].Service != "turn_off" {
		t.Fatalf("off command = %+v", sink.commands[1])
	}

	states := state.NewStore()
	states.Set(state.Entity{ID: "climate.living", State: "heat",
		Attributes: map[string]any{"temperature": 21.5}})
	if got, ok := a.CurrentValue(states); !ok || got != 21.5 {
		t.Fatalf("CurrentValue = %v, %v", got, ok)
	}
	states.Set(state.Entity{ID: "climate.living", State: "off"})
	if got, ok := a.CurrentValue(states); !ok || got != Off {
		t.Fatalf("CurrentValue off = %v, %v", got, ok)
	}
}

func TestGenericActor(t *testing.T) {
	a := mustActor(t, Config{Type: "generic", EntityID: "media_player.living",
		Options: map[string]any{
			"service":    "media_player/volume_set",
			"attribute":  "volume_level",
			"state_attr": "volume_level",
		}})
	sink := &captureSink{}

	if err := a.Apply(context.Background(), sink, 0.4); err != nil {
		t.Fatal(err)
	}
	cmd := sink.commands[0]
	if cmd.Domain != "media_player" || cmd.Service != "volume_set" {
		t.Fatalf("command = %+v", cmd)
	}
	if cmd.Data["volume_level"] != 0.4 {
		t.Fatalf("data = %+v", cmd.Data)
	}

	states := state.NewStore()
	states.Set(state.Entity{ID: "media_player.living", State: "playing",
		Attributes: map[string]any{"volume_level": 0.4}})
	if got, ok := a.CurrentValue(states); !ok || got != 0.4 {
		t.Fatalf("CurrentValue = %v, %v", got, ok)
	}

	if _, err := New(Config{Type: "generic", EntityID: "x.y",
		Options: map[string]any{"service": "nodash"}}, zerolog.Nop()); err == nil {
		t.Fatal("malformed service should fail")
	}
}
