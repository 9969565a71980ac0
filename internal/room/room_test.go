/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/actor"
	"github.com/friendsincode/hearth/internal/config"
	"github.com/friendsincode/hearth/internal/state"
)

const roomSchedule = `
rooms:
  living:
    actors:
      - type: thermostat
        entity_id: climate.living
    watched_entities:
      - binary_sensor.window
    schedule:
      - name: morning
        value: 21.0
        start: "08:00"
        end: "12:00"
      - name: boost
        x: Mark(22.0, OVERLAY, OVERLAY_REVERT_ON_NO_RESULT)
        start: "12:00"
        end: "14:00"
`

type captureSink struct {
	commands []actor.Command
}

func (s *captureSink) CallService(ctx context.Context, cmd actor.Command) error {
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *captureSink) lastTemp(t *testing.T) float64 {
	t.Helper()
	if len(s.commands) == 0 {
		t.Fatal("no commands sent")
	}
	cmd := s.commands[len(s.commands)-1]
	temp, ok := cmd.Data["temperature"].(float64)
	if !ok {
		t.Fatalf("last command = %+v", cmd)
	}
	return temp
}

// testRoom builds a room service with a controllable clock. Moving the
// returned pointer moves the service's idea of now.
func testRoom(t *testing.T) (*Service, *captureSink, *time.Time) {
	t.Helper()
	file, err := config.ParseSchedule([]byte(roomSchedule))
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	states := state.NewStore()
	plans, err := file.BuildRooms(states, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildRooms: %v", err)
	}

	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	svc := New(plans[0], Deps{
		States:   states,
		Sink:     sink,
		Logger:   zerolog.Nop(),
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	return svc, sink, &now
}

func TestEvaluateAppliesScheduleValue(t *testing.T) {
	svc, sink, _ := testRoom(t)

	result := svc.Evaluate(context.Background(), "test")
	if result == nil || result.Value != 21.0 {
		t.Fatalf("result = %+v", result)
	}
	if got := sink.lastTemp(t); got != 21.0 {
		t.Fatalf("applied temperature = %v", got)
	}

	snap := svc.Snapshot()
	if snap.Value != 21.0 || snap.OverlayActive || snap.Override != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.NextChange.IsZero() {
		t.Fatal("expected a next change instant")
	}
}

func TestOverlayStartsAndReverts(t *testing.T) {
	svc, sink, now := testRoom(t)
	ctx := context.Background()

	svc.Evaluate(ctx, "test")

	// into the overlay window
	*now = time.Date(2026, 8, 26, 13, 0, 0, 0, time.UTC)
	svc.Evaluate(ctx, "test")
	if got := sink.lastTemp(t); got != 22.0 {
		t.Fatalf("overlay temperature = %v", got)
	}
	if snap := svc.Snapshot(); !snap.OverlayActive {
		t.Fatal("overlay should be active")
	}

	// past every window: the overlay reverts to the pre-overlay value
	*now = time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC)
	if result := svc.Evaluate(ctx, "test"); result != nil {
		t.Fatalf("result = %+v", result)
	}
	if got := sink.lastTemp(t); got != 21.0 {
		t.Fatalf("reverted temperature = %v", got)
	}
	if snap := svc.Snapshot(); snap.OverlayActive || snap.Value != 21.0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestOverlayEndsOnPlainResult(t *testing.T) {
	svc, sink, now := testRoom(t)
	ctx := context.Background()

	*now = time.Date(2026, 8, 26, 13, 0, 0, 0, time.UTC)
	svc.Evaluate(ctx, "test")
	if snap := svc.Snapshot(); !snap.OverlayActive {
		t.Fatal("overlay should be active")
	}

	// the next morning's rule carries no overlay marker
	*now = time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	svc.Evaluate(ctx, "test")
	if snap := svc.Snapshot(); snap.OverlayActive {
		t.Fatal("overlay should have ended")
	}
	if got := sink.lastTemp(t); got != 21.0 {
		t.Fatalf("temperature = %v", got)
	}
}

func TestManualOverride(t *testing.T) {
	svc, sink, _ := testRoom(t)
	ctx := context.Background()

	svc.Evaluate(ctx, "test")
	if err := svc.SetValueManually(ctx, 18.7); err != nil {
		t.Fatalf("SetValueManually: %v", err)
	}
	// the thermostat rounds to its step
	if got := sink.lastTemp(t); got != 18.5 {
		t.Fatalf("override temperature = %v", got)
	}

	// schedule evaluations do not displace the override
	sent := len(sink.commands)
	svc.Evaluate(ctx, "test")
	if len(sink.commands) != sent {
		t.Fatalf("override should block the schedule, commands = %+v", sink.commands)
	}
	if snap := svc.Snapshot(); snap.Override != 18.5 {
		t.Fatalf("snapshot = %+v", snap)
	}

	svc.ClearOverride(ctx)
	if snap := svc.Snapshot(); snap.Override != nil || snap.Value != 21.0 {
		t.Fatalf("snapshot after clear = %+v", snap)
	}
	if got := sink.lastTemp(t); got != 21.0 {
		t.Fatalf("temperature after clear = %v", got)
	}

	if err := svc.SetValueManually(ctx, "tropical"); err == nil {
		t.Fatal("actor should reject the value")
	}
}

func TestHandleStateChanged(t *testing.T) {
	svc, _, now := testRoom(t)
	ctx := context.Background()

	svc.HandleStateChanged(ctx, "binary_sensor.window")
	first := svc.Snapshot().LastEvaluated
	if first.IsZero() {
		t.Fatal("watched entity should trigger an evaluation")
	}

	*now = now.Add(time.Hour)
	svc.HandleStateChanged(ctx, "light.unrelated")
	if got := svc.Snapshot().LastEvaluated; !got.Equal(first) {
		t.Fatal("unwatched entity should not trigger an evaluation")
	}
}
