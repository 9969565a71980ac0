/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package room drives scheduling for one room: it evaluates the room's
// schedule at the right moments, reconciles the result with overlays and
// manual overrides, and pushes the wanted value to the room's actors.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/actor"
	"github.com/friendsincode/hearth/internal/config"
	"github.com/friendsincode/hearth/internal/events"
	"github.com/friendsincode/hearth/internal/schedule"
	"github.com/friendsincode/hearth/internal/state"
	"github.com/friendsincode/hearth/internal/storage"
	"github.com/friendsincode/hearth/internal/telemetry"
)

// Deps are the shared collaborators a room service needs.
type Deps struct {
	States   state.Provider
	Sink     actor.Sink
	Store    *storage.Store
	Bus      *events.Bus
	Logger   zerolog.Logger
	Location *time.Location
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Status is a snapshot of a room for the API.
type Status struct {
	Name            string    `json:"name"`
	Value           any       `json:"value"`
	Markers         []string  `json:"markers,omitempty"`
	OverlayActive   bool      `json:"overlay_active"`
	Override        any       `json:"override,omitempty"`
	LastEvaluated   time.Time `json:"last_evaluated,omitempty"`
	NextChange      time.Time `json:"next_change,omitempty"`
	WatchedEntities []string  `json:"watched_entities,omitempty"`
}

// Service manages one room.
type Service struct {
	plan      *config.RoomPlan
	deps      Deps
	evaluator *schedule.Evaluator
	logger    zerolog.Logger
	now       func() time.Time

	mu            sync.Mutex
	wanted        any
	markers       []string
	overlayActive bool
	overlayRevert any
	revertOnEmpty bool
	override      any
	lastEvaluated time.Time
	debounce      *time.Timer
}

// New builds the service and restores persisted state. The first actor's
// validation shapes the evaluator's value domain; each actor still validates
// again before applying.
func New(plan *config.RoomPlan, deps Deps) *Service {
	logger := deps.Logger.With().Str("room", plan.Name).Logger()
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	opts := schedule.EvaluatorOptions{OffValue: actor.Off}
	if len(plan.Actors) > 0 {
		opts.Validate = plan.Actors[0].Validate
	}
	s := &Service{
		plan:      plan,
		deps:      deps,
		evaluator: schedule.NewEvaluator(logger, opts),
		logger:    logger,
		now:       now,
	}
	s.restore()
	return s
}

func (s *Service) restore() {
	if s.deps.Store == nil {
		return
	}
	persisted, ok, err := s.deps.Store.LoadRoom(s.plan.Name)
	if err != nil {
		s.logger.Error().Err(err).Msg("restoring room state failed")
		return
	}
	if !ok {
		return
	}
	s.wanted = persisted.Value
	s.markers = persisted.Markers
	s.override = persisted.Override
	s.logger.Info().Interface("value", s.wanted).Msg("room state restored")
}

func (s *Service) persist() {
	if s.deps.Store == nil {
		return
	}
	err := s.deps.Store.SaveRoom(storage.RoomState{
		RoomName: s.plan.Name,
		Value:    s.wanted,
		Markers:  s.markers,
		Override: s.override,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("persisting room state failed")
	}
}

// Name returns the room name.
func (s *Service) Name() string { return s.plan.Name }

// Run evaluates once, then re-evaluates whenever a window boundary passes,
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Evaluate(ctx, "startup")
	for {
		next := s.NextChange(s.now())
		var timerC <-chan time.Time
		var timer *time.Timer
		if !next.IsZero() {
			timer = time.NewTimer(next.Sub(s.now()))
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-timerC:
			s.releaseOverrideAtBoundary()
			s.Evaluate(ctx, "timer")
		}
	}
}

func (s *Service) releaseOverrideAtBoundary() {
	s.mu.Lock()
	if s.override != nil {
		s.logger.Info().Msg("window boundary passed, releasing manual override")
		s.override = nil
	}
	s.mu.Unlock()
}

// NextChange returns the next instant the schedule's result may change.
func (s *Service) NextChange(now time.Time) time.Time {
	var next time.Time
	for _, seg := range []*schedule.Schedule{s.plan.Segments.Prepend, s.plan.Segments.Body, s.plan.Segments.Append} {
		if seg == nil {
			continue
		}
		at := seg.NextSchedulingTime(now)
		if at.IsZero() {
			continue
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next
}

// Evaluate runs the schedule now and applies the outcome. It returns the
// raw evaluation result, nil when no rule matched.
func (s *Service) Evaluate(ctx context.Context, trigger string) *schedule.Result {
	started := s.now()
	instant := started.In(s.location())
	result := s.evaluator.Evaluate(s.plan.Name, s.plan.Segments, instant)

	telemetry.EvaluationsTotal.WithLabelValues(s.plan.Name, trigger).Inc()
	telemetry.EvaluationDuration.WithLabelValues(s.plan.Name).Observe(time.Since(started).Seconds())
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(events.Event{
			Type: events.EventReevaluation, Room: s.plan.Name, Trigger: trigger,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEvaluated = instant

	if s.override != nil {
		s.logger.Debug().Interface("override", s.override).
			Msg("manual override in effect, schedule result not applied")
		return result
	}

	if result == nil {
		s.handleEmptyResult(ctx)
		return nil
	}
	s.handleResult(ctx, result)
	return result
}

// handleResult reconciles a fresh schedule result with the overlay state
// and applies the value.
func (s *Service) handleResult(ctx context.Context, result *schedule.Result) {
	if result.HasMarker(schedule.MarkerOverlay) {
		if !s.overlayActive {
			s.overlayActive = true
			s.overlayRevert = s.wanted
			s.logger.Info().Interface("revert_to", s.overlayRevert).Msg("overlay started")
			if s.deps.Bus != nil {
				s.deps.Bus.Publish(events.Event{Type: events.EventOverlayStarted, Room: s.plan.Name})
			}
		}
		s.revertOnEmpty = result.HasMarker(schedule.MarkerOverlayRevertOnNoMatch)
	} else if s.overlayActive {
		s.endOverlay()
	}

	s.setWanted(ctx, result.Value, result.Markers)
}

// handleEmptyResult decides what an evaluation without a result means: with
// a reverting overlay active, fall back to the pre-overlay value; otherwise
// keep whatever is in effect.
func (s *Service) handleEmptyResult(ctx context.Context) {
	telemetry.ResultsDroppedTotal.WithLabelValues(s.plan.Name).Inc()
	if s.overlayActive && s.revertOnEmpty {
		revert := s.overlayRevert
		s.endOverlay()
		if revert != nil {
			s.logger.Info().Interface("value", revert).Msg("overlay ended, reverting")
			s.setWanted(ctx, revert, nil)
		}
		return
	}
	s.logger.Debug().Msg("no schedule result, keeping current value")
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(events.Event{Type: events.EventResultDropped, Room: s.plan.Name})
	}
}

func (s *Service) endOverlay() {
	s.overlayActive = false
	s.overlayRevert = nil
	s.revertOnEmpty = false
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(events.Event{Type: events.EventOverlayReverted, Room: s.plan.Name})
	}
}

// setWanted records and applies the new wanted value. Actors already at the
// wanted value are left alone.
func (s *Service) setWanted(ctx context.Context, value any, markers []string) {
	s.wanted = value
	s.markers = markers
	s.persist()

	applied := false
	for _, a := range s.plan.Actors {
		normalized, err := a.Validate(value)
		if err != nil {
			s.logger.Error().Err(err).Str("entity", a.EntityID()).
				Interface("value", value).Msg("actor rejected value")
			continue
		}
		if current, ok := a.CurrentValue(s.deps.States); ok && current == normalized {
			s.logger.Debug().Str("entity", a.EntityID()).Msg("actor already at wanted value")
			continue
		}
		if err := a.Apply(ctx, s.deps.Sink, normalized); err != nil {
			s.logger.Error().Err(err).Str("entity", a.EntityID()).Msg("applying value failed")
			continue
		}
		applied = true
	}
	if applied {
		telemetry.ResultsAppliedTotal.WithLabelValues(s.plan.Name).Inc()
		if s.deps.Bus != nil {
			s.deps.Bus.Publish(events.Event{
				Type: events.EventResultApplied, Room: s.plan.Name, Value: value,
			})
		}
	}
}

// SetValueManually applies a value outside the schedule. The override stays
// in effect until the next window boundary or ClearOverride.
func (s *Service) SetValueManually(ctx context.Context, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.plan.Actors) > 0 {
		normalized, err := s.plan.Actors[0].Validate(value)
		if err != nil {
			return err
		}
		value = normalized
	}
	s.logger.Info().Interface("value", value).Msg("manual value override")
	s.override = value
	s.setWanted(ctx, value, nil)
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(events.Event{
			Type: events.EventValueOverride, Room: s.plan.Name, Value: value,
		})
	}
	return nil
}

// ClearOverride releases a manual override and re-evaluates.
func (s *Service) ClearOverride(ctx context.Context) {
	s.mu.Lock()
	s.override = nil
	s.mu.Unlock()
	s.Evaluate(ctx, "override_cleared")
}

// HandleStateChanged reacts to an entity state change. Changes to watched
// entities re-evaluate the schedule, debounced by the room's reschedule
// delay.
func (s *Service) HandleStateChanged(ctx context.Context, entityID string) {
	if !s.watches(entityID) {
		return
	}
	s.logger.Debug().Str("entity", entityID).Msg("watched entity changed")

	if s.plan.RescheduleDelay <= 0 {
		s.Evaluate(ctx, "state_changed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.plan.RescheduleDelay, func() {
		s.Evaluate(ctx, "state_changed")
	})
}

func (s *Service) watches(entityID string) bool {
	for _, watched := range s.plan.WatchedEntities {
		if watched == entityID {
			return true
		}
	}
	return false
}

// Snapshot returns the room status for the API.
func (s *Service) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Name:            s.plan.Name,
		Value:           s.wanted,
		Markers:         s.markers,
		OverlayActive:   s.overlayActive,
		Override:        s.override,
		LastEvaluated:   s.lastEvaluated,
		NextChange:      s.NextChange(s.now()),
		WatchedEntities: s.plan.WatchedEntities,
	}
}

func (s *Service) location() *time.Location {
	if s.deps.Location != nil {
		return s.deps.Location
	}
	return time.Local
}
