/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/actor"
	"github.com/friendsincode/hearth/internal/expression"
	"github.com/friendsincode/hearth/internal/schedule"
	"github.com/friendsincode/hearth/internal/state"
)

// RoomPlan is everything the room service needs for one room: its actors
// and its compiled schedule segments. Expressions are compiled here, once,
// with the room's bindings baked in.
type RoomPlan struct {
	Name            string
	Actors          []actor.Actor
	Segments        schedule.Segments
	WatchedEntities []string
	RescheduleDelay time.Duration
}

// BuildRooms turns the parsed schedule file into one plan per room.
func (f *ScheduleFile) BuildRooms(states state.Provider, logger zerolog.Logger) ([]*RoomPlan, error) {
	plans := make([]*RoomPlan, 0, len(f.Rooms))
	for name, room := range f.Rooms {
		plan, err := f.buildRoom(name, room, states, logger)
		if err != nil {
			return nil, fmt.Errorf("room %q: %w", name, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (f *ScheduleFile) buildRoom(name string, room RoomYAML, states state.Provider, logger zerolog.Logger) (*RoomPlan, error) {
	actors := make([]actor.Actor, 0, len(room.Actors))
	for _, cfg := range room.Actors {
		a, err := actor.New(cfg, logger.With().Str("room", name).Logger())
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}

	env := &expression.Env{
		Room:      name,
		OffValue:  actor.Off,
		States:    states,
		Snippets:  make(map[string]*schedule.Schedule),
		Constants: f.Constants,
		Logger:    logger.With().Str("room", name).Logger(),
	}
	b := &builder{env: env}

	// Snippets first; includes resolve against env.Snippets at evaluation
	// time, so forward and mutual references are fine.
	for snippetName, rules := range f.Snippets {
		built, err := b.rules(rules, fmt.Sprintf("snippet %q", snippetName))
		if err != nil {
			return nil, err
		}
		env.Snippets[snippetName] = &schedule.Schedule{Name: snippetName, Rules: built}
	}

	segments := schedule.Segments{}
	if built, err := b.segment("schedule_prepend", f.Prepend); err != nil {
		return nil, err
	} else {
		segments.Prepend = built
	}
	if built, err := b.segment("schedule", room.Schedule); err != nil {
		return nil, err
	} else {
		segments.Body = built
	}
	if built, err := b.segment("schedule_append", f.Append); err != nil {
		return nil, err
	} else {
		segments.Append = built
	}

	delay := time.Duration(f.RescheduleDelay)
	if room.RescheduleDelay != nil {
		delay = time.Duration(*room.RescheduleDelay)
	}

	return &RoomPlan{
		Name:            name,
		Actors:          actors,
		Segments:        segments,
		WatchedEntities: room.WatchedEntities,
		RescheduleDelay: delay,
	}, nil
}

// builder compiles YAML rules into schedule rules for one room.
type builder struct {
	env *expression.Env
}

func (b *builder) segment(label string, rules []RuleYAML) (*schedule.Schedule, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	built, err := b.rules(rules, label)
	if err != nil {
		return nil, err
	}
	return &schedule.Schedule{Name: label, Rules: built}, nil
}

func (b *builder) rules(rules []RuleYAML, path string) ([]*schedule.Rule, error) {
	built := make([]*schedule.Rule, 0, len(rules))
	for i, ry := range rules {
		at := fmt.Sprintf("%s, rule %d", path, i+1)
		if ry.Name != "" {
			at = fmt.Sprintf("%s, rule %q", path, ry.Name)
		}
		rule, err := b.rule(ry, at)
		if err != nil {
			return nil, err
		}
		built = append(built, rule)
	}
	return built, nil
}

func (b *builder) rule(ry RuleYAML, at string) (*schedule.Rule, error) {
	if ry.Value != nil && ry.X != "" {
		return nil, fmt.Errorf("%s: value and x are mutually exclusive", at)
	}

	rule := &schedule.Rule{Name: ry.Name, Value: ry.Value}

	if ry.X != "" {
		expr, err := b.env.Compile(ry.X)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", at, err)
		}
		rule.Expr = expr
	}

	window, err := buildWindow(ry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", at, err)
	}
	rule.Window = window

	constraints, err := buildConstraints(ry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", at, err)
	}
	rule.Constraints = constraints

	if len(ry.Rules) > 0 {
		sub, err := b.rules(ry.Rules, at)
		if err != nil {
			return nil, err
		}
		rule.Sub = &schedule.Schedule{Rules: sub}
	}

	if rule.Sub == nil && !rule.HasAssignment() {
		return nil, fmt.Errorf("%s: rule needs a value, an expression or sub-rules", at)
	}
	return rule, nil
}

func buildWindow(ry RuleYAML) (schedule.TimeWindow, error) {
	var w schedule.TimeWindow
	if ry.Start != "" {
		t, shift, shiftSet, err := schedule.ParseTimeOfDay(string(ry.Start))
		if err != nil {
			return w, fmt.Errorf("start: %w", err)
		}
		w.Start = &t
		if shiftSet {
			w.StartShift = &shift
		}
	}
	if ry.End != "" {
		t, shift, shiftSet, err := schedule.ParseTimeOfDay(string(ry.End))
		if err != nil {
			return w, fmt.Errorf("end: %w", err)
		}
		w.End = &t
		if shiftSet {
			w.EndShift = &shift
		}
	}
	return w, nil
}

func buildConstraints(ry RuleYAML) (schedule.Constraints, error) {
	var c schedule.Constraints
	specs := []struct {
		label    string
		raw      Scalar
		min, max int
		dst      **schedule.RangeSpec
	}{
		{"years", ry.Years, schedule.MinYear, schedule.MaxYear, &c.Years},
		{"months", ry.Months, schedule.MinMonth, schedule.MaxMonth, &c.Months},
		{"days", ry.Days, schedule.MinDay, schedule.MaxDay, &c.Days},
		{"weeks", ry.Weeks, schedule.MinWeek, schedule.MaxWeek, &c.Weeks},
		{"weekdays", ry.Weekdays, schedule.MinWeekday, schedule.MaxWeekday, &c.Weekdays},
	}
	for _, spec := range specs {
		if spec.raw == "" {
			continue
		}
		parsed, err := schedule.ParseRangeSpec(string(spec.raw), spec.min, spec.max)
		if err != nil {
			return c, fmt.Errorf("%s: %w", spec.label, err)
		}
		*spec.dst = parsed
	}

	if ry.StartDate != nil {
		ds := schedule.DateSpec{Year: ry.StartDate.Year, Month: ry.StartDate.Month, Day: ry.StartDate.Day}
		if err := ds.Validate(); err != nil {
			return c, fmt.Errorf("start_date: %w", err)
		}
		c.StartDate = &ds
	}
	if ry.EndDate != nil {
		ds := schedule.DateSpec{Year: ry.EndDate.Year, Month: ry.EndDate.Month, Day: ry.EndDate.Day}
		if err := ds.Validate(); err != nil {
			return c, fmt.Errorf("end_date: %w", err)
		}
		c.EndDate = &ds
	}
	return c, nil
}
