/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/hearth/internal/actor"
)

// ScheduleFile is the parsed YAML schedule configuration, before rule trees
// are built for the individual rooms.
type ScheduleFile struct {
	RescheduleDelay Duration              `yaml:"reschedule_delay"`
	Constants       map[string]any        `yaml:"constants"`
	Snippets        map[string][]RuleYAML `yaml:"schedule_snippets"`
	Prepend         []RuleYAML            `yaml:"schedule_prepend"`
	Append          []RuleYAML            `yaml:"schedule_append"`
	Rooms           map[string]RoomYAML   `yaml:"rooms"`
}

// RoomYAML configures one room.
type RoomYAML struct {
	Actors          []actor.Config `yaml:"actors"`
	Schedule        []RuleYAML     `yaml:"schedule"`
	WatchedEntities []string       `yaml:"watched_entities"`
	RescheduleDelay *Duration      `yaml:"reschedule_delay"`
}

// RuleYAML is one schedule rule as written in YAML. A rule carries either a
// literal value or an expression, optionally a sub-schedule, a time window
// and calendar constraints.
type RuleYAML struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
	X     string `yaml:"x"`

	Start Scalar `yaml:"start"`
	End   Scalar `yaml:"end"`

	Years    Scalar `yaml:"years"`
	Months   Scalar `yaml:"months"`
	Days     Scalar `yaml:"days"`
	Weeks    Scalar `yaml:"weeks"`
	Weekdays Scalar `yaml:"weekdays"`

	StartDate *DateYAML `yaml:"start_date"`
	EndDate   *DateYAML `yaml:"end_date"`

	Rules []RuleYAML `yaml:"rules"`
}

// Scalar captures any YAML scalar as its raw text, so "1-5", 5 and 06:00
// all arrive unmangled.
type Scalar string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// DateYAML is a date constraint bound, either "YYYY-MM-DD" or a mapping of
// year/month/day where omitted fields stay unconstrained.
type DateYAML struct {
	Year  int `yaml:"year"`
	Month int `yaml:"month"`
	Day   int `yaml:"day"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DateYAML) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t, err := time.Parse("2006-01-02", node.Value)
		if err != nil {
			return fmt.Errorf("line %d: date %q: want YYYY-MM-DD", node.Line, node.Value)
		}
		d.Year, d.Month, d.Day = t.Year(), int(t.Month()), t.Day()
		return nil
	case yaml.MappingNode:
		type plain DateYAML
		return node.Decode((*plain)(d))
	}
	return fmt.Errorf("line %d: expected a date string or mapping", node.Line)
}

// Duration parses Go duration strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: duration %q: %v", node.Line, node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// ParseScheduleFile reads and decodes the YAML schedule configuration.
func ParseScheduleFile(path string) (*ScheduleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule config: %w", err)
	}
	return ParseSchedule(data)
}

// ParseSchedule decodes a YAML schedule configuration.
func ParseSchedule(data []byte) (*ScheduleFile, error) {
	var file ScheduleFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse schedule config: %w", err)
	}
	if len(file.Rooms) == 0 {
		return nil, fmt.Errorf("schedule config declares no rooms")
	}
	for name, room := range file.Rooms {
		if len(room.Actors) == 0 {
			return nil, fmt.Errorf("room %q declares no actors", name)
		}
	}
	return &file, nil
}
