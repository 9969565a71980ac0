/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule implements the rule evaluation core: crontab-like range
// constraints, date boundaries, time windows and the recursive walker that
// resolves a rule forest into a single result value.
package schedule

import (
	"strconv"
	"strings"
)

// RangeSpec is a parsed range specification over integers, e.g. "1-5",
// "*/2", "!3" or "1,15-20/2". It is immutable once parsed.
type RangeSpec struct {
	inverted bool
	members  map[int]struct{}
	min, max int
	source   string
}

// ParseRangeSpec parses a range specification string against the inclusive
// domain [min, max]. Selectors are comma-separated; whitespace is ignored.
// A leading "!" inverts the final membership test. Each selector is a bare
// integer, "low-high", "low-high/step", "*" or "*/step".
func ParseRangeSpec(spec string, min, max int) (*RangeSpec, error) {
	source := spec
	spec = strings.Join(strings.Fields(spec), "")
	if spec == "" {
		return nil, constraintSyntaxError("empty range spec")
	}

	inverted := false
	if strings.HasPrefix(spec, "!") {
		inverted = true
		spec = spec[1:]
	}
	if spec == "" {
		return nil, constraintSyntaxError("nothing to invert in %q", source)
	}

	members := make(map[int]struct{})
	for _, part := range strings.Split(spec, ",") {
		if err := expandSelector(part, min, max, members); err != nil {
			return nil, err
		}
	}

	return &RangeSpec{
		inverted: inverted,
		members:  members,
		min:      min,
		max:      max,
		source:   source,
	}, nil
}

// expandSelector parses a single selector and adds its values to members.
func expandSelector(part string, min, max int, members map[int]struct{}) error {
	body, stepStr, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepStr)
		if err != nil || parsed <= 0 {
			return constraintSyntaxError("invalid step %q in %q", stepStr, part)
		}
		step = parsed
	}

	var low, high int
	switch {
	case body == "*":
		low, high = min, max
	case strings.Contains(body, "-"):
		lowStr, highStr, _ := strings.Cut(body, "-")
		var err error
		if low, err = strconv.Atoi(lowStr); err != nil {
			return constraintSyntaxError("invalid range bound %q in %q", lowStr, part)
		}
		if high, err = strconv.Atoi(highStr); err != nil {
			return constraintSyntaxError("invalid range bound %q in %q", highStr, part)
		}
		if low >= high {
			return constraintSyntaxError("range %q must have low < high", part)
		}
	default:
		value, err := strconv.Atoi(body)
		if err != nil {
			return constraintSyntaxError("invalid selector %q", part)
		}
		if hasStep {
			return constraintSyntaxError("step requires a range in %q", part)
		}
		low, high = value, value
	}

	if low < min || high > max {
		return constraintSyntaxError("selector %q is out of domain %d..%d", part, min, max)
	}
	for i := low; i <= high; i += step {
		members[i] = struct{}{}
	}
	return nil
}

// Matches reports whether n falls into the spec, honoring inversion.
func (s *RangeSpec) Matches(n int) bool {
	_, ok := s.members[n]
	if s.inverted {
		return !ok
	}
	return ok
}

// String returns the original specification text.
func (s *RangeSpec) String() string {
	return s.source
}
