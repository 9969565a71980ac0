/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
)

// Markers consumers of a Result may act on.
const (
	MarkerOverlay                = "OVERLAY"
	MarkerOverlayRevertOnNoMatch = "OVERLAY_REVERT_ON_NO_RESULT"
)

// OutcomeKind tags the variants of Outcome.
type OutcomeKind int

const (
	// KindValue is a terminal result value.
	KindValue OutcomeKind = iota
	// KindPostprocessor queues a transform for the eventual terminal value.
	KindPostprocessor
	// KindSkip voids the rule; evaluation continues with the next sibling.
	KindSkip
	// KindBreak aborts Levels enclosing sub-schedules.
	KindBreak
	// KindAbort terminates the whole evaluation with no new result.
	KindAbort
	// KindInherit resolves to the nearest ancestor assignment.
	KindInherit
	// KindInclude splices another schedule in at the rule's position.
	KindInclude
)

// Outcome is the tagged result of resolving a single rule. Exactly the
// fields relevant to Kind are set. Markers may accompany any variant and are
// collected into the final Result.
type Outcome struct {
	Kind     OutcomeKind
	Value    any           // KindValue
	Post     Postprocessor // KindPostprocessor
	Levels   int           // KindBreak
	Schedule *Schedule     // KindInclude
	Markers  []string
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindValue:
		return fmt.Sprintf("Value(%v)", o.Value)
	case KindPostprocessor:
		return fmt.Sprintf("Postprocessor(%s)", o.Post)
	case KindSkip:
		return "Skip()"
	case KindBreak:
		return fmt.Sprintf("Break(%d)", o.Levels)
	case KindAbort:
		return "Abort()"
	case KindInherit:
		return "Inherit()"
	case KindInclude:
		return fmt.Sprintf("IncludeSchedule(%s)", o.Schedule)
	}
	return fmt.Sprintf("Outcome(kind=%d)", o.Kind)
}

// ValueOutcome wraps a terminal value.
func ValueOutcome(v any) Outcome { return Outcome{Kind: KindValue, Value: v} }

// SkipOutcome voids the current rule.
func SkipOutcome() Outcome { return Outcome{Kind: KindSkip} }

// BreakOutcome aborts the given number of enclosing sub-schedules.
func BreakOutcome(levels int) Outcome { return Outcome{Kind: KindBreak, Levels: levels} }

// AbortOutcome terminates the evaluation, keeping the previous value.
func AbortOutcome() Outcome { return Outcome{Kind: KindAbort} }

// InheritOutcome defers to the nearest ancestor assignment.
func InheritOutcome() Outcome { return Outcome{Kind: KindInherit} }

// IncludeOutcome splices the given schedule in place of the rule.
func IncludeOutcome(s *Schedule) Outcome { return Outcome{Kind: KindInclude, Schedule: s} }

// PostOutcome queues the given postprocessor.
func PostOutcome(p Postprocessor) Outcome { return Outcome{Kind: KindPostprocessor, Post: p} }

// Postprocessor transforms the terminal value after a match is found.
// Implementations must be side-effect free.
type Postprocessor interface {
	Apply(value any) (any, error)
	String() string
}

// AddPost adds a numeric amount to the result.
type AddPost struct{ Amount float64 }

func (p AddPost) Apply(value any) (any, error) {
	n, ok := asFloat(value)
	if !ok {
		return nil, postprocessingError("cannot add %v to %v", p.Amount, value)
	}
	return numericLike(value, n+p.Amount), nil
}

func (p AddPost) String() string { return fmt.Sprintf("Add(%v)", p.Amount) }

// MultiplyPost multiplies the result by a numeric factor.
type MultiplyPost struct{ Factor float64 }

func (p MultiplyPost) Apply(value any) (any, error) {
	n, ok := asFloat(value)
	if !ok {
		return nil, postprocessingError("cannot multiply %v by %v", value, p.Factor)
	}
	return numericLike(value, n*p.Factor), nil
}

func (p MultiplyPost) String() string { return fmt.Sprintf("Multiply(%v)", p.Factor) }

// InvertPost negates numbers, flips booleans and swaps the "on"/"off"
// string pair.
type InvertPost struct{}

func (p InvertPost) Apply(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return !v, nil
	case string:
		switch v {
		case "on":
			return "off", nil
		case "off":
			return "on", nil
		}
		return nil, postprocessingError("cannot invert %q", v)
	}
	if n, ok := asFloat(value); ok {
		return numericLike(value, -n), nil
	}
	return nil, postprocessingError("cannot invert %v", value)
}

func (p InvertPost) String() string { return "Invert()" }

// FuncPost applies a user-supplied transform.
type FuncPost struct {
	Fn   func(value any) (any, error)
	Desc string
}

func (p FuncPost) Apply(value any) (any, error) {
	if p.Fn == nil {
		return nil, postprocessingError("nil postprocess function")
	}
	return p.Fn(value)
}

func (p FuncPost) String() string {
	if p.Desc != "" {
		return fmt.Sprintf("Postprocess(%s)", p.Desc)
	}
	return "Postprocess()"
}

func asFloat(value any) (float64, bool) {
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

// numericLike converts a computed float back to the shape of the original
// value where that loses no information.
func numericLike(original any, n float64) any {
	switch original.(type) {
	case int, int64:
		if n == float64(int64(n)) {
			return int64(n)
		}
	}
	return n
}
