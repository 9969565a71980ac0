/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"time"

	"github.com/rs/zerolog"
)

// Segments are the three chained parts of a room's effective schedule,
// evaluated in fixed order. Any segment may be nil.
type Segments struct {
	Prepend *Schedule
	Body    *Schedule
	Append  *Schedule
}

// EvaluatorOptions tune an Evaluator.
type EvaluatorOptions struct {
	// OffValue is a sentinel the postprocessor chain must never alter.
	OffValue any

	// Validate normalizes candidate result values, typically supplied by the
	// room's actor type. Returning an error rejects the value and aborts the
	// evaluation.
	Validate func(value any) (any, error)
}

// Evaluator resolves rule schedules into result values. It holds no mutable
// state across calls; everything per evaluation lives in an evalContext.
type Evaluator struct {
	logger zerolog.Logger
	opts   EvaluatorOptions
}

// NewEvaluator creates a schedule evaluator.
func NewEvaluator(logger zerolog.Logger, opts EvaluatorOptions) *Evaluator {
	return &Evaluator{logger: logger, opts: opts}
}

// evalContext carries the mutable state of a single evaluation call: the
// rule path for window/constraint/inheritance resolution, the set of
// schedules currently being walked (cycle guard), the queued postprocessors
// and the collected markers.
type evalContext struct {
	room    string
	now     time.Time
	logger  zerolog.Logger
	path    []*Rule
	walking map[*Schedule]int
	post    []Postprocessor
	markers map[string]struct{}
	cache   map[Expression]cachedOutcome
}

type cachedOutcome struct {
	outcome Outcome
	err     error
}

// Evaluate computes the result for the given room and instant. A nil Result
// means no new result: either no rule matched or a rule aborted the
// evaluation, and the caller keeps whatever value was previously in effect.
// No failure of an individual rule escapes; rules degrade to skips.
func (e *Evaluator) Evaluate(room string, segments Segments, instant time.Time) (result *Result) {
	ctx := &evalContext{
		room:    room,
		now:     instant,
		logger:  e.logger.With().Str("room", room).Logger(),
		walking: make(map[*Schedule]int),
		markers: make(map[string]struct{}),
		cache:   make(map[Expression]cachedOutcome),
	}
	defer func() {
		if r := recover(); r != nil {
			ctx.logger.Error().Interface("panic", r).Msg("schedule evaluation panicked, dropping result")
			result = nil
		}
	}()

	ctx.logger.Debug().Time("instant", instant).Msg("evaluating schedule")

	for _, segment := range []*Schedule{segments.Prepend, segments.Body, segments.Append} {
		if segment == nil || len(segment.Rules) == 0 {
			continue
		}
		out := e.walk(segment, ctx)
		switch out.Kind {
		case KindValue:
			return e.finalize(out.Value, ctx)
		case KindAbort:
			ctx.logger.Debug().Msg("evaluation aborted, keeping previous value")
			return nil
		case KindBreak:
			// broke out of the synthetic root, no segment left to resume
			return nil
		}
	}

	ctx.logger.Debug().Msg("no rule matched")
	return nil
}

// walk evaluates the rules of one schedule level in declaration order and
// returns a Value, Skip (level exhausted), Abort, or a Break with the
// remaining level count after this frame absorbed one.
func (e *Evaluator) walk(s *Schedule, ctx *evalContext) Outcome {
	ctx.walking[s]++
	defer func() {
		ctx.walking[s]--
		if ctx.walking[s] == 0 {
			delete(ctx.walking, s)
		}
	}()

	for _, rule := range s.Rules {
		ctx.path = append(ctx.path, rule)
		out := e.visit(rule, ctx)
		if out.Kind == KindInclude {
			out = e.walkInclude(out.Schedule, ctx)
		}
		ctx.path = ctx.path[:len(ctx.path)-1]

		switch out.Kind {
		case KindSkip:
			continue
		case KindPostprocessor:
			ctx.logger.Debug().Stringer("rule", rule).Stringer("postprocessor", out.Post).
				Msg("queueing postprocessor")
			ctx.post = append(ctx.post, out.Post)
			continue
		case KindBreak:
			if out.Levels <= 1 {
				// this level absorbs the break
				return SkipOutcome()
			}
			return BreakOutcome(out.Levels - 1)
		default:
			// Value or Abort, propagate as-is
			return out
		}
	}
	return SkipOutcome()
}

// visit resolves one rule at the current path position.
func (e *Evaluator) visit(rule *Rule, ctx *evalContext) Outcome {
	if rule.Sub != nil {
		ctx.logger.Debug().Stringer("rule", rule).Msg("descending into sub-schedule")
		return e.walk(rule.Sub, ctx)
	}

	if !pathActive(ctx.path, ctx.now) {
		ctx.logger.Debug().Stringer("rule", rule).Msg("rule inactive")
		return SkipOutcome()
	}
	ctx.logger.Debug().Stringer("rule", rule).Msg("rule active")

	return e.resolveAssignment(ctx)
}

// resolveAssignment finds the nearest rule along the path, leaf first, that
// carries a value or expression, and resolves it. Inherit outcomes and
// includes that would form a cycle defer to the next ancestor; running out
// of ancestors is an unresolved inheritance, degraded to Skip.
func (e *Evaluator) resolveAssignment(ctx *evalContext) Outcome {
	for i := len(ctx.path) - 1; i >= 0; i-- {
		rule := ctx.path[i]
		if !rule.HasAssignment() {
			continue
		}

		out, err := e.resolveRule(rule, ctx)
		if err != nil {
			ctx.logger.Error().Err(err).Stringer("rule", rule).
				Msg("rule resolution failed, skipping rule")
			return SkipOutcome()
		}

		switch out.Kind {
		case KindInherit:
			ctx.logger.Debug().Stringer("rule", rule).Msg("deferring to parent assignment")
			continue
		case KindInclude:
			if ctx.walking[out.Schedule] > 0 {
				ctx.logger.Debug().Stringer("rule", rule).Stringer("schedule", out.Schedule).
					Msg("include would form a cycle, deferring to parent assignment")
				continue
			}
			e.acceptMarkers(out, ctx)
			return out
		default:
			e.acceptMarkers(out, ctx)
			return out
		}
	}

	ctx.logger.Warn().Err(ErrUnresolvedInheritance).
		Msg("no value or expression found along the rule path, skipping rule")
	return SkipOutcome()
}

// resolveRule evaluates a single rule's own assignment. Expression results
// are cached for the duration of the evaluation call.
func (e *Evaluator) resolveRule(rule *Rule, ctx *evalContext) (Outcome, error) {
	if rule.Expr == nil {
		return ValueOutcome(rule.Value), nil
	}

	if cached, ok := ctx.cache[rule.Expr]; ok {
		return cached.outcome, cached.err
	}
	out, err := rule.Expr.Evaluate(ctx.now)
	ctx.cache[rule.Expr] = cachedOutcome{outcome: out, err: err}
	if err != nil {
		return Outcome{}, err
	}
	ctx.logger.Debug().Str("expression", rule.Expr.Source()).Stringer("outcome", out).
		Msg("expression evaluated")
	return out, nil
}

// walkInclude splices the given schedule in at the current rule position.
// The including rule is replaced by a synthetic sub-schedule node, so the
// included rules resolve windows and inheritance against the including
// rule's ancestors.
func (e *Evaluator) walkInclude(s *Schedule, ctx *evalContext) Outcome {
	synthetic := &Rule{Sub: s}
	leaf := ctx.path[len(ctx.path)-1]
	ctx.path[len(ctx.path)-1] = synthetic
	out := e.walk(s, ctx)
	ctx.path[len(ctx.path)-1] = leaf
	return out
}

func (e *Evaluator) acceptMarkers(out Outcome, ctx *evalContext) {
	for _, marker := range out.Markers {
		ctx.markers[marker] = struct{}{}
	}
}
