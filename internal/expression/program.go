/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package expression

import (
	"fmt"
	"strings"
	"time"

	"github.com/d5/tengo/v2"

	"github.com/friendsincode/hearth/internal/schedule"
	"github.com/friendsincode/hearth/internal/telemetry"
)

// Program is a compiled rule expression bound to a room environment. It is
// compiled once at configuration load; each Evaluate call runs a clone, so a
// Program is safe for concurrent use.
type Program struct {
	env      *Env
	source   string
	compiled *tengo.Compiled
}

var _ schedule.Expression = (*Program)(nil)

// Compile builds an executable program from an expression fragment. A
// single-line fragment is treated as an expression whose value becomes the
// result; multi-line fragments assign to result themselves.
func (env *Env) Compile(source string) (*Program, error) {
	body := source
	if !strings.Contains(source, "\n") {
		body = "result = (" + source + ")"
	}
	script := tengo.NewScript([]byte(body))
	if err := env.bind(script); err != nil {
		return nil, fmt.Errorf("%w: binding %q: %v", schedule.ErrExpression, source, err)
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: compiling %q: %v", schedule.ErrExpression, source, err)
	}
	return &Program{env: env, source: source, compiled: compiled}, nil
}

// Source implements schedule.Expression.
func (p *Program) Source() string { return p.source }

// Evaluate implements schedule.Expression.
func (p *Program) Evaluate(instant time.Time) (schedule.Outcome, error) {
	run := p.compiled.Clone()
	if err := setClock(run, instant); err != nil {
		return schedule.Outcome{}, p.fail(err)
	}
	if err := run.Run(); err != nil {
		return schedule.Outcome{}, p.fail(err)
	}
	outcome, err := p.env.classify(run.Get("result").Value())
	if err != nil {
		telemetry.ExpressionErrorsTotal.WithLabelValues(p.env.Room).Inc()
	}
	return outcome, err
}

func (p *Program) fail(err error) error {
	telemetry.ExpressionErrorsTotal.WithLabelValues(p.env.Room).Inc()
	return fmt.Errorf("%w: %q: %v", schedule.ErrExpression, p.source, err)
}

func setClock(run *tengo.Compiled, instant time.Time) error {
	if err := run.Set("now", instant); err != nil {
		return err
	}
	date := map[string]any{
		"year":    instant.Year(),
		"month":   int(instant.Month()),
		"day":     instant.Day(),
		"weekday": schedule.DateOf(instant).Weekday(),
	}
	if err := run.Set("date", date); err != nil {
		return err
	}
	tod := map[string]any{
		"hour":   instant.Hour(),
		"minute": instant.Minute(),
		"second": instant.Second(),
	}
	return run.Set("time", tod)
}

// classify maps the script's result variable onto an Outcome. Scalars become
// values, tagged maps become control results, an unset result inherits from
// the parent rule, and anything else is a type error.
func (env *Env) classify(v any) (schedule.Outcome, error) {
	switch val := v.(type) {
	case nil:
		return schedule.InheritOutcome(), nil
	case bool, string, int64, float64:
		return schedule.ValueOutcome(val), nil
	case map[string]any:
		return env.classifyControl(val)
	}
	return schedule.Outcome{}, fmt.Errorf(
		"%w: expression produced %T, want a scalar or a control result", schedule.ErrRuntimeType, v)
}

func (env *Env) classifyControl(m map[string]any) (schedule.Outcome, error) {
	kind, ok := m[tagKey].(string)
	if !ok {
		return schedule.Outcome{}, fmt.Errorf(
			"%w: expression produced a plain map, want a scalar or a control result", schedule.ErrRuntimeType)
	}

	switch kind {
	case "add":
		amount, err := controlField[float64](m, "amount", kind)
		if err != nil {
			return schedule.Outcome{}, err
		}
		return schedule.PostOutcome(schedule.AddPost{Amount: amount}), nil
	case "multiply":
		factor, err := controlField[float64](m, "factor", kind)
		if err != nil {
			return schedule.Outcome{}, err
		}
		return schedule.PostOutcome(schedule.MultiplyPost{Factor: factor}), nil
	case "invert":
		return schedule.PostOutcome(schedule.InvertPost{}), nil
	case "postprocess":
		src, err := controlField[string](m, "src", kind)
		if err != nil {
			return schedule.Outcome{}, err
		}
		post, err := env.postProcessor(src)
		if err != nil {
			return schedule.Outcome{}, err
		}
		return schedule.PostOutcome(post), nil
	case "next":
		return schedule.SkipOutcome(), nil
	case "break":
		levels, err := controlField[int64](m, "levels", kind)
		if err != nil {
			return schedule.Outcome{}, err
		}
		return schedule.BreakOutcome(int(levels)), nil
	case "abort":
		return schedule.AbortOutcome(), nil
	case "inherit":
		return schedule.InheritOutcome(), nil
	case "include", "schedule":
		name, err := controlField[string](m, "name", kind)
		if err != nil {
			return schedule.Outcome{}, err
		}
		s, err := env.snippetFor(name)
		if err != nil {
			return schedule.Outcome{}, err
		}
		return schedule.IncludeOutcome(s), nil
	case "mark":
		out, err := env.classify(m["value"])
		if err != nil {
			return schedule.Outcome{}, err
		}
		raw, _ := m["markers"].([]any)
		for _, marker := range raw {
			s, ok := marker.(string)
			if !ok {
				return schedule.Outcome{}, fmt.Errorf("%w: marker %v is not a string", schedule.ErrRuntimeType, marker)
			}
			out.Markers = append(out.Markers, s)
		}
		return out, nil
	}
	return schedule.Outcome{}, fmt.Errorf("%w: unknown control result %q", schedule.ErrRuntimeType, kind)
}

func controlField[T any](m map[string]any, field, kind string) (T, error) {
	value, ok := m[field].(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s result carries no %s", schedule.ErrRuntimeType, kind, field)
	}
	return value, nil
}

// postProcessor compiles a Postprocess sub-expression into a value transform.
// The sub-expression sees the pending value as x and the usual sandbox
// surface; it must produce a scalar. Compilations are cached per source.
func (env *Env) postProcessor(src string) (schedule.Postprocessor, error) {
	compiled, err := env.postProgram(src)
	if err != nil {
		return nil, err
	}
	fn := func(value any) (any, error) {
		run := compiled.Clone()
		if err := run.Set("x", value); err != nil {
			return nil, fmt.Errorf("%w: postprocess %q: %v", schedule.ErrExpression, src, err)
		}
		if err := run.Run(); err != nil {
			return nil, fmt.Errorf("%w: postprocess %q: %v", schedule.ErrExpression, src, err)
		}
		out := run.Get("result").Value()
		switch out.(type) {
		case bool, string, int64, float64:
			return out, nil
		}
		return nil, fmt.Errorf("%w: postprocess %q produced %T, want a scalar", schedule.ErrRuntimeType, src, out)
	}
	return schedule.FuncPost{Fn: fn, Desc: src}, nil
}

func (env *Env) postProgram(src string) (*tengo.Compiled, error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if compiled, ok := env.posts[src]; ok {
		return compiled, nil
	}
	script := tengo.NewScript([]byte("result = (" + src + ")"))
	if err := env.bind(script); err != nil {
		return nil, fmt.Errorf("%w: binding postprocess %q: %v", schedule.ErrExpression, src, err)
	}
	if err := script.Add("x", nil); err != nil {
		return nil, fmt.Errorf("%w: binding postprocess %q: %v", schedule.ErrExpression, src, err)
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: compiling postprocess %q: %v", schedule.ErrExpression, src, err)
	}
	if env.posts == nil {
		env.posts = make(map[string]*tengo.Compiled)
	}
	env.posts[src] = compiled
	return compiled, nil
}
