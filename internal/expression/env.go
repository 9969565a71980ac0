/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package expression compiles and runs rule expressions in an embedded
// Tengo sandbox. Scripts get read-only access to entity state and a set of
// constructors for control results; they cannot import modules or touch the
// process otherwise.
package expression

import (
	"fmt"
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/schedule"
	"github.com/friendsincode/hearth/internal/state"
)

// tagKey marks maps produced by the sandbox's control constructors. A plain
// map without it is not a valid expression result.
const tagKey = "__hearth"

// Env is the per-room context an expression runs in. Bindings are baked in
// at compile time; only now/date/time vary per evaluation.
type Env struct {
	Room      string
	OffValue  any
	States    state.Provider
	Snippets  map[string]*schedule.Schedule
	Constants map[string]any
	Logger    zerolog.Logger

	mu    sync.Mutex
	posts map[string]*tengo.Compiled
}

// snippetFor resolves a named schedule snippet.
func (env *Env) snippetFor(name string) (*schedule.Schedule, error) {
	if s, ok := env.Snippets[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown schedule snippet %q", schedule.ErrExpression, name)
}

// bind installs the sandbox surface on a script.
func (env *Env) bind(script *tengo.Script) error {
	bindings := map[string]any{
		"result":    nil,
		"now":       nil,
		"date":      nil,
		"time":      nil,
		"room_name": env.Room,

		"OVERLAY":                     schedule.MarkerOverlay,
		"OVERLAY_REVERT_ON_NO_RESULT": schedule.MarkerOverlayRevertOnNoMatch,
	}
	for name, value := range bindings {
		if err := script.Add(name, value); err != nil {
			return err
		}
	}
	if err := script.Add("OFF", offObject(env.OffValue)); err != nil {
		return err
	}
	for name, value := range env.Constants {
		if err := script.Add(name, value); err != nil {
			return fmt.Errorf("constant %q: %w", name, err)
		}
	}
	for name, fn := range env.builtins() {
		if err := script.Add(name, &tengo.UserFunction{Name: name, Value: fn}); err != nil {
			return err
		}
	}
	return nil
}

func offObject(off any) tengo.Object {
	obj, err := tengo.FromInterface(off)
	if err != nil || off == nil {
		return &tengo.String{Value: "off"}
	}
	return obj
}

func (env *Env) builtins() map[string]tengo.CallableFunc {
	return map[string]tengo.CallableFunc{
		"state":           env.stateFn,
		"state_attr":      env.stateAttrFn,
		"is_on":           env.isStateFn("on"),
		"is_off":          env.isStateFn("off"),
		"filter_entities": env.filterEntitiesFn,
		"snippet":         env.snippetFn,
		"round_to_step":   roundToStepFn,
		"pattern_linear":  patternLinearFn,

		"Add":             controlOne("add", "amount"),
		"Multiply":        controlOne("multiply", "factor"),
		"Invert":          controlZero("invert"),
		"Postprocess":     postprocessFn,
		"Next":            controlZero("next"),
		"Skip":            controlZero("next"),
		"Break":           breakFn,
		"Abort":           controlZero("abort"),
		"Inherit":         controlZero("inherit"),
		"IncludeSchedule": includeScheduleFn,
		"Mark":            markFn,
	}
}

func (env *Env) stateFn(args ...tengo.Object) (tengo.Object, error) {
	entityID, err := stringArg(args, 0, "entity_id")
	if err != nil {
		return nil, err
	}
	s, ok := env.States.State(entityID)
	if !ok {
		return tengo.UndefinedValue, nil
	}
	return &tengo.String{Value: s}, nil
}

func (env *Env) stateAttrFn(args ...tengo.Object) (tengo.Object, error) {
	entityID, err := stringArg(args, 0, "entity_id")
	if err != nil {
		return nil, err
	}
	attribute, err := stringArg(args, 1, "attribute")
	if err != nil {
		return nil, err
	}
	value, ok := env.States.Attribute(entityID, attribute)
	if !ok {
		return tengo.UndefinedValue, nil
	}
	obj, err := tengo.FromInterface(value)
	if err != nil {
		return tengo.UndefinedValue, nil
	}
	return obj, nil
}

func (env *Env) isStateFn(want string) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		entityID, err := stringArg(args, 0, "entity_id")
		if err != nil {
			return nil, err
		}
		s, ok := env.States.State(entityID)
		if ok && s == want {
			return tengo.TrueValue, nil
		}
		return tengo.FalseValue, nil
	}
}

// filter_entities(prefix) or filter_entities(prefix, state) returns the ids
// of known entities matching the prefix (and state, if given).
func (env *Env) filterEntitiesFn(args ...tengo.Object) (tengo.Object, error) {
	prefix, err := stringArg(args, 0, "prefix")
	if err != nil {
		return nil, err
	}
	wantState := ""
	filterState := len(args) > 1
	if filterState {
		if wantState, err = stringArg(args, 1, "state"); err != nil {
			return nil, err
		}
	}
	var ids []tengo.Object
	for _, id := range env.States.EntityIDs() {
		if len(id) < len(prefix) || id[:len(prefix)] != prefix {
			continue
		}
		if filterState {
			if s, ok := env.States.State(id); !ok || s != wantState {
				continue
			}
		}
		ids = append(ids, &tengo.String{Value: id})
	}
	return &tengo.Array{Value: ids}, nil
}

func (env *Env) snippetFn(args ...tengo.Object) (tengo.Object, error) {
	name, err := stringArg(args, 0, "name")
	if err != nil {
		return nil, err
	}
	return control("schedule", map[string]tengo.Object{
		"name": &tengo.String{Value: name},
	}), nil
}

func roundToStepFn(args ...tengo.Object) (tengo.Object, error) {
	value, err := floatArg(args, 0, "value")
	if err != nil {
		return nil, err
	}
	step, err := floatArg(args, 1, "step")
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("round_to_step: step must be positive, got %v", step)
	}
	steps := float64(int64(value/step + 0.5*sign(value)))
	return &tengo.Float{Value: steps * step}, nil
}

// pattern_linear(from, to, fraction) interpolates between two values with
// the fraction clamped to [0, 1].
func patternLinearFn(args ...tengo.Object) (tengo.Object, error) {
	from, err := floatArg(args, 0, "from")
	if err != nil {
		return nil, err
	}
	to, err := floatArg(args, 1, "to")
	if err != nil {
		return nil, err
	}
	fraction, err := floatArg(args, 2, "fraction")
	if err != nil {
		return nil, err
	}
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	return &tengo.Float{Value: from + (to-from)*fraction}, nil
}

func postprocessFn(args ...tengo.Object) (tengo.Object, error) {
	src, err := stringArg(args, 0, "expression")
	if err != nil {
		return nil, err
	}
	return control("postprocess", map[string]tengo.Object{
		"src": &tengo.String{Value: src},
	}), nil
}

func breakFn(args ...tengo.Object) (tengo.Object, error) {
	levels := int64(1)
	if len(args) > 0 {
		n, ok := tengo.ToInt64(args[0])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "levels", Expected: "int", Found: args[0].TypeName()}
		}
		levels = n
	}
	if levels < 1 {
		return nil, fmt.Errorf("Break: levels must be >= 1, got %d", levels)
	}
	return control("break", map[string]tengo.Object{
		"levels": &tengo.Int{Value: levels},
	}), nil
}

func includeScheduleFn(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	switch ref := args[0].(type) {
	case *tengo.String:
		return control("include", map[string]tengo.Object{
			"name": &tengo.String{Value: ref.Value},
		}), nil
	case *tengo.Map:
		if tag, _ := ref.Value[tagKey].(*tengo.String); tag != nil && tag.Value == "schedule" {
			return control("include", map[string]tengo.Object{
				"name": ref.Value["name"],
			}), nil
		}
	}
	return nil, tengo.ErrInvalidArgumentType{Name: "schedule", Expected: "string or snippet", Found: args[0].TypeName()}
}

// Mark(value, marker...) attaches markers to any other result.
func markFn(args ...tengo.Object) (tengo.Object, error) {
	if len(args) < 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	markers := make([]tengo.Object, 0, len(args)-1)
	for _, arg := range args[1:] {
		s, ok := tengo.ToString(arg)
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "marker", Expected: "string", Found: arg.TypeName()}
		}
		markers = append(markers, &tengo.String{Value: s})
	}
	return control("mark", map[string]tengo.Object{
		"value":   args[0],
		"markers": &tengo.Array{Value: markers},
	}), nil
}

func control(kind string, fields map[string]tengo.Object) *tengo.Map {
	m := map[string]tengo.Object{tagKey: &tengo.String{Value: kind}}
	for k, v := range fields {
		m[k] = v
	}
	return &tengo.Map{Value: m}
}

func controlZero(kind string) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 0 {
			return nil, tengo.ErrWrongNumArguments
		}
		return control(kind, nil), nil
	}
}

func controlOne(kind, field string) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		n, ok := tengo.ToFloat64(args[0])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: field, Expected: "number", Found: args[0].TypeName()}
		}
		return control(kind, map[string]tengo.Object{
			field: &tengo.Float{Value: n},
		}), nil
	}
}

func stringArg(args []tengo.Object, i int, name string) (string, error) {
	if len(args) <= i {
		return "", tengo.ErrWrongNumArguments
	}
	s, ok := tengo.ToString(args[i])
	if !ok {
		return "", tengo.ErrInvalidArgumentType{Name: name, Expected: "string", Found: args[i].TypeName()}
	}
	return s, nil
}

func floatArg(args []tengo.Object, i int, name string) (float64, error) {
	if len(args) <= i {
		return 0, tengo.ErrWrongNumArguments
	}
	n, ok := tengo.ToFloat64(args[i])
	if !ok {
		return 0, tengo.ErrInvalidArgumentType{Name: name, Expected: "number", Found: args[i].TypeName()}
	}
	return n, nil
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
