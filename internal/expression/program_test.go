/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package expression

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/schedule"
	"github.com/friendsincode/hearth/internal/state"
)

var wednesdayNoon = time.Date(2026, time.August, 26, 12, 0, 0, 0, time.UTC)

func testEnv(t *testing.T) *Env {
	t.Helper()
	store := state.NewStore()
	store.Set(state.Entity{ID: "light.kitchen", State: "on"})
	store.Set(state.Entity{ID: "light.hall", State: "off"})
	store.Set(state.Entity{
		ID:         "climate.living",
		State:      "heat",
		Attributes: map[string]any{"temperature": 21.5},
	})
	return &Env{
		Room:     "living",
		OffValue: "OFF",
		States:   store,
		Snippets: map[string]*schedule.Schedule{
			"night": {Name: "night"},
		},
		Constants: map[string]any{"eco_temp": 17.0},
		Logger:    zerolog.Nop(),
	}
}

func mustEval(t *testing.T, env *Env, src string) schedule.Outcome {
	t.Helper()
	program, err := env.Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	out, err := program.Evaluate(wednesdayNoon)
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", src, err)
	}
	return out
}

func TestEvaluateScalars(t *testing.T) {
	env := testEnv(t)

	tests := []struct {
		src  string
		want any
	}{
		{"21.5", 21.5},
		{"21", int64(21)},
		{"true", true},
		{`"on"`, "on"},
		{"room_name", "living"},
		{"eco_temp", 17.0},
		{"eco_temp + 2", 19.0},
		{"OFF", "OFF"},
	}
	for _, tt := range tests {
		out := mustEval(t, env, tt.src)
		if out.Kind != schedule.KindValue || out.Value != tt.want {
			t.Errorf("%q = %+v, want value %v", tt.src, out, tt.want)
		}
	}
}

func TestEvaluateClockBindings(t *testing.T) {
	env := testEnv(t)

	out := mustEval(t, env, "date.weekday")
	if out.Kind != schedule.KindValue || out.Value != int64(3) {
		t.Fatalf("date.weekday = %+v, want 3", out)
	}
	out = mustEval(t, env, "time.hour >= 6 && time.hour < 22")
	if out.Value != true {
		t.Fatalf("time.hour window = %+v", out)
	}
	out = mustEval(t, env, "date.year * 10000 + date.month * 100 + date.day")
	if out.Value != int64(20260826) {
		t.Fatalf("date arithmetic = %+v", out)
	}
}

func TestEvaluateStateBuiltins(t *testing.T) {
	env := testEnv(t)

	if out := mustEval(t, env, `state("light.kitchen")`); out.Value != "on" {
		t.Fatalf("state() = %+v", out)
	}
	if out := mustEval(t, env, `is_on("light.kitchen")`); out.Value != true {
		t.Fatalf("is_on = %+v", out)
	}
	if out := mustEval(t, env, `is_off("light.hall")`); out.Value != true {
		t.Fatalf("is_off = %+v", out)
	}
	if out := mustEval(t, env, `state_attr("climate.living", "temperature")`); out.Value != 21.5 {
		t.Fatalf("state_attr = %+v", out)
	}
	if out := mustEval(t, env, `len(filter_entities("light.", "on"))`); out.Value != int64(1) {
		t.Fatalf("filter_entities = %+v", out)
	}
	// unknown entity reads as undefined, which inherits
	if out := mustEval(t, env, `state("light.none")`); out.Kind != schedule.KindInherit {
		t.Fatalf("unknown entity = %+v, want inherit", out)
	}
}

func TestEvaluateControlResults(t *testing.T) {
	env := testEnv(t)

	if out := mustEval(t, env, "Skip()"); out.Kind != schedule.KindSkip {
		t.Fatalf("Skip() = %+v", out)
	}
	if out := mustEval(t, env, "Next()"); out.Kind != schedule.KindSkip {
		t.Fatalf("Next() = %+v", out)
	}
	if out := mustEval(t, env, "Abort()"); out.Kind != schedule.KindAbort {
		t.Fatalf("Abort() = %+v", out)
	}
	if out := mustEval(t, env, "Inherit()"); out.Kind != schedule.KindInherit {
		t.Fatalf("Inherit() = %+v", out)
	}
	if out := mustEval(t, env, "Break()"); out.Kind != schedule.KindBreak || out.Levels != 1 {
		t.Fatalf("Break() = %+v", out)
	}
	if out := mustEval(t, env, "Break(2)"); out.Kind != schedule.KindBreak || out.Levels != 2 {
		t.Fatalf("Break(2) = %+v", out)
	}
}

func TestEvaluatePostprocessorResults(t *testing.T) {
	env := testEnv(t)

	out := mustEval(t, env, "Add(2)")
	if out.Kind != schedule.KindPostprocessor {
		t.Fatalf("Add(2) = %+v", out)
	}
	if post, ok := out.Post.(schedule.AddPost); !ok || post.Amount != 2 {
		t.Fatalf("Add(2) post = %+v", out.Post)
	}

	out = mustEval(t, env, "Multiply(0.5)")
	if post, ok := out.Post.(schedule.MultiplyPost); !ok || post.Factor != 0.5 {
		t.Fatalf("Multiply post = %+v", out.Post)
	}

	out = mustEval(t, env, "Invert()")
	if _, ok := out.Post.(schedule.InvertPost); !ok {
		t.Fatalf("Invert post = %+v", out.Post)
	}

	out = mustEval(t, env, `Postprocess("x * 2")`)
	if out.Kind != schedule.KindPostprocessor {
		t.Fatalf("Postprocess = %+v", out)
	}
	got, err := out.Post.Apply(3.0)
	if err != nil || got != 6.0 {
		t.Fatalf("Postprocess apply = %v, %v", got, err)
	}
}

func TestEvaluateInclude(t *testing.T) {
	env := testEnv(t)

	out := mustEval(t, env, `IncludeSchedule("night")`)
	if out.Kind != schedule.KindInclude || out.Schedule != env.Snippets["night"] {
		t.Fatalf("IncludeSchedule = %+v", out)
	}

	out = mustEval(t, env, `IncludeSchedule(snippet("night"))`)
	if out.Kind != schedule.KindInclude || out.Schedule != env.Snippets["night"] {
		t.Fatalf("IncludeSchedule(snippet()) = %+v", out)
	}

	program, err := env.Compile(`IncludeSchedule("missing")`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := program.Evaluate(wednesdayNoon); !errors.Is(err, schedule.ErrExpression) {
		t.Fatalf("unknown snippet error = %v", err)
	}
}

func TestEvaluateMarkers(t *testing.T) {
	env := testEnv(t)

	out := mustEval(t, env, "Mark(21.5, OVERLAY)")
	if out.Kind != schedule.KindValue || out.Value != 21.5 {
		t.Fatalf("Mark value = %+v", out)
	}
	if len(out.Markers) != 1 || out.Markers[0] != schedule.MarkerOverlay {
		t.Fatalf("Mark markers = %v", out.Markers)
	}

	out = mustEval(t, env, `Mark(Skip(), "CUSTOM", OVERLAY_REVERT_ON_NO_RESULT)`)
	if out.Kind != schedule.KindSkip || len(out.Markers) != 2 {
		t.Fatalf("Mark(Skip()) = %+v", out)
	}
}

func TestEvaluateMultiLine(t *testing.T) {
	env := testEnv(t)

	src := "if is_on(\"light.kitchen\") {\n  result = 21.5\n} else {\n  result = eco_temp\n}"
	if out := mustEval(t, env, src); out.Kind != schedule.KindValue || out.Value != 21.5 {
		t.Fatalf("multi-line = %+v", out)
	}

	// a script that never assigns result inherits
	if out := mustEval(t, env, "unused := 1\nunused = unused + 1"); out.Kind != schedule.KindInherit {
		t.Fatalf("no result assignment = %+v", out)
	}
}

func TestEvaluateTypeErrors(t *testing.T) {
	env := testEnv(t)

	program, err := env.Compile("{a: 1}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := program.Evaluate(wednesdayNoon); !errors.Is(err, schedule.ErrRuntimeType) {
		t.Fatalf("plain map error = %v", err)
	}

	if _, err := env.Compile("result = = 1"); !errors.Is(err, schedule.ErrExpression) {
		t.Fatalf("syntax error = %v", err)
	}
}
