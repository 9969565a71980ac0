/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import "sort"

// Result is the final outcome of a schedule evaluation: the value to apply
// plus the markers collected while computing it.
type Result struct {
	Value   any
	Markers []string
}

// HasMarker reports whether the result carries the given marker.
func (r *Result) HasMarker(marker string) bool {
	for _, m := range r.Markers {
		if m == marker {
			return true
		}
	}
	return false
}

// finalize validates the terminal value and applies the queued
// postprocessors in enqueue order. The configured off sentinel passes
// through untouched. A validation or postprocessing failure aborts the
// evaluation with no result.
func (e *Evaluator) finalize(value any, ctx *evalContext) *Result {
	value, ok := e.validated(value, ctx)
	if !ok {
		return nil
	}

	if len(ctx.post) > 0 && value != e.opts.OffValue {
		ctx.logger.Debug().Msg("applying postprocessors")
		for _, post := range ctx.post {
			next, err := post.Apply(value)
			if err != nil {
				ctx.logger.Error().Err(err).Stringer("postprocessor", post).
					Interface("value", value).Msg("postprocessing failed, dropping result")
				return nil
			}
			ctx.logger.Debug().Stringer("postprocessor", post).Interface("value", next).
				Msg("postprocessor applied")
			if next, ok = e.validated(next, ctx); !ok {
				return nil
			}
			value = next
		}
	}

	markers := make([]string, 0, len(ctx.markers))
	for marker := range ctx.markers {
		markers = append(markers, marker)
	}
	sort.Strings(markers)

	ctx.logger.Debug().Interface("value", value).Strs("markers", markers).Msg("final result")
	return &Result{Value: value, Markers: markers}
}

func (e *Evaluator) validated(value any, ctx *evalContext) (any, bool) {
	if e.opts.Validate == nil {
		return value, true
	}
	normalized, err := e.opts.Validate(value)
	if err != nil {
		ctx.logger.Error().Err(err).Interface("value", value).
			Msg("result value rejected, dropping result")
		return nil, false
	}
	return normalized, true
}
