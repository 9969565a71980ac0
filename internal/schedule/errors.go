/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrConstraintSyntax indicates a malformed range spec, time string or
	// date literal in a rule definition. Reported at configuration load,
	// before any evaluation happens.
	ErrConstraintSyntax = errors.New("constraint syntax")

	// ErrRuntimeType indicates an expression returned a value of a shape the
	// evaluator does not recognize.
	ErrRuntimeType = errors.New("unrecognized result type")

	// ErrExpression indicates the expression fragment itself failed.
	ErrExpression = errors.New("expression execution")

	// ErrUnresolvedInheritance indicates an Inherit outcome with no ancestor
	// rule carrying a value or expression.
	ErrUnresolvedInheritance = errors.New("unresolved inheritance")

	// ErrPostprocessing indicates a postprocessor could not be applied to the
	// terminal value.
	ErrPostprocessing = errors.New("postprocessing")
)

// constraintSyntaxError returns a constraint syntax error with a custom
// message, which unwraps to ErrConstraintSyntax.
func constraintSyntaxError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConstraintSyntax, fmt.Sprintf(format, args...))
}

// postprocessingError returns an error which unwraps to ErrPostprocessing.
func postprocessingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPostprocessing, fmt.Sprintf(format, args...))
}
