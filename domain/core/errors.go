package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrDataShape   = errors.New("data shape error")
	ErrNotFound    = errors.New("resource not found")
	ErrFitNotFound = fmt.Errorf("%w: fit", ErrNotFound)

	// Numeric errors
	ErrNumericInstability = errors.New("numeric instability")
	ErrFitFailure         = errors.New("fit failure")

	// Configuration errors
	ErrConfig = errors.New("invalid configuration")
)

// DataShapeError reports a table that lacks a column or condition needed to
// define a fit target.
type DataShapeError struct {
	Table   string
	Missing []string
	Columns []string
}

func (e *DataShapeError) Error() string {
	msg := fmt.Sprintf("%s: missing %s", e.Table, strings.Join(e.Missing, ", "))
	if len(e.Columns) > 0 {
		msg += fmt.Sprintf(" (have %s)", strings.Join(e.Columns, ", "))
	}
	return msg
}

func (e *DataShapeError) Unwrap() error {
	return ErrDataShape
}

// FitFailureError is returned when no candidate in a search space produced a
// finite loss.
type FitFailureError struct {
	Problem   string
	Evaluated int
	Excluded  int
	Reason    string
}

func (e *FitFailureError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "all candidates diverged"
	}
	return fmt.Sprintf("%s: %s (%d evaluated, %d non-finite)", e.Problem, reason, e.Evaluated, e.Excluded)
}

func (e *FitFailureError) Unwrap() error {
	return ErrFitFailure
}

// Error constructors with context
func NewDataShapeError(table string, missing ...string) error {
	return &DataShapeError{Table: table, Missing: missing}
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfig, field, reason)
}

func NewInstabilityError(step int, t float64) error {
	return fmt.Errorf("%w: non-finite state at step %d (t=%g)", ErrNumericInstability, step, t)
}

// Error checking helpers
func IsDataShapeError(err error) bool {
	return errors.Is(err, ErrDataShape)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

func IsFitFailure(err error) bool {
	return errors.Is(err, ErrFitFailure)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
