package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrColumnNotFound is returned when an expression names an absent column
	// outside the presence guard (e.g. Frame lookups by callers).
	ErrColumnNotFound = errors.New("frame: column not found")
	// ErrTypeMismatch is returned when an operation meets a column whose
	// runtime type it cannot handle.
	ErrTypeMismatch = errors.New("frame: type mismatch")
	// ErrLength is returned when column lengths disagree.
	ErrLength = errors.New("frame: length mismatch")
	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("frame: duplicate column")
)

// StepError reports a failure while executing one plan step.
type StepError struct {
	Step   string
	Column string
	Err    error
}

func (e *StepError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("step %s: column %q: %v", e.Step, e.Column, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
