package events

import (
	"errors"
	"fmt"

	"github.com/okian/bidsify/internal/domain/model"
)

// Terminal failure states of a conversion. All of them are data errors
// except ErrMalformedCodeSpec, which is a configuration error.
var (
	ErrNoPulse           = errors.New("no pulse found")
	ErrNoMatchingRows    = errors.New("no matching rows")
	ErrAmbiguousDuration = errors.New("ambiguous duration")
	ErrMalformedLog      = errors.New("malformed log")
	ErrMalformedCodeSpec = errors.New("malformed code spec")
	ErrInvalidState      = errors.New("invalid parser state")
	ErrNoTaskConfig      = errors.New("no task config")
)

// NoMatchingRowsError names the condition whose code spec selected nothing.
type NoMatchingRowsError struct {
	Condition string
	Spec      CodeSpec
}

func (e *NoMatchingRowsError) Error() string {
	return fmt.Sprintf("%s: condition %q (codes %s)", ErrNoMatchingRows, e.Condition, e.Spec)
}

// Is matches ErrNoMatchingRows and the data error kind.
func (e *NoMatchingRowsError) Is(target error) bool {
	return target == ErrNoMatchingRows || target == model.ErrData
}

// AmbiguousDurationError reports more than one missing duration in a
// condition that takes durations from the log.
type AmbiguousDurationError struct {
	Condition string
	Missing   int
}

func (e *AmbiguousDurationError) Error() string {
	return fmt.Sprintf("%s: %d missing durations for condition %q; set con_durations explicitly",
		ErrAmbiguousDuration, e.Missing, e.Condition)
}

// Is matches ErrAmbiguousDuration and the data error kind.
func (e *AmbiguousDurationError) Is(target error) bool {
	return target == ErrAmbiguousDuration || target == model.ErrData
}

// MalformedCodeSpecError reports a con_codes entry of unsupported shape.
type MalformedCodeSpecError struct {
	Condition string
	Value     any
}

func (e *MalformedCodeSpecError) Error() string {
	return fmt.Sprintf("%s: condition %q: %v", ErrMalformedCodeSpec, e.Condition, e.Value)
}

// Is matches ErrMalformedCodeSpec and the configuration error kind.
func (e *MalformedCodeSpecError) Is(target error) bool {
	return target == ErrMalformedCodeSpec || target == model.ErrConfig
}

func dataErr(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", sentinel, fmt.Sprintf(format, args...), model.ErrData)
}
