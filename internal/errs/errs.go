// Package errs defines the error kinds surfaced by search and build operations.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable is returned when the embedding model failed to load or to embed a text.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrDataUnavailable is returned when the corpus artifact could not be fetched or decoded.
	ErrDataUnavailable = errors.New("corpus data unavailable")

	// ErrCorruptData is returned when the artifact violates a structural invariant.
	// It wraps ErrDataUnavailable.
	ErrCorruptData = fmt.Errorf("%w: corrupt artifact", ErrDataUnavailable)

	// ErrInvalidInput is returned for degenerate build inputs and bad arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// DimensionMismatchError indicates the query embedding and the corpus disagree on dimension.
// It wraps ErrModelUnavailable: the loaded model does not match the corpus.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: corpus has %d, query has %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrModelUnavailable }

// Corrupt returns an ErrCorruptData error carrying a formatted reason.
func Corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptData, fmt.Sprintf(format, args...))
}

// Invalid returns an ErrInvalidInput error carrying a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
