package quant

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures and degradations.
type ErrorKind string

const (
	// KindInsufficientData aborts the run: not enough history to forecast.
	KindInsufficientData ErrorKind = "insufficient_data"
	// KindMissingMacroSeries drops a macro series; the run continues.
	KindMissingMacroSeries ErrorKind = "missing_macro_series"
	// KindDegenerateVariance replaces a standardized value with 0; the run continues.
	KindDegenerateVariance ErrorKind = "degenerate_variance"
	// KindNumerical is an unexpected numerical fault recovered at the engine boundary.
	KindNumerical ErrorKind = "numerical"
)

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrInsufficientData   = errors.New("insufficient data")
	ErrMissingMacroSeries = errors.New("missing macro series")
	ErrDegenerateVariance = errors.New("degenerate variance")
	ErrNumerical          = errors.New("numerical failure")
)

// Error is the typed failure returned by the pipeline.
type Error struct {
	Kind    ErrorKind
	Stage   string
	Message string
}

// Error returns the error message string.
func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
}

// Is matches the sentinel error for the kind.
func (e *Error) Is(target error) bool {
	return kindSentinel(e.Kind) == target
}

// Fatal reports whether the kind aborts the pipeline.
func (e *Error) Fatal() bool {
	return e.Kind == KindInsufficientData || e.Kind == KindNumerical
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case KindInsufficientData:
		return ErrInsufficientData
	case KindMissingMacroSeries:
		return ErrMissingMacroSeries
	case KindDegenerateVariance:
		return ErrDegenerateVariance
	case KindNumerical:
		return ErrNumerical
	}
	return nil
}

func insufficientData(stage string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInsufficientData, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Diagnostic records a non-fatal degradation absorbed by a stage.
type Diagnostic struct {
	Kind    ErrorKind `json:"kind"`
	Stage   string    `json:"stage"`
	Ticker  string    `json:"ticker,omitempty"`
	Message string    `json:"message"`
}

// Err converts the diagnostic into a typed error.
func (d Diagnostic) Err() error {
	return &Error{Kind: d.Kind, Stage: d.Stage, Message: d.Message}
}
