package pipeline

import (
	"errors"
	"net/http"

	"github.com/TobiSchelling/cropscope/internal/backoff"
	"github.com/TobiSchelling/cropscope/internal/llm"
)

// ErrNotConfigured is returned when the generation provider has no credential.
var ErrNotConfigured = llm.ErrNotConfigured

// FailureKind classifies a narrative generation failure.
type FailureKind string

const (
	KindOverload  FailureKind = "overload"
	KindRateLimit FailureKind = "rate_limit"
	KindAuth      FailureKind = "auth"
	KindGeneric   FailureKind = "generic"
)

// GenerationError is a narrative failure after retries.
type GenerationError struct {
	Kind   FailureKind
	Status int
	Err    error
}

func (e *GenerationError) Error() string {
	return "generate narrative (" + string(e.Kind) + "): " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure kind.
func (e *GenerationError) Message() string {
	switch e.Kind {
	case KindOverload:
		return "The analysis service is temporarily overloaded. Please try again in a few moments."
	case KindRateLimit:
		return "Too many requests to the analysis service. Please wait a moment and try again."
	case KindAuth:
		return "The analysis service rejected the configured API key."
	default:
		return "Failed to generate analysis. Please try again."
	}
}

func classify(err error) *GenerationError {
	ge := &GenerationError{Kind: KindGeneric, Err: err}
	code, ok := backoff.StatusOf(err)
	if !ok {
		return ge
	}
	ge.Status = code
	switch {
	case code == backoff.StatusOverloaded, code == http.StatusServiceUnavailable:
		ge.Kind = KindOverload
	case code == http.StatusTooManyRequests:
		ge.Kind = KindRateLimit
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		ge.Kind = KindAuth
	}
	return ge
}

// IsUserError reports whether err came from bad input rather than a failure.
func IsUserError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
