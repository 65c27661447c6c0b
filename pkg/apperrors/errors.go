// Package apperrors classifies failures into the five kinds the pipeline's
// error boundary distinguishes, so every component returns something a
// caller can act on instead of an opaque error string.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is one of the five error classes the pipeline boundary recognizes.
type Kind string

const (
	// PolicyViolation covers PII CRITICAL blocks and unsafe SQL. No retry.
	PolicyViolation Kind = "policy_violation"
	// Transient covers LLM 5xx, DB timeouts, web-search unavailability.
	// Retried at the component boundary before being surfaced.
	Transient Kind = "transient"
	// PermanentExternal covers malformed DB URLs, missing schema. No retry.
	PermanentExternal Kind = "permanent_external"
	// UserInput covers empty queries, invalid modes. Rejected before any
	// expensive step.
	UserInput Kind = "user_input"
	// Internal covers unexpected exceptions from a sub-component. Logged
	// with a correlation id, surfaced as a generic failure.
	Internal Kind = "internal"
)

// Error is the structured error every component boundary returns. It
// serializes to the {error, code, details?} wire shape; no stack trace ever
// leaves the process.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Summary string `json:"error"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Summary, e.Cause)
	}
	return e.Summary
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable satisfies pkg/retry.RetryableError: only Transient errors are
// worth retrying at a component boundary.
func (e *Error) IsRetryable() bool { return e.Kind == Transient }

// MarshalJSON implements the {error, code, details?} wire shape directly,
// so handlers can write an *Error to a response body unmodified.
func (e *Error) MarshalJSON() ([]byte, error) {
	type wire Error
	return json.Marshal((*wire)(e))
}

// New builds a classified error with a stable code.
func New(kind Kind, code, summary string) *Error {
	return &Error{Kind: kind, Code: code, Summary: summary}
}

// Wrap builds a classified error around a lower-level cause.
func Wrap(kind Kind, code, summary string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Summary: summary, Cause: cause}
}

// WithDetails attaches free-form diagnostic detail, returning the receiver
// for chaining at the call site.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind of a classified error, defaulting to Internal
// for anything that never went through New/Wrap — the pipeline boundary
// must never let an unclassified error escape as-is.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Sentinel errors used inside components before they are classified at the
// component boundary.
var (
	ErrEmptyQuery      = errors.New("query text is empty")
	ErrInvalidMode     = errors.New("invalid mode")
	ErrUnsafeSQL       = errors.New("sql failed safety validation")
	ErrPIIBlocked      = errors.New("query blocked: sensitive PII detected")
	ErrSchemaNotLoaded = errors.New("schema index is empty")
)
