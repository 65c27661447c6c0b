package llm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType classifies why an LLM call failed, so callers can decide
// whether to retry, fall back to another tier, or surface the failure.
type ErrorType string

const (
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified LLM failure carrying enough context (model,
// endpoint, status code) to log or retry without re-parsing the
// underlying provider error string.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
	Endpoint   string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", endpointHost(e.Endpoint)))
	}
	parts = append(parts, e.Message)

	msg := strings.Join(parts, " ")
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable satisfies retry.RetryableError without pkg/retry needing to
// import pkg/llm.
func (e *Error) IsRetryable() bool { return e.Retryable }

// endpointHost reduces an endpoint URL to its host, so a logged error
// never carries a full request path.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

// NewErrorWithContext is NewError plus the model/endpoint/status-code
// fields that make a logged failure actionable.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	e := NewError(errType, message, retryable, cause)
	e.Model = model
	e.Endpoint = endpoint
	e.StatusCode = statusCode
	return e
}

// statusCodePattern matches an HTTP/status/code marker immediately
// preceding a 3-digit number, so "port 5432" or "after 429 seconds" never
// get mistaken for a status code.
var statusCodePattern = regexp.MustCompile(`(?i)\b(?:http|status|code)\s*:?\s*(\d{3})\b`)

// extractStatusCode pulls an HTTP status code out of a raw error string,
// or 0 if none is present.
func extractStatusCode(errStr string) int {
	m := statusCodePattern.FindStringSubmatch(errStr)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// classifier pairs a predicate over the lowercased error text with the
// classification to apply when it matches. Order matters: the first match
// wins, so more specific conditions (auth, rate limiting) are listed
// ahead of the generic 5xx bucket.
type classifier struct {
	match     func(errStr, lower string) bool
	errType   ErrorType
	message   string
	retryable bool
}

var classifiers = []classifier{
	{
		match:     func(_, lower string) bool { return strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") },
		errType:   ErrorTypeAuth,
		message:   "authentication failed",
		retryable: false,
	},
	{
		match: func(_, lower string) bool {
			return strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist"))
		},
		errType:   ErrorTypeModel,
		message:   "model not found",
		retryable: false,
	},
	{
		match: func(errStr, lower string) bool {
			return strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
		},
		errType:   ErrorTypeRateLimited,
		message:   "rate limited",
		retryable: true,
	},
	{
		match:     func(_, lower string) bool { return strings.Contains(lower, "context canceled") },
		errType:   ErrorTypeEndpoint,
		message:   "request cancelled",
		retryable: false,
	},
	{
		match:     func(_, lower string) bool { return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") },
		errType:   ErrorTypeEndpoint,
		message:   "request timeout",
		retryable: true,
	},
	{
		match:     func(errStr, _ string) bool { return strings.Contains(errStr, "404") },
		errType:   ErrorTypeEndpoint,
		message:   "endpoint not found",
		retryable: false,
	},
	{
		match:     func(_, lower string) bool { return strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") },
		errType:   ErrorTypeEndpoint,
		message:   "connection failed",
		retryable: true,
	},
	{
		match: func(_, lower string) bool {
			return strings.Contains(lower, "cuda error") || strings.Contains(lower, "gpu error") || strings.Contains(lower, "out of memory")
		},
		errType:   ErrorTypeEndpoint,
		message:   "GPU error",
		retryable: true,
	},
	{
		match: func(errStr, _ string) bool {
			for _, code := range []string{"500", "502", "503", "504"} {
				if strings.Contains(errStr, code) {
					return true
				}
			}
			return false
		},
		errType:   ErrorTypeEndpoint,
		message:   "server error",
		retryable: true,
	},
}

// ClassifyError turns any error into a structured *Error. An error already
// carrying a classification passes through unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)
	statusCode := extractStatusCode(errStr)

	for _, c := range classifiers {
		if c.match(errStr, lower) {
			e := NewError(c.errType, c.message, c.retryable, err)
			e.StatusCode = statusCode
			return e
		}
	}

	e := NewError(ErrorTypeUnknown, "llm error", false, err)
	e.StatusCode = statusCode
	return e
}

// IsRetryable reports whether err, once classified, permits a retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorType returns err's classification, or ErrorTypeUnknown if err
// was never classified.
func GetErrorType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}
