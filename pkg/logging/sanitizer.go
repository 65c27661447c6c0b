package logging

import "regexp"

const (
	// MaxLoggedQueryLen caps how much of a SQL query body ends up in a log
	// line before it is elided.
	MaxLoggedQueryLen = 100
	// redacted replaces any secret this package recognizes.
	redacted = "[REDACTED]"
)

// redaction pairs a secret-shaped pattern with the replacement template
// regexp.ReplaceAllString expects (so a capture group like the credential
// key name can be preserved while its value is dropped).
type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactions is applied in order to every string value a caller asks this
// package to sanitize: connection-string passwords, bearer/JWT tokens,
// API keys, and user:pass@host credentials embedded in a DSN.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + redacted},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`), "${1}=" + redacted},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`), "Bearer " + redacted},
	{regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`), "://" + redacted + "@" + redacted},
}

// sanitizeText runs every redaction pattern over s and returns the result.
// This is the single choke point every exported sanitizer in this file
// funnels through, so a new secret pattern only needs adding once.
func sanitizeText(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString strips credentials out of a database DSN before
// it reaches a log line.
func SanitizeConnectionString(connStr string) string {
	return sanitizeText(connStr)
}

// SanitizeError renders err's message with any embedded secret redacted,
// for logging an error from a database or HTTP client without leaking the
// credentials it may have echoed back.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeText(err.Error())
}

// SanitizeQuery truncates a SQL query to MaxLoggedQueryLen and redacts any
// credential pattern it contains.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	if len(query) > MaxLoggedQueryLen {
		query = query[:MaxLoggedQueryLen] + "..."
	}
	return sanitizeText(query)
}

// TruncateString truncates s to maxLen, appending "..." when it does.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
