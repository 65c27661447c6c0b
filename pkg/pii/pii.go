// Package pii implements the bidirectional PII guardrail (C3): pattern
// detection on inbound query text and deterministic masking on outbound
// result rows, grounded on the teacher's regex-based sanitizer in
// pkg/logging and on original_source's guardrails.py detector taxonomy.
package pii

import (
	"regexp"
	"strings"
	"sync/atomic"
)

// Kind is one of the enumerated PII categories.
type Kind string

const (
	KindEmail      Kind = "EMAIL"
	KindSSN        Kind = "SSN"
	KindCreditCard Kind = "CREDIT_CARD"
	KindPhone      Kind = "PHONE"
	KindIP         Kind = "IP"
	KindAccount    Kind = "ACCOUNT"
	KindName       Kind = "NAME"
	KindAddress    Kind = "ADDRESS"
	KindDOB        Kind = "DOB"
)

// RiskLevel classifies the overall severity of a scan.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Detection is one PII hit.
type Detection struct {
	Kind       Kind    `json:"kind"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// ScanResult aggregates the detections from one scan.
type ScanResult struct {
	Detections    []Detection `json:"detections"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	SanitizedText string      `json:"sanitized_text"`
}

// regexConfidence is the confidence every pattern-based detection carries.
const regexConfidence = 0.9

var patterns = map[Kind]*regexp.Regexp{
	KindEmail:      regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	KindSSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	KindCreditCard: regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
	KindPhone:      regexp.MustCompile(`(?:\(\d{3}\)\s?|\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`),
	KindIP:         regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	KindAccount:    regexp.MustCompile(`\b\d{8,16}\b`),
	KindDOB:        regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`),
}

// detectOrder controls scan precedence so a substring already classified
// as SSN or credit card is never re-classified as a bare ACCOUNT number.
var detectOrder = []Kind{KindEmail, KindSSN, KindCreditCard, KindPhone, KindIP, KindDOB, KindAccount}

// AdvancedDetector is a pluggable extension point for NAME/ADDRESS
// detection. The base configuration ships no implementation — a
// presidio-equivalent model or NER pipeline can be wired in later without
// changing the Scanner's public contract.
type AdvancedDetector interface {
	Detect(text string) []Detection
}

// Scanner is the PIIScanner (C3).
type Scanner struct {
	advanced AdvancedDetector

	blockedQueries   atomic.Int64
	redactedResults  atomic.Int64
	totalDetections  atomic.Int64
}

// New builds a Scanner. advanced may be nil, matching the spec's "absent
// in base configuration" default.
func New(advanced AdvancedDetector) *Scanner {
	return &Scanner{advanced: advanced}
}

// ScanQuery detects PII in text and reports whether the pipeline should
// proceed. proceed=false iff (strict AND level != LOW) OR level == CRITICAL.
func (s *Scanner) ScanQuery(text string, strict bool) (ScanResult, bool) {
	result := s.scan(text)

	proceed := true
	if strict && result.RiskLevel != RiskLow {
		proceed = false
	}
	if result.RiskLevel == RiskCritical {
		proceed = false
	}

	if !proceed {
		s.blockedQueries.Add(1)
	}
	return result, proceed
}

func (s *Scanner) scan(text string) ScanResult {
	claimed := make([]bool, len(text))
	var detections []Detection

	for _, kind := range detectOrder {
		re := patterns[kind]
		for _, loc := range re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if rangeClaimed(claimed, start, end) {
				continue
			}
			markClaimed(claimed, start, end)
			detections = append(detections, Detection{
				Kind:       kind,
				Value:      text[start:end],
				Start:      start,
				End:        end,
				Confidence: regexConfidence,
			})
		}
	}

	if s.advanced != nil {
		detections = append(detections, s.advanced.Detect(text)...)
	}

	s.totalDetections.Add(int64(len(detections)))

	return ScanResult{
		Detections:    detections,
		RiskLevel:     classify(detections),
		SanitizedText: maskText(text, detections),
	}
}

func rangeClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end && i < len(claimed); i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func markClaimed(claimed []bool, start, end int) {
	for i := start; i < end && i < len(claimed); i++ {
		claimed[i] = true
	}
}

// highBucket is the {EMAIL, PHONE, ADDRESS} set used for HIGH/MEDIUM
// classification.
var highBucket = map[Kind]bool{KindEmail: true, KindPhone: true, KindAddress: true}

// criticalBucket is the {SSN, CREDIT_CARD, ACCOUNT} set that always forces
// CRITICAL.
var criticalBucket = map[Kind]bool{KindSSN: true, KindCreditCard: true, KindAccount: true}

func classify(detections []Detection) RiskLevel {
	if len(detections) == 0 {
		return RiskLow
	}

	var highCount int
	var hasName, hasAddress bool
	for _, d := range detections {
		if criticalBucket[d.Kind] {
			return RiskCritical
		}
		if highBucket[d.Kind] {
			highCount++
		}
		switch d.Kind {
		case KindName:
			hasName = true
		case KindAddress:
			hasAddress = true
		}
	}

	if highCount >= 3 || (hasName && hasAddress) {
		return RiskHigh
	}
	if highCount >= 1 {
		return RiskMedium
	}
	return RiskLow
}

func maskText(text string, detections []Detection) string {
	if len(detections) == 0 {
		return text
	}
	// Apply masks back-to-front so earlier byte offsets stay valid.
	ordered := make([]Detection, len(detections))
	copy(ordered, detections)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Start > ordered[i].Start {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	out := text
	for _, d := range ordered {
		out = out[:d.Start] + Mask(d.Kind, d.Value) + out[d.End:]
	}
	return out
}

// Mask applies the deterministic per-kind masking rule to a single value.
func Mask(kind Kind, value string) string {
	switch kind {
	case KindEmail:
		at := strings.Index(value, "@")
		if at <= 0 {
			return "[REDACTED]"
		}
		return string(value[0]) + "***@" + value[at+1:]
	case KindSSN:
		return "***-**-" + lastN(value, 4)
	case KindCreditCard:
		return "****-****-****-" + lastNDigits(value, 4)
	case KindPhone:
		return "(***) ***-" + lastNDigits(value, 4)
	case KindName:
		fields := strings.Fields(value)
		parts := make([]string, len(fields))
		for i, f := range fields {
			if len(f) == 0 {
				continue
			}
			parts[i] = string(f[0]) + "***"
		}
		return strings.Join(parts, " ")
	case KindAccount:
		return "****" + lastNDigits(value, 4)
	case KindIP:
		octets := strings.Split(value, ".")
		if len(octets) != 4 {
			return "[REDACTED]"
		}
		return octets[0] + "." + octets[1] + ".***.***"
	case KindAddress, KindDOB:
		return "[REDACTED]"
	default:
		return "[REDACTED]"
	}
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// lastNDigits returns the last n digit characters of s, ignoring
// separators like '-' or ' '.
func lastNDigits(s string, n int) string {
	var digits []byte
	for i := len(s) - 1; i >= 0 && len(digits) < n; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append([]byte{s[i]}, digits...)
		}
	}
	return string(digits)
}

// Value is the JSON-like tree Redact operates over: nested maps, slices,
// strings, numbers, booleans, or nil.
type Value = any

// Redact deep-copies value and masks string leaves that match a PII
// pattern. Numbers, booleans, and nils pass through unchanged. Redact
// never mutates its input, and is idempotent: Redact(Redact(x)) ==
// Redact(x).
func (s *Scanner) Redact(value Value) Value {
	result := s.redact(value)
	return result
}

func (s *Scanner) redact(value Value) Value {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = s.redact(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.redact(item)
		}
		return out
	case string:
		scanResult := s.scan(v)
		if len(scanResult.Detections) > 0 {
			s.redactedResults.Add(1)
		}
		return scanResult.SanitizedText
	default:
		return v
	}
}

// Counters is the {blocked_queries, redacted_results, total_detections}
// summary, monotonically increasing within a process lifetime.
type Counters struct {
	BlockedQueries  int64 `json:"blocked_queries"`
	RedactedResults int64 `json:"redacted_results"`
	TotalDetections int64 `json:"total_detections"`
}

// Counters returns a snapshot of the running counters.
func (s *Scanner) Counters() Counters {
	return Counters{
		BlockedQueries:  s.blockedQueries.Load(),
		RedactedResults: s.redactedResults.Load(),
		TotalDetections: s.totalDetections.Load(),
	}
}
