// Package pipeline implements the SelfHealingPipeline (C7): a bounded
// generate→critique→correct loop over three cooperating agents, grounded
// on original_source's critic.py/validator_agent.py separation and on the
// teacher's confidence-scored, structured-verdict conventions in
// pkg/llm/errors.go.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/querymind/engine/pkg/sql"
)

// MaxAttempts bounds the generate→critique→correct loop.
const MaxAttempts = 3

// Status is the SQLArtifact's validation verdict.
type Status string

const (
	StatusValid  Status = "valid"
	StatusUnsafe Status = "unsafe"
	StatusFailed Status = "failed"
)

// Artifact is the SQLArtifact produced by the loop. If Status is
// StatusUnsafe, SQL MUST be empty and Confidence MUST be 0 — enforced by
// the loop itself, never by a caller.
type Artifact struct {
	SQL            string   `json:"sql,omitempty"`
	Attempts       int      `json:"attempts"`
	Confidence     float64  `json:"confidence"`
	AgentsInvolved []string `json:"agents_involved"`
	Status         Status   `json:"status"`
	Reason         string   `json:"reason,omitempty"`
}

// CriticVerdictStatus is the Critic's structured review outcome.
type CriticVerdictStatus string

const (
	VerdictOK     CriticVerdictStatus = "ok"
	VerdictError  CriticVerdictStatus = "error"
	VerdictUnsafe CriticVerdictStatus = "unsafe"
)

// CriticVerdict is the Critic's structured output.
type CriticVerdict struct {
	Status         CriticVerdictStatus
	ErrorMessage   string
	CorrectionPlan string
	IsDML          bool
	Confidence     float64
}

// Architect generates SQL from a query, context, and optional correction
// feedback from a previous attempt.
type Architect interface {
	Generate(ctx context.Context, query, focusedContext, feedback string) (string, error)
}

// Critic reviews Architect output and returns a structured verdict. The
// spec calls for temperature 0 and a higher-reasoning model when
// available — both are properties of the concrete implementation, not
// this interface.
type Critic interface {
	Review(ctx context.Context, query, sql, focusedContext string) (CriticVerdict, error)
}

// Validator is the final safety gate.
type Validator interface {
	// Check returns ok=true when sql passes every safety rule, or ok=false
	// with a human-readable rejection reason otherwise.
	Check(sql, focusedContext string) (ok bool, reason string)
}

// Pipeline drives the Architect → Critic → Validator loop.
type Pipeline struct {
	Architect Architect
	Critic    Critic
	Validator Validator
	logger    *zap.Logger
}

// New builds a Pipeline from its three agents.
func New(architect Architect, critic Critic, validator Validator, logger *zap.Logger) *Pipeline {
	return &Pipeline{Architect: architect, Critic: critic, Validator: validator, logger: logger.Named("pipeline")}
}

var agentsInvolved = []string{"architect", "critic", "validator"}

// Run executes the bounded generate→critique→correct loop. Cancellation
// is checked between attempts; an already-cancelled context aborts before
// the first Architect call.
func (p *Pipeline) Run(ctx context.Context, query, focusedContext string) (Artifact, error) {
	if MaxAttempts <= 0 {
		return Artifact{Status: StatusFailed, Attempts: 0, Confidence: 0, Reason: "MAX_ATTEMPTS is 0"}, nil
	}

	var feedback, lastSQL string

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}

		sqlText, err := p.Architect.Generate(ctx, query, focusedContext, feedback)
		if err != nil {
			return Artifact{}, fmt.Errorf("architect: %w", err)
		}

		verdict, err := p.Critic.Review(ctx, query, sqlText, focusedContext)
		if err != nil {
			return Artifact{}, fmt.Errorf("critic: %w", err)
		}

		if verdict.IsDML || verdict.Status == VerdictUnsafe {
			return Artifact{
				Status:         StatusUnsafe,
				Attempts:       attempt,
				Confidence:     0,
				AgentsInvolved: agentsInvolved,
				Reason:         verdict.ErrorMessage,
			}, nil
		}

		if verdict.Status == VerdictOK {
			if ok, reason := p.Validator.Check(sqlText, focusedContext); ok {
				return Artifact{
					SQL:            sqlText,
					Status:         StatusValid,
					Attempts:       attempt,
					Confidence:     confidenceForAttempt(attempt),
					AgentsInvolved: agentsInvolved,
				}, nil
			} else {
				feedback = reason
			}
		} else {
			feedback = verdict.CorrectionPlan
		}

		lastSQL = sqlText
		p.logger.Debug("self-healing retry", zap.Int("attempt", attempt), zap.String("feedback", feedback))
	}

	return Artifact{
		SQL:            lastSQL,
		Status:         StatusFailed,
		Attempts:       MaxAttempts,
		Confidence:     failedConfidence(),
		AgentsInvolved: agentsInvolved,
		Reason:         "exhausted retries",
	}, nil
}

// confidenceForAttempt implements "first success: 0.95, each retry before
// success: -0.05".
func confidenceForAttempt(attempt int) float64 {
	return float64(95-5*(attempt-1)) / 100
}

// failedConfidence implements the exhausted-retries floor: once every
// attempt has been spent without a validated artifact, confidence bottoms
// out at 0.5 regardless of how many attempts MaxAttempts allows.
func failedConfidence() float64 {
	return 0.5
}

// unsafeTokenPattern matches DDL/DML tokens the Validator rejects, unless
// they appear inside a string literal.
var unsafeTokenPattern = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|REPLACE|EXEC|CALL|GRANT|REVOKE)\b`)

// SafetyValidator is the default Validator implementation.
type SafetyValidator struct{}

// Check implements Validator.Check per §4.7: leading token must be SELECT
// or WITH, no DDL/DML tokens outside string literals, and every table
// reference must resolve against the focused schema context.
func (SafetyValidator) Check(sqlText, focusedContext string) (bool, string) {
	trimmed := strings.TrimSpace(sqlText)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return false, "leading statement is not SELECT or WITH"
	}

	if hasUnsafeTokenOutsideStrings(sqlText) {
		return false, "SQL contains a disallowed DDL/DML token"
	}

	if hits := sql.CheckAllParameters(literalParams(sqlText)); len(hits) > 0 {
		return false, fmt.Sprintf("SQL string literal %q resembles a SQL injection payload (fingerprint %s)", hits[0].ParamValue, hits[0].Fingerprint)
	}

	if unresolved := unresolvedTables(sqlText, focusedContext); len(unresolved) > 0 {
		return false, fmt.Sprintf("SQL references tables outside the focused context: %s", strings.Join(unresolved, ", "))
	}

	return true, ""
}

// hasUnsafeTokenOutsideStrings walks sqlText tracking single/double-quote
// string state, matching the state-machine approach used elsewhere in this
// codebase for semicolon detection.
func hasUnsafeTokenOutsideStrings(sqlText string) bool {
	var out strings.Builder
	inSingle, inDouble := false, false
	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			out.WriteByte(' ')
		case c == '"' && !inSingle:
			inDouble = !inDouble
			out.WriteByte(' ')
		case inSingle || inDouble:
			out.WriteByte(' ')
		default:
			out.WriteByte(c)
		}
	}
	return unsafeTokenPattern.MatchString(out.String())
}

var stringLiteralPattern = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)

// literalParams extracts every quoted string literal in sqlText, keyed by
// position, so they can be run through sql.CheckAllParameters. Generated
// SQL has no bound parameters of its own, but an Architect that echoes a
// crafted user query verbatim into a string literal is the same injection
// surface a parameterized query's bound values would be.
func literalParams(sqlText string) map[string]any {
	matches := stringLiteralPattern.FindAllStringSubmatch(sqlText, -1)
	params := make(map[string]any, len(matches))
	for i, m := range matches {
		lit := m[1]
		if lit == "" {
			lit = m[2]
		}
		params[fmt.Sprintf("literal_%d", i)] = lit
	}
	return params
}

var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
var ddlTablePattern = regexp.MustCompile(`(?i)^-- ([a-zA-Z_][a-zA-Z0-9_]*)`)

// unresolvedTables extracts FROM/JOIN targets and reports any that never
// appear as a table name in focusedContext (as produced by
// schema.Index.BuildContext, one "-- table_name" header per table).
func unresolvedTables(sqlText, focusedContext string) []string {
	known := make(map[string]bool)
	for _, line := range strings.Split(focusedContext, "\n") {
		if m := ddlTablePattern.FindStringSubmatch(line); m != nil {
			known[strings.ToLower(m[1])] = true
		}
	}
	if len(known) == 0 {
		// No focused context to validate against — nothing to reject.
		return nil
	}

	var unresolved []string
	seen := make(map[string]bool)
	for _, m := range tableRefPattern.FindAllStringSubmatch(sqlText, -1) {
		name := strings.ToLower(strings.SplitN(m[1], ".", 2)[0])
		if known[name] || seen[name] {
			continue
		}
		seen[name] = true
		unresolved = append(unresolved, name)
	}
	return unresolved
}
