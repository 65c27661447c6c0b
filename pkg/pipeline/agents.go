package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/querymind/engine/pkg/llm"
)

// LLMArchitect is the default Architect: a single LLM call that turns a
// natural-language query plus focused schema/glossary context into SQL.
type LLMArchitect struct {
	Client llm.LLMClient
}

const architectSystemPrompt = `You are a SQL architect. Given a business question and the ` +
	`available schema and glossary context, produce a single read-only SQL statement ` +
	`(SELECT or WITH) that answers the question. Respond with SQL only, no commentary, no ` +
	`markdown fences.`

// Generate implements Architect.
func (a *LLMArchitect) Generate(ctx context.Context, query, focusedContext, feedback string) (string, error) {
	prompt := fmt.Sprintf("Schema and glossary context:\n%s\n\nQuestion: %s", focusedContext, query)
	if feedback != "" {
		prompt += fmt.Sprintf("\n\nThe previous attempt was rejected for this reason, correct it: %s", feedback)
	}

	raw, err := a.Client.GenerateResponse(ctx, prompt, architectSystemPrompt, 0.2)
	if err != nil {
		return "", err
	}
	return stripFences(raw), nil
}

// LLMCritic is the default Critic. It is intended to be constructed with
// the reasoning-tier client (config.ReasoningOrPrimary) when one is
// configured, and runs at temperature 0 for deterministic review.
type LLMCritic struct {
	Client llm.LLMClient
}

const criticSystemPrompt = `You are a SQL critic. Review the candidate SQL statement against ` +
	`the question and the schema/glossary context. Respond with a single JSON object matching ` +
	`this shape and nothing else: ` +
	`{"status":"ok|error|unsafe","error_message":"","correction_plan":"","is_dml":false,"confidence":0.0}. ` +
	`status is "unsafe" for anything that mutates data or falls outside the given schema, ` +
	`"error" for SQL that is malformed or does not answer the question, and "ok" otherwise.`

type criticResponse struct {
	Status         string  `json:"status"`
	ErrorMessage   string  `json:"error_message"`
	CorrectionPlan string  `json:"correction_plan"`
	IsDML          bool    `json:"is_dml"`
	Confidence     float64 `json:"confidence"`
}

// Review implements Critic.
func (c *LLMCritic) Review(ctx context.Context, query, sqlText, focusedContext string) (CriticVerdict, error) {
	prompt := fmt.Sprintf(
		"Question: %s\n\nSchema and glossary context:\n%s\n\nCandidate SQL:\n%s",
		query, focusedContext, sqlText,
	)

	raw, err := c.Client.GenerateResponse(ctx, prompt, criticSystemPrompt, 0)
	if err != nil {
		return CriticVerdict{}, err
	}

	var parsed criticResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		// A critic response that isn't valid JSON is treated as an error
		// verdict rather than a pipeline failure, so the loop can retry.
		return CriticVerdict{
			Status:         VerdictError,
			ErrorMessage:   "critic returned a non-JSON response",
			CorrectionPlan: "regenerate the SQL and ensure it directly answers the question",
		}, nil
	}

	return CriticVerdict{
		Status:         CriticVerdictStatus(parsed.Status),
		ErrorMessage:   parsed.ErrorMessage,
		CorrectionPlan: parsed.CorrectionPlan,
		IsDML:          parsed.IsDML,
		Confidence:     parsed.Confidence,
	}, nil
}

// stripFences removes a leading/trailing ``` fenced block some LLMs wrap
// SQL and JSON responses in, despite being told not to.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if idx := strings.Index(t, "\n"); idx >= 0 {
		firstLine := strings.ToLower(strings.TrimSpace(t[:idx]))
		if firstLine == "sql" || firstLine == "json" || firstLine == "" {
			t = t[idx+1:]
		}
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
