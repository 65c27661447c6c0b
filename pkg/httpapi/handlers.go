package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/querymind/engine/pkg/analytics"
	"github.com/querymind/engine/pkg/glossary"
	"github.com/querymind/engine/pkg/monitor"
	"github.com/querymind/engine/pkg/pii"
	"github.com/querymind/engine/pkg/pipeline"
	"github.com/querymind/engine/pkg/research"
	"github.com/querymind/engine/pkg/sandbox"
	"github.com/querymind/engine/pkg/schema"
	"github.com/querymind/engine/pkg/sql"
)

// QueryMode selects how a /api/query request is handled.
type QueryMode string

const (
	ModeStandard  QueryMode = "standard"
	ModeAnalytics QueryMode = "analytics"
	ModeResearch  QueryMode = "research"
)

// QueryRequest is the POST /api/query request body.
type QueryRequest struct {
	Query  string    `json:"query"`
	Mode   QueryMode `json:"mode"`
	Strict bool      `json:"strict_pii"`
}

// QueryResponse is the POST /api/query response body. Fields are omitted
// per mode: Analytics/Chart populate only in ModeAnalytics, Research only
// in ModeResearch.
type QueryResponse struct {
	SQL             string             `json:"sql,omitempty"`
	Status          pipeline.Status    `json:"status"`
	Confidence      float64            `json:"confidence"`
	Attempts        int                `json:"attempts"`
	Reason          string             `json:"reason,omitempty"`
	Columns         []sql.ColumnInfo   `json:"columns,omitempty"`
	Rows            []map[string]any   `json:"rows,omitempty"`
	Analytics       any                `json:"analytics_result,omitempty"`
	Chart           *analytics.ChartSpec `json:"chart,omitempty"`
	ResearchSummary string             `json:"research_summary,omitempty"`
	PIIBlocked      bool               `json:"pii_blocked,omitempty"`
	PIIRiskLevel    pii.RiskLevel      `json:"pii_risk_level,omitempty"`
}

// QueryHandler serves the natural-language query pipeline across all three
// modes.
type QueryHandler struct {
	Schema    *schema.Index
	Glossary  *glossary.Glossary
	Guardrail *pii.Scanner
	Pipeline  *pipeline.Pipeline
	Executor  *sql.Executor
	Planner   *analytics.Planner
	Sandbox   *sandbox.Sandbox
	Research  *research.Fetcher
	Logger    *zap.Logger
}

// RegisterRoutes registers this handler's routes on mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.HandleQuery)
	mux.HandleFunc("GET /api/guardrails/summary", h.HandleGuardrailsSummary)
}

// HandleQuery implements POST /api/query.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, h.Logger, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.Query == "" {
		ErrorResponse(w, h.Logger, http.StatusBadRequest, "empty_query", "query must not be empty")
		return
	}
	if req.Mode == "" {
		req.Mode = ModeStandard
	}

	scanResult, proceed := h.Guardrail.ScanQuery(req.Query, req.Strict)
	if !proceed {
		WriteJSON(w, h.Logger, QueryResponse{
			Status:       pipeline.StatusFailed,
			Reason:       "query blocked by PII guardrail",
			PIIBlocked:   true,
			PIIRiskLevel: scanResult.RiskLevel,
		})
		return
	}

	ctx := r.Context()
	focusedContext, err := h.Schema.BuildContext(ctx, req.Query, schema.DefaultK)
	if err != nil {
		ErrorResponse(w, h.Logger, http.StatusInternalServerError, "schema_error", err.Error())
		return
	}
	focusedContext = h.Glossary.EnrichContext(req.Query, focusedContext)

	var researchSummary string
	if req.Mode == ModeResearch && h.Research != nil {
		findings := h.Research.Search(ctx, req.Query, research.ModeGeneral)
		researchSummary = findings.Summary
		if findings.Summary != "" {
			focusedContext += "\n\n-- Research\n" + findings.Summary
		}
	}

	artifact, err := h.Pipeline.Run(ctx, req.Query, focusedContext)
	if err != nil {
		ErrorResponse(w, h.Logger, http.StatusInternalServerError, "pipeline_error", err.Error())
		return
	}

	resp := QueryResponse{
		SQL:             artifact.SQL,
		Status:          artifact.Status,
		Confidence:      artifact.Confidence,
		Attempts:        artifact.Attempts,
		Reason:          artifact.Reason,
		ResearchSummary: researchSummary,
	}

	if artifact.Status != pipeline.StatusValid {
		WriteJSON(w, h.Logger, resp)
		return
	}

	execResult, err := h.Executor.Run(ctx, artifact.SQL, sql.DefaultRowLimit, sql.DefaultTimeout)
	if err != nil {
		ErrorResponse(w, h.Logger, http.StatusInternalServerError, "execution_error", err.Error())
		return
	}
	resp.Columns = execResult.Columns
	resp.Rows = redactRows(h.Guardrail, execResult.Rows)

	if req.Mode == ModeAnalytics && h.Planner != nil && h.Sandbox != nil {
		if err := h.runAnalytics(ctx, req.Query, execResult, &resp); err != nil {
			if !errors.Is(err, analytics.ErrNoAnalyticsIntent) {
				h.Logger.Warn("analytics recipe failed, returning raw query result only", zap.Error(err))
			}
		}
	}

	WriteJSON(w, h.Logger, resp)
}

// redactRows applies the guardrail's masking to every cell of a result
// set, preserving row order and column keys.
func redactRows(guardrail *pii.Scanner, rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = guardrail.Redact(row).(map[string]any)
	}
	return out
}

// rowsToTable flattens a column-keyed result set into the ordered
// [][]any shape the sandbox's Table expects.
func rowsToTable(name string, columns []sql.ColumnInfo, rows []map[string]any) sandbox.Table {
	colNames := make([]string, len(columns))
	for i, c := range columns {
		colNames[i] = c.Name
	}

	flat := make([][]any, len(rows))
	for i, row := range rows {
		values := make([]any, len(colNames))
		for j, col := range colNames {
			values[j] = row[col]
		}
		flat[i] = values
	}
	return sandbox.Table{Name: name, Columns: colNames, Rows: flat}
}

func (h *QueryHandler) runAnalytics(ctx context.Context, query string, execResult *sql.ExecResult, resp *QueryResponse) error {
	tableName := "query_result"

	plan, err := h.Planner.Plan(query, []string{tableName})
	if err != nil {
		return fmt.Errorf("plan analytics recipe: %w", err)
	}

	table := rowsToTable(tableName, execResult.Columns, execResult.Rows)
	result, err := h.Sandbox.Run(ctx, plan.Code, []sandbox.Table{table}, 0)
	if err != nil {
		return fmt.Errorf("run sandbox: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("sandbox execution failed: %s", result.Error)
	}

	resp.Analytics = result.Result
	resp.Chart = &plan.ChartSpec
	return nil
}

// HandleGuardrailsSummary implements GET /api/guardrails/summary.
func (h *QueryHandler) HandleGuardrailsSummary(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, h.Logger, h.Guardrail.Counters())
}

// SentryHandler exposes the anomaly sentry's control surface.
type SentryHandler struct {
	Sentry *monitor.Sentry
	Bus    *monitor.AlertBus
	Logger *zap.Logger
}

// RegisterRoutes registers this handler's routes on mux.
func (h *SentryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sentry/alerts", h.ListRecentAlerts)
	mux.HandleFunc("GET /api/sentry/metrics/{metric}", h.CheckMetric)
	mux.HandleFunc("GET /api/sentry/stream", h.StreamAlerts)
}

// ListRecentAlerts implements GET /api/sentry/alerts?limit=N.
func (h *SentryHandler) ListRecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			ErrorResponse(w, h.Logger, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	WriteJSON(w, h.Logger, h.Sentry.RecentAlerts(limit))
}

// CheckMetric implements GET /api/sentry/metrics/{metric}, running an
// on-demand check outside the periodic sweep.
func (h *SentryHandler) CheckMetric(w http.ResponseWriter, r *http.Request) {
	metric := monitor.MetricName(r.PathValue("metric"))
	alert, err := h.Sentry.CheckMetric(r.Context(), metric)
	if err != nil {
		ErrorResponse(w, h.Logger, http.StatusInternalServerError, "check_metric_failed", err.Error())
		return
	}
	WriteJSON(w, h.Logger, alert)
}

// StreamAlerts implements GET /api/sentry/stream as Server-Sent Events.
// The first frame is always {"type":"connection"}; every alert thereafter
// is framed as {"type":"alert","alert":{...}}.
func (h *SentryHandler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ErrorResponse(w, h.Logger, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeFrame(w, map[string]any{"type": "connection"})
	flusher.Flush()

	alerts, unsubscribe := h.Bus.Subscribe(16)
	defer unsubscribe()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeFrame(w, map[string]any{"type": "heartbeat"})
			flusher.Flush()
		case alert, ok := <-alerts:
			if !ok {
				return
			}
			writeFrame(w, map[string]any{"type": "alert", "alert": alert})
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, frame map[string]any) {
	body, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
}

// ReportHandler generates a narrative report from a prior query result.
// The synthesis itself is an LLM call the caller supplies; this handler
// only validates the request shape and enforces the guardrail on output.
type ReportHandler struct {
	Guardrail *pii.Scanner
	Generate  func(ctx context.Context, sqlText string, columns []sql.ColumnInfo, rows [][]any) (string, error)
	Logger    *zap.Logger
}

// RegisterRoutes registers this handler's routes on mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/report", h.HandleGenerate)
}

type reportRequest struct {
	SQL     string           `json:"sql"`
	Columns []sql.ColumnInfo `json:"columns"`
	Rows    [][]any          `json:"rows"`
}

type reportResponse struct {
	Report string `json:"report"`
}

// HandleGenerate implements POST /api/report.
func (h *ReportHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if h.Generate == nil {
		ErrorResponse(w, h.Logger, http.StatusNotImplemented, "report_generation_unconfigured", "no report generator configured")
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, h.Logger, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	report, err := h.Generate(r.Context(), req.SQL, req.Columns, req.Rows)
	if err != nil {
		ErrorResponse(w, h.Logger, http.StatusInternalServerError, "report_generation_failed", err.Error())
		return
	}

	redacted := h.Guardrail.Redact(report).(string)
	WriteJSON(w, h.Logger, reportResponse{Report: redacted})
}
