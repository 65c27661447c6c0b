package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/querymind/engine/pkg/glossary"
	"github.com/querymind/engine/pkg/pii"
	"github.com/querymind/engine/pkg/pipeline"
	"github.com/querymind/engine/pkg/schema"
	"github.com/querymind/engine/pkg/sql"
)

func TestRedactRows_MasksMatchingCells(t *testing.T) {
	scanner := pii.New(nil)
	rows := []map[string]any{{"email": "john@example.com", "count": 5}}

	got := redactRows(scanner, rows)
	if got[0]["email"] == "john@example.com" {
		t.Error("expected email cell to be masked")
	}
	if got[0]["count"] != 5 {
		t.Error("expected non-string cell to pass through unchanged")
	}
}

func TestRowsToTable_PreservesColumnOrder(t *testing.T) {
	columns := []sql.ColumnInfo{{Name: "id"}, {Name: "total"}}
	rows := []map[string]any{{"id": 1, "total": 9.5}}

	table := rowsToTable("orders", columns, rows)
	if table.Rows[0][0] != 1 || table.Rows[0][1] != 9.5 {
		t.Errorf("expected column-ordered row, got %v", table.Rows[0])
	}
}

type fakeArchitect struct{ sql string }

func (a fakeArchitect) Generate(context.Context, string, string, string) (string, error) {
	return a.sql, nil
}

type fakeCritic struct{ verdict pipeline.CriticVerdict }

func (c fakeCritic) Review(context.Context, string, string, string) (pipeline.CriticVerdict, error) {
	return c.verdict, nil
}

func newTestHandler(t *testing.T) *QueryHandler {
	t.Helper()
	logger := zap.NewNop()

	idx := schema.New(nil, "", logger)
	gl, err := glossary.Load("", nil, logger)
	if err != nil {
		gl = &glossary.Glossary{}
	}

	p := pipeline.New(
		fakeArchitect{sql: "SELECT * FROM orders"},
		fakeCritic{verdict: pipeline.CriticVerdict{Status: pipeline.VerdictOK}},
		pipeline.SafetyValidator{},
		logger,
	)

	return &QueryHandler{
		Schema:    idx,
		Glossary:  gl,
		Guardrail: pii.New(nil),
		Pipeline:  p,
		Executor:  nil,
		Logger:    logger,
	}
}

func TestHandleQuery_EmptyQueryReturnsBadRequest(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte(`{"query":""}`)))
	w := httptest.NewRecorder()

	h.HandleQuery(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleQuery_CriticalPIIBlocksBeforePipelineRuns(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(QueryRequest{Query: "customer ssn is 123-45-6789"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleQuery(w, req)

	var resp QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.PIIBlocked {
		t.Fatal("expected PIIBlocked=true")
	}
	if resp.SQL != "" {
		t.Error("expected no SQL to have been generated")
	}
}
