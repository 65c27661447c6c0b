package glossary

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type fakeKnownColumns struct{ cols map[string]bool }

func (f fakeKnownColumns) AllColumnNames() map[string]bool { return f.cols }

func writeGlossary(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "glossary.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleGlossary = `
terms:
  - name: "churned customer"
    definition: "a customer with no orders in the last 90 days"
    sql_fragment: "last_order_date < CURRENT_DATE - INTERVAL '90 days'"
    synonyms: ["churn", "lapsed customer"]
    related_tables: ["customers"]
    related_columns: ["last_order_date"]
column_aliases:
  total_amount: ["revenue", "sales"]
`

func TestLoad_UnknownColumnLogsWarningNotFailure(t *testing.T) {
	path := writeGlossary(t, sampleGlossary)
	known := fakeKnownColumns{cols: map[string]bool{"order_date": true}}

	g, err := Load(path, known, zap.NewNop())
	if err != nil {
		t.Fatalf("expected load to succeed despite unknown column, got %v", err)
	}
	if g == nil {
		t.Fatal("expected non-nil glossary")
	}
}

func TestLookup_BySynonym(t *testing.T) {
	path := writeGlossary(t, sampleGlossary)
	g, err := Load(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	term, ok := g.Lookup("churn")
	if !ok {
		t.Fatal("expected to find term by synonym")
	}
	if term.Name != "churned customer" {
		t.Errorf("expected canonical name, got %s", term.Name)
	}
}

func TestExpandAliases(t *testing.T) {
	path := writeGlossary(t, sampleGlossary)
	g, err := Load(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	aliases := g.ExpandAliases("total_amount")
	if len(aliases) != 2 {
		t.Errorf("expected 2 aliases, got %v", aliases)
	}
}

func TestEnrichContext_AppendsWholeWordMatches(t *testing.T) {
	path := writeGlossary(t, sampleGlossary)
	g, err := Load(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	enriched := g.EnrichContext("show me the churned customer count this month", "base")
	if enriched == "base" {
		t.Fatal("expected glossary term to be appended")
	}
}

func TestEnrichContext_NoMatchReturnsBaseUnchanged(t *testing.T) {
	path := writeGlossary(t, sampleGlossary)
	g, err := Load(path, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	enriched := g.EnrichContext("show me total revenue", "base")
	if enriched != "base" {
		t.Errorf("expected unchanged base context, got %q", enriched)
	}
}
