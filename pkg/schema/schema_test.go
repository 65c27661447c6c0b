package schema

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, input string, _ string) ([]float32, error) {
	if v, ok := f.vectors[input]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func newTestIndex() (*Index, *fakeEmbedder) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	return New(emb, "test-embed", zap.NewNop()), emb
}

func TestRetrieve_EmptyIndexReturnsEmptySequence(t *testing.T) {
	idx, _ := newTestIndex()
	entries, err := idx.Retrieve(context.Background(), "revenue", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty result, got %d entries", len(entries))
	}
}

func TestBuildContext_EmptyIndexReturnsSentinel(t *testing.T) {
	idx, _ := newTestIndex()
	ctx, err := idx.BuildContext(context.Background(), "revenue", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx != EmptyIndexSentinel {
		t.Errorf("expected sentinel string, got %q", ctx)
	}
}

func TestRetrieve_SelfMatchIsFirst(t *testing.T) {
	idx, emb := newTestIndex()
	orders := Entry{
		TableName: "orders",
		DDL:       "CREATE TABLE orders (order_date date, total_amount numeric)",
		Columns: []Column{
			{Name: "order_date", Type: "date"},
			{Name: "total_amount", Type: "numeric"},
		},
	}
	emb.vectors[orders.document()] = []float32{1, 0, 0}
	emb.vectors["orders"] = []float32{1, 0, 0}

	if err := idx.Index(context.Background(), orders); err != nil {
		t.Fatalf("index failed: %v", err)
	}

	entries, err := idx.Retrieve(context.Background(), "orders", 1)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(entries) != 1 || entries[0].TableName != "orders" {
		t.Fatalf("expected orders first, got %+v", entries)
	}
}

func TestRetrieve_TiesBrokenByTableName(t *testing.T) {
	idx, emb := newTestIndex()
	a := Entry{TableName: "b_table", DDL: "CREATE TABLE b_table (id int)"}
	b := Entry{TableName: "a_table", DDL: "CREATE TABLE a_table (id int)"}
	emb.vectors[a.document()] = []float32{1, 0}
	emb.vectors[b.document()] = []float32{1, 0}
	emb.vectors["q"] = []float32{1, 0}

	if err := idx.Index(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	entries, err := idx.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].TableName != "a_table" {
		t.Errorf("expected a_table to win the tiebreak, got %s", entries[0].TableName)
	}
}

func TestIndex_FailedEmbeddingLeavesIndexUnchanged(t *testing.T) {
	idx, _ := newTestIndex()
	failing := &fakeEmbedder{vectors: nil}
	idx.embedder = failingEmbedder{}
	_ = failing

	err := idx.Index(context.Background(), Entry{TableName: "orders"})
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
	if len(idx.entries) != 0 {
		t.Errorf("expected index unchanged after failed embed, got %d entries", len(idx.entries))
	}
}

type failingEmbedder struct{}

func (failingEmbedder) CreateEmbedding(context.Context, string, string) ([]float32, error) {
	return nil, errAlwaysFails
}

var errAlwaysFails = &embedError{}

type embedError struct{}

func (e *embedError) Error() string { return "embedding backend unavailable" }

func TestKCapping(t *testing.T) {
	idx, emb := newTestIndex()
	for i := 0; i < 15; i++ {
		e := Entry{TableName: string(rune('a' + i))}
		emb.vectors[e.document()] = []float32{1, 0}
		if err := idx.Index(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	emb.vectors["q"] = []float32{1, 0}

	entries, err := idx.Retrieve(context.Background(), "q", 999)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxK {
		t.Errorf("expected retrieval capped at %d, got %d", MaxK, len(entries))
	}
}
