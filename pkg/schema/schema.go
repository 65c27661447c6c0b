// Package schema implements the semantic schema store that focuses each
// query's LLM context to only the tables and columns relevant to it,
// grounded on the teacher's embedding-backed retrieval conventions in
// pkg/llm and its column-metadata model.
package schema

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Column describes one column in a SchemaEntry.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Entry is one physical table: a stable name, its DDL, its columns, and
// the embedding vector computed from its composed document at index time.
type Entry struct {
	TableName string    `json:"table_name"`
	DDL       string     `json:"ddl"`
	Columns   []Column   `json:"columns"`
	Embedding []float32  `json:"-"`
}

// document composes the text embedded at index time:
// {table_name}\n{DDL}\n{column_name: description}*
func (e Entry) document() string {
	var b strings.Builder
	b.WriteString(e.TableName)
	b.WriteByte('\n')
	b.WriteString(e.DDL)
	for _, c := range e.Columns {
		b.WriteByte('\n')
		b.WriteString(c.Name)
		b.WriteString(": ")
		b.WriteString(c.Description)
	}
	return b.String()
}

// Embedder abstracts the embedding backend so the index never depends on a
// concrete LLM vendor.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error)
}

const (
	// DefaultK is the default retrieval breadth.
	DefaultK = 3
	// MaxK is the cap on retrieval breadth regardless of caller request.
	MaxK = 10
	// EmptyIndexSentinel is returned by BuildContext when nothing has been
	// indexed yet — never an exception.
	EmptyIndexSentinel = "No schema has been indexed yet."
)

// Index is the in-process, cosine-similarity-backed SchemaIndex (C1). It is
// safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	embedder Embedder
	model    string
	logger   *zap.Logger
}

// New builds an empty index. model names the embedding model passed to the
// embedder for every index/retrieve call.
func New(embedder Embedder, model string, logger *zap.Logger) *Index {
	return &Index{
		entries:  make(map[string]Entry),
		embedder: embedder,
		model:    model,
		logger:   logger.Named("schema"),
	}
}

// Index persists an entry, embedding its composed document. Indexing is
// atomic per-entry: if the embedding backend fails, the index is left
// unchanged.
func (idx *Index) Index(ctx context.Context, e Entry) error {
	vec, err := idx.embedder.CreateEmbedding(ctx, e.document(), idx.model)
	if err != nil {
		return fmt.Errorf("embed schema entry %q: %w", e.TableName, err)
	}
	e.Embedding = vec

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[e.TableName] = e
	return nil
}

// scored pairs an entry with its similarity to the query for sorting.
type scored struct {
	entry Entry
	score float64
}

// Retrieve returns up to k entries ordered by descending cosine similarity
// to query_text, ties broken by table name. Returns an empty sequence
// (never an error) if the index is empty.
func (idx *Index) Retrieve(ctx context.Context, queryText string, k int) ([]Entry, error) {
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}

	idx.mu.RLock()
	if len(idx.entries) == 0 {
		idx.mu.RUnlock()
		return nil, nil
	}
	snapshot := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		snapshot = append(snapshot, e)
	}
	idx.mu.RUnlock()

	queryVec, err := idx.embedder.CreateEmbedding(ctx, queryText, idx.model)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results := make([]scored, 0, len(snapshot))
	for _, e := range snapshot {
		results = append(results, scored{entry: e, score: cosineSimilarity(queryVec, e.Embedding)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].entry.TableName < results[j].entry.TableName
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]Entry, k)
	for i := 0; i < k; i++ {
		out[i] = results[i].entry
	}
	return out, nil
}

// BuildContext returns a single formatted text block concatenating the
// top-k DDLs with column-level annotations, suitable as LLM context.
func (idx *Index) BuildContext(ctx context.Context, queryText string, k int) (string, error) {
	entries, err := idx.Retrieve(ctx, queryText, k)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return EmptyIndexSentinel, nil
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("-- ")
		b.WriteString(e.TableName)
		b.WriteByte('\n')
		b.WriteString(e.DDL)
		for _, c := range e.Columns {
			b.WriteByte('\n')
			fmt.Fprintf(&b, "--   %s (%s): %s", c.Name, c.Type, c.Description)
		}
	}
	return b.String(), nil
}

// AllColumnNames returns the union of column names across every indexed
// table, used by BusinessGlossary to validate related_columns at load
// time.
func (idx *Index) AllColumnNames() map[string]bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	names := make(map[string]bool)
	for _, e := range idx.entries {
		for _, c := range e.Columns {
			names[c.Name] = true
		}
	}
	return names
}

// cosineSimilarity has no vector-store dependency in the corpus to lean
// on; this is a direct implementation of dot(a,b) / (|a| * |b|).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
