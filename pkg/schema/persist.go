package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// storedEntry is the on-disk shape of an Entry. Entry.Embedding carries
// json:"-" so the type can be handed back through API responses without
// ever leaking a raw vector; persistence needs the vector, so it is
// serialized separately here instead of loosening that tag.
type storedEntry struct {
	TableName string    `json:"table_name"`
	DDL       string    `json:"ddl"`
	Columns   []Column  `json:"columns"`
	Embedding []float32 `json:"embedding"`
}

// SaveToDir writes one JSON file per indexed table to dir, named
// {table_name}.json. dir is created if it does not exist.
func (idx *Index) SaveToDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schema library dir: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for name, e := range idx.entries {
		data, err := json.MarshalIndent(storedEntry{
			TableName: e.TableName,
			DDL:       e.DDL,
			Columns:   e.Columns,
			Embedding: e.Embedding,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal schema entry %q: %w", name, err)
		}
		path := filepath.Join(dir, safeFileName(name)+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write schema entry %q: %w", name, err)
		}
	}
	return nil
}

// LoadFromDir reads every *.json file in dir into idx, restoring
// previously computed embeddings without calling the embedder again.
// A missing directory is not an error: it means nothing has been indexed
// yet, matching EmptyIndexSentinel's contract.
func (idx *Index) LoadFromDir(_ context.Context, dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read schema library dir: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return fmt.Errorf("read schema file %q: %w", f.Name(), err)
		}
		var stored storedEntry
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("parse schema file %q: %w", f.Name(), err)
		}
		idx.entries[stored.TableName] = Entry{
			TableName: stored.TableName,
			DDL:       stored.DDL,
			Columns:   stored.Columns,
			Embedding: stored.Embedding,
		}
	}
	return nil
}

// safeFileName strips path separators from a table name so it cannot
// escape the schema library directory.
func safeFileName(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
}
