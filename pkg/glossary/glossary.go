// Package glossary implements the business glossary (C2): a mapping from
// domain vocabulary to SQL-ready hints, loaded from a YAML document the
// way the teacher loads its structured configuration documents.
package glossary

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Term is a domain token: canonical name, definition, an SQL fragment
// hint, and the tables/columns it relates to.
type Term struct {
	Name            string   `yaml:"name"`
	Definition      string   `yaml:"definition"`
	SQLFragment     string   `yaml:"sql_fragment"`
	Synonyms        []string `yaml:"synonyms"`
	RelatedTables   []string `yaml:"related_tables"`
	RelatedColumns  []string `yaml:"related_columns"`
}

// document is the YAML shape a glossary file is parsed from.
type document struct {
	Terms   []Term              `yaml:"terms"`
	Aliases map[string][]string `yaml:"column_aliases"`
}

// Glossary holds GlossaryTerms and ColumnAliases, both owned by this type.
type Glossary struct {
	terms   map[string]Term
	byAlias map[string]string // synonym (lowercase) -> canonical term name
	aliases map[string][]string
	logger  *zap.Logger
}

// KnownColumns is implemented by the schema index so the glossary can
// validate related_columns at load time without importing pkg/schema
// directly (avoiding an import cycle in the other direction).
type KnownColumns interface {
	AllColumnNames() map[string]bool
}

// Load reads a glossary document from path. Unknown related_columns
// produce a warning, not a load failure — the glossary may be loaded
// before the schema is indexed.
func Load(path string, known KnownColumns, logger *zap.Logger) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}

	g := &Glossary{
		terms:   make(map[string]Term, len(doc.Terms)),
		byAlias: make(map[string]string),
		aliases: doc.Aliases,
		logger:  logger.Named("glossary"),
	}

	var knownColumns map[string]bool
	if known != nil {
		knownColumns = known.AllColumnNames()
	}

	for _, t := range doc.Terms {
		g.terms[t.Name] = t
		g.byAlias[strings.ToLower(t.Name)] = t.Name
		for _, s := range t.Synonyms {
			g.byAlias[strings.ToLower(s)] = t.Name
		}
		if knownColumns != nil {
			for _, col := range t.RelatedColumns {
				if !knownColumns[col] {
					g.logger.Warn("glossary term references unknown column",
						zap.String("term", t.Name), zap.String("column", col))
				}
			}
		}
	}

	return g, nil
}

// Lookup returns the term by canonical name or synonym, and whether it was
// found.
func (g *Glossary) Lookup(term string) (Term, bool) {
	canonical, ok := g.byAlias[strings.ToLower(term)]
	if !ok {
		return Term{}, false
	}
	t, ok := g.terms[canonical]
	return t, ok
}

// ExpandAliases returns the synonym set for a canonical column name.
func (g *Glossary) ExpandAliases(columnName string) []string {
	return g.aliases[columnName]
}

// EnrichContext appends any glossary term whose canonical name or synonym
// appears as a whole word in queryText, formatted as
// "<term>: <definition>; SQL fragment: <fragment>". SQL fragments are
// hints only — see the security note in EnrichContext's caller contract;
// nothing here concatenates a fragment into executable SQL.
func (g *Glossary) EnrichContext(queryText, baseContext string) string {
	lower := strings.ToLower(queryText)

	seen := make(map[string]bool)
	var matched []string
	for alias, canonical := range g.byAlias {
		if seen[canonical] {
			continue
		}
		if !regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`).MatchString(lower) {
			continue
		}
		seen[canonical] = true
		t := g.terms[canonical]
		matched = append(matched, fmt.Sprintf("%s: %s; SQL fragment: %s", t.Name, t.Definition, t.SQLFragment))
	}

	if len(matched) == 0 {
		return baseContext
	}
	return baseContext + "\n\n-- Glossary\n" + strings.Join(matched, "\n")
}
