package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/querymind/engine/pkg/config"
	"github.com/querymind/engine/pkg/datasource"
	"github.com/querymind/engine/pkg/llm"
	"github.com/querymind/engine/pkg/logging"
	"github.com/querymind/engine/pkg/schema"
)

var (
	indexFrom   string
	indexSource string
)

var indexSchemasCmd = &cobra.Command{
	Use:   "index-schemas",
	Short: "Rebuild the schema index from a source of table definitions",
	RunE:  runIndexSchemas,
}

func init() {
	indexSchemasCmd.Flags().StringVar(&indexFrom, "from", "yaml", "source format: yaml or postgres")
	indexSchemasCmd.Flags().StringVar(&indexSource, "source", "", "path to a YAML schema document (--from yaml) or a Postgres schema name (--from postgres)")
	indexSchemasCmd.Flags().StringVar(&schemaLibraryDir, "schema-dir", "schema_library", "directory to persist the rebuilt schema index to")
}

// yamlSchemaFile is the shape of a --from yaml source document: one entry
// per table, hand-authored or exported from a data catalog.
type yamlSchemaFile struct {
	Tables []struct {
		TableName string `yaml:"table_name"`
		DDL       string `yaml:"ddl"`
		Columns   []struct {
			Name        string `yaml:"name"`
			Type        string `yaml:"type"`
			Description string `yaml:"description"`
		} `yaml:"columns"`
	} `yaml:"tables"`
}

func runIndexSchemas(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	factory := llm.NewClientFactory(logger)
	embedder, err := factory.Create(llm.TierConfig{
		Endpoint: cfg.Primary.Endpoint,
		Model:    cfg.Primary.Model,
		APIKey:   cfg.Primary.APIKey,
	}, "schema-indexer")
	if err != nil {
		return fmt.Errorf("create embedding client: %w", err)
	}

	var entries []schema.Entry
	switch indexFrom {
	case "yaml":
		entries, err = loadEntriesFromYAML(indexSource)
	case "postgres":
		entries, err = loadEntriesFromPostgres(ctx, cfg.Database, indexSource, logger)
	default:
		return fmt.Errorf("unsupported --from %q: supported values are yaml, postgres", indexFrom)
	}
	if err != nil {
		return fmt.Errorf("load schema definitions: %w", err)
	}

	idx := schema.New(embedder, embedder.GetModel(), logger)
	for _, e := range entries {
		if err := idx.Index(ctx, e); err != nil {
			return fmt.Errorf("index table %q: %w", e.TableName, err)
		}
		logger.Info("indexed table", zap.String("table", e.TableName))
	}

	if err := idx.SaveToDir(schemaLibraryDir); err != nil {
		return fmt.Errorf("persist schema library: %w", err)
	}

	logger.Info("schema index rebuilt", zap.Int("tables", len(entries)), zap.String("dir", schemaLibraryDir))
	return nil
}

func loadEntriesFromYAML(path string) ([]schema.Entry, error) {
	if path == "" {
		return nil, fmt.Errorf("--source is required for --from yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	var doc yamlSchemaFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}

	entries := make([]schema.Entry, 0, len(doc.Tables))
	for _, t := range doc.Tables {
		cols := make([]schema.Column, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, schema.Column{Name: c.Name, Type: c.Type, Description: c.Description})
		}
		entries = append(entries, schema.Entry{TableName: t.TableName, DDL: t.DDL, Columns: cols})
	}
	return entries, nil
}

// loadEntriesFromPostgres introspects information_schema.columns for the
// named schema (defaulting to "public") and synthesizes a minimal DDL
// string per table, since the analytical database is already reachable
// via the same pgx pool the executor and sentry use.
func loadEntriesFromPostgres(ctx context.Context, dbCfg config.DatabaseConfig, pgSchema string, logger *zap.Logger) ([]schema.Entry, error) {
	if pgSchema == "" {
		pgSchema = "public"
	}
	pool, err := datasource.Open(ctx, datasource.Config{
		URL:            dbCfg.URL,
		MaxConnections: dbCfg.MaxConnections,
		MinConnections: dbCfg.MinConnections,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`, pgSchema)
	if err != nil {
		return nil, fmt.Errorf("query information_schema: %w", err)
	}
	defer rows.Close()

	order := make([]string, 0)
	byTable := make(map[string][]schema.Column)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, fmt.Errorf("scan information_schema row: %w", err)
		}
		if _, seen := byTable[table]; !seen {
			order = append(order, table)
		}
		byTable[table] = append(byTable[table], schema.Column{Name: column, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate information_schema rows: %w", err)
	}

	entries := make([]schema.Entry, 0, len(order))
	for _, table := range order {
		cols := byTable[table]
		ddl := fmt.Sprintf("CREATE TABLE %s (\n", table)
		for i, c := range cols {
			ddl += fmt.Sprintf("  %s %s", c.Name, c.Type)
			if i < len(cols)-1 {
				ddl += ","
			}
			ddl += "\n"
		}
		ddl += ")"
		entries = append(entries, schema.Entry{TableName: table, DDL: ddl, Columns: cols})
	}
	return entries, nil
}
