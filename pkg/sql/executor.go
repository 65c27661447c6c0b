package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/querymind/engine/pkg/apperrors"
)

// ColumnInfo describes one result column.
type ColumnInfo struct {
	Name         string `json:"name"`
	PostgresType string `json:"type"`
}

// ExecResult is the {columns, rows} contract of the SQL executor.
type ExecResult struct {
	Columns []ColumnInfo     `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Executor runs read-only SQL against the analytical database with row
// caps, grounded on the teacher's QueryExecutor for Postgres.
type Executor struct {
	pool *pgxpool.Pool
}

// NewExecutor wraps a connection pool for read-only execution.
func NewExecutor(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// DefaultRowLimit and DefaultTimeout match the SQLExecutor contract in the
// absence of caller-supplied overrides.
const (
	DefaultRowLimit = 1000
	DefaultTimeout  = 30 * time.Second
)

// Run executes sql with an effective row cap and a wall-clock timeout.
// Rejects anything that does not begin with SELECT or WITH (a leading SQL
// comment is not skipped, so a statement that opens with one is rejected),
// and any statement that fails the multi-statement/injection checks in
// this package. Never returns a Go panic-worthy error to the caller — all
// failures are classified apperrors.Error values.
func (e *Executor) Run(ctx context.Context, sqlText string, rowLimit int, timeout time.Duration) (*ExecResult, error) {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result := ValidateAndNormalize(sqlText)
	if result.Error != nil {
		return nil, apperrors.Wrap(apperrors.UserInput, "invalid_sql", "query failed validation", result.Error)
	}
	if !isReadOnlyLeadingToken(result.NormalizedSQL) {
		return nil, apperrors.New(apperrors.PolicyViolation, "unsafe_sql", "only SELECT and WITH statements may be executed")
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", result.NormalizedSQL, rowLimit)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := e.pool.Query(ctx, wrapped)
	if err != nil {
		return nil, classifyExecError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]ColumnInfo, len(fields))
	for i, f := range fields {
		columns[i] = ColumnInfo{Name: f.Name, PostgresType: pgTypeNameFromOID(f.DataTypeOID)}
	}

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classifyExecError(err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExecError(err)
	}

	return &ExecResult{Columns: columns, Rows: out}, nil
}

func isReadOnlyLeadingToken(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	upper := strings.ToUpper(trimmed)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// classifyExecError maps pgx/Postgres failures onto the error taxonomy:
// timeouts and connection loss are Transient, everything else (syntax,
// permission, missing table/column) is PermanentExternal.
func classifyExecError(err error) *apperrors.Error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context deadline exceeded"), strings.Contains(lower, "timeout"):
		return apperrors.Wrap(apperrors.Transient, "query_timeout", "query timed out", err)
	case strings.Contains(lower, "connection"):
		return apperrors.Wrap(apperrors.Transient, "connection_error", "database connection error", err)
	case strings.Contains(lower, "permission denied"):
		return apperrors.Wrap(apperrors.PermanentExternal, "permission_denied", "insufficient database permissions", err)
	case strings.Contains(lower, "does not exist"):
		return apperrors.Wrap(apperrors.PermanentExternal, "missing_relation", "referenced table or column does not exist", err)
	default:
		return apperrors.Wrap(apperrors.PermanentExternal, "query_failed", "query execution failed", err)
	}
}

// pgTypeNameFromOID maps the common OIDs the analytics layer cares about;
// unrecognized OIDs surface as "unknown" rather than failing the query.
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case pgtypeBool:
		return "bool"
	case pgtypeInt2, pgtypeInt4, pgtypeInt8:
		return "int"
	case pgtypeFloat4, pgtypeFloat8, pgtypeNumeric:
		return "float"
	case pgtypeText, pgtypeVarchar, pgtypeBPChar:
		return "text"
	case pgtypeDate:
		return "date"
	case pgtypeTimestamp, pgtypeTimestampTZ:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Postgres builtin OIDs relevant to analytics type coercion (pg_type.h).
const (
	pgtypeBool        = 16
	pgtypeInt8        = 20
	pgtypeInt2        = 21
	pgtypeInt4        = 23
	pgtypeText        = 25
	pgtypeFloat4      = 700
	pgtypeFloat8      = 701
	pgtypeBPChar      = 1042
	pgtypeVarchar     = 1043
	pgtypeDate        = 1082
	pgtypeTimestamp   = 1114
	pgtypeTimestampTZ = 1184
	pgtypeNumeric     = 1700
)

// QuoteIdentifier safely quotes a table or column name for interpolation
// into generated SQL.
func QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
