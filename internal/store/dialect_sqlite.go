package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"crm-backend/internal/provider"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

// NowExpr renders RFC 3339 so text timestamps sort and compare correctly.
func (d *SQLiteDialect) NowExpr() string    { return "strftime('%Y-%m-%dT%H:%M:%SZ', 'now')" }
func (d *SQLiteDialect) NeedsBoolFix() bool { return true }
func (d *SQLiteDialect) IdentityColumn() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *SQLiteDialect) ColumnType(fieldType string, precision int) string {
	switch fieldType {
	case "int", "integer", "bigint", "id":
		return "INTEGER"
	case "float", "decimal":
		return "REAL"
	case "boolean":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) SoftDeleteIndexSQL(table string) string {
	// SQLite supports partial indexes (3.8.0+)
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_deleted_at ON %s (deleted_at) WHERE deleted_at IS NULL", table, table)
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

// ILikeExpr relies on LIKE being case-insensitive for ASCII in SQLite.
func (d *SQLiteDialect) ILikeExpr(field string, pb ParamBuilder, pattern string) string {
	return fmt.Sprintf("%s LIKE %s", field, pb.Add(pattern))
}

func (d *SQLiteDialect) ContainsExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=1"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value = %s)", field, pb.Add(v))
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func (d *SQLiteDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days string) string {
	ph := pb.Add(days)
	return fmt.Sprintf("%s < strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now', '-' || %s || ' days')", createdAtCol, ph)
}

func (d *SQLiteDialect) FilterCountExpr(condition string) string {
	return fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", condition)
}

func (d *SQLiteDialect) SyncCommitOff() string { return "" }

var (
	sqliteUnique   = regexp.MustCompile(`UNIQUE constraint failed: ([\w.]+(?:, [\w.]+)*)`)
	sqliteNotNull  = regexp.MustCompile(`NOT NULL constraint failed: (\w+)\.(\w+)`)
	sqliteNoColumn = regexp.MustCompile(`(?:table (\w+) has no column named|no such column:) (\w+)`)
)

// MapError rewrites SQLite constraint failures into the PostgreSQL codes and
// messages the rest of the pipeline understands.
func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if m := sqliteNotNull.FindStringSubmatch(errStr); m != nil {
		return &provider.DBError{
			Code:    "23502",
			Message: fmt.Sprintf(`null value in column "%s" of relation "%s" violates not-null constraint`, m[2], m[1]),
			Details: "Failing row contains null values.",
		}
	}
	if m := sqliteUnique.FindStringSubmatch(errStr); m != nil {
		var table string
		var cols []string
		for _, qualified := range strings.Split(m[1], ", ") {
			t, c, ok := strings.Cut(qualified, ".")
			if !ok {
				continue
			}
			table = t
			cols = append(cols, c)
		}
		return &provider.DBError{
			Code:    "23505",
			Message: fmt.Sprintf(`duplicate key value violates unique constraint "%s_pkey"`, table),
			Details: fmt.Sprintf("Key (%s) already exists.", strings.Join(cols, ", ")),
		}
	}
	if strings.Contains(errStr, "FOREIGN KEY constraint failed") {
		return &provider.DBError{Code: "23503", Message: "insert or update violates foreign key constraint"}
	}
	if strings.Contains(errStr, "CHECK constraint failed") {
		return &provider.DBError{Code: "23514", Message: "new row violates check constraint"}
	}
	if m := sqliteNoColumn.FindStringSubmatch(errStr); m != nil {
		msg := fmt.Sprintf(`column "%s" does not exist`, m[2])
		if m[1] != "" {
			msg = fmt.Sprintf(`column "%s" of relation "%s" does not exist`, m[2], m[1])
		}
		return &provider.DBError{Code: "42703", Message: msg}
	}
	return err
}

// --- SQLite DDL ---

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _rules (
    id          TEXT PRIMARY KEY,
    resource    TEXT NOT NULL,
    hook        TEXT,
    definition  TEXT NOT NULL,
    priority    INTEGER NOT NULL DEFAULT 0,
    active      INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    updated_at  TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS _audit_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    method      TEXT NOT NULL,
    resource    TEXT NOT NULL,
    record_ids  TEXT NOT NULL DEFAULT '[]',
    actor       TEXT,
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_events_resource_created ON _audit_events (resource, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON _audit_events (created_at DESC);
`

// Compile-time check
var _ Dialect = (*SQLiteDialect)(nil)
