package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"crm-backend/internal/provider"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string      { return "NOW()" }
func (d *PostgresDialect) NeedsBoolFix() bool   { return false }
func (d *PostgresDialect) IdentityColumn() string {
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

func (d *PostgresDialect) ColumnType(fieldType string, precision int) string {
	switch fieldType {
	case "string", "text":
		return "TEXT"
	case "int", "integer":
		return "INTEGER"
	case "bigint", "id":
		return "BIGINT"
	case "float":
		return "DOUBLE PRECISION"
	case "decimal":
		if precision > 0 {
			return fmt.Sprintf("NUMERIC(18,%d)", precision)
		}
		return "NUMERIC"
	case "boolean":
		return "BOOLEAN"
	case "uuid":
		return "UUID"
	case "timestamp":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	case "json", "array":
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) SoftDeleteIndexSQL(table string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_deleted_at ON %s (deleted_at) WHERE deleted_at IS NULL", table, table)
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	ph := pb.Add(values)
	return fmt.Sprintf("%s = ANY(%s)", field, ph)
}

func (d *PostgresDialect) ILikeExpr(field string, pb ParamBuilder, pattern string) string {
	return fmt.Sprintf("%s ILIKE %s", field, pb.Add(pattern))
}

func (d *PostgresDialect) ContainsExpr(field string, pb ParamBuilder, values []any) string {
	b, _ := json.Marshal(values)
	return fmt.Sprintf("%s @> %s::jsonb", field, pb.Add(string(b)))
}

func (d *PostgresDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days string) string {
	ph := pb.Add(days)
	return fmt.Sprintf("%s < now() - (%s || ' days')::interval", createdAtCol, ph)
}

func (d *PostgresDialect) FilterCountExpr(condition string) string {
	return fmt.Sprintf("COUNT(*) FILTER (WHERE %s)", condition)
}

func (d *PostgresDialect) SyncCommitOff() string {
	return "SET LOCAL synchronous_commit = off"
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &provider.DBError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	return err
}

// --- PostgreSQL DDL ---

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _rules (
    id          TEXT PRIMARY KEY,
    resource    TEXT NOT NULL,
    hook        TEXT,
    definition  JSONB NOT NULL,
    priority    INT NOT NULL DEFAULT 0,
    active      BOOLEAN NOT NULL DEFAULT true,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _audit_events (
    id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    method      TEXT NOT NULL,
    resource    TEXT NOT NULL,
    record_ids  JSONB NOT NULL DEFAULT '[]',
    actor       TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_resource_created ON _audit_events (resource, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON _audit_events (created_at DESC);
`

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)
