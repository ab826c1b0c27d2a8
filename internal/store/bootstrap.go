package store

import (
	"context"
	"fmt"
	"strings"

	"crm-backend/internal/metadata"
)

// Bootstrap creates the system tables and one table per resource. Existing
// tables are left untouched.
func (s *Store) Bootstrap(ctx context.Context, resources []*metadata.Resource) error {
	for _, stmt := range splitStatements(s.Dialect.SystemTablesSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap system tables: %w", err)
		}
	}

	for _, res := range resources {
		if _, err := s.DB.ExecContext(ctx, CreateTableSQL(s.Dialect, res)); err != nil {
			return fmt.Errorf("create table %s: %w", res.TableName(), err)
		}
		if res.SoftDelete {
			if _, err := s.DB.ExecContext(ctx, s.Dialect.SoftDeleteIndexSQL(res.TableName())); err != nil {
				return fmt.Errorf("create soft-delete index on %s: %w", res.TableName(), err)
			}
		}
	}
	return nil
}

// CreateTableSQL renders the CREATE TABLE statement for a resource. Computed
// and virtual fields have no column.
func CreateTableSQL(d Dialect, res *metadata.Resource) string {
	var cols []string
	for _, f := range res.Fields {
		if f.Name == "id" && !res.HasCompositeKey() {
			cols = append(cols, QuoteIdent("id")+" "+d.IdentityColumn())
			continue
		}
		col := QuoteIdent(f.Name) + " " + d.ColumnType(f.Type, f.Precision)
		if f.Required {
			col += " NOT NULL"
		}
		if f.Name == "created_at" || f.Name == "updated_at" {
			col += fmt.Sprintf(" DEFAULT (%s)", d.NowExpr())
		}
		cols = append(cols, col)
	}
	if res.HasCompositeKey() {
		keys := make([]string, len(res.CompositeKey))
		for i, k := range res.CompositeKey {
			keys[i] = QuoteIdent(k)
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", res.TableName(), strings.Join(cols, ",\n    "))
}

// splitStatements breaks a DDL script on semicolons. The scripts carry no
// semicolons inside literals.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
