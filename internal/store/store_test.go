package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestCreateTableSQL(t *testing.T) {
	reg := metadata.NewCRMRegistry()

	sqlite := CreateTableSQL(&SQLiteDialect{}, reg.GetResource(metadata.Tags))
	assert.Contains(t, sqlite, "CREATE TABLE IF NOT EXISTS tags (")
	assert.Contains(t, sqlite, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, sqlite, `"color" TEXT NOT NULL`)
	assert.Contains(t, sqlite, `"created_at" TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`)

	pg := CreateTableSQL(&PostgresDialect{}, reg.GetResource(metadata.ProductDistributors))
	assert.Contains(t, pg, `"product_id" BIGINT NOT NULL`)
	assert.Contains(t, pg, `"valid_from" DATE`)
	assert.Contains(t, pg, `PRIMARY KEY ("product_id", "distributor_id")`)
	assert.NotContains(t, pg, "IDENTITY")
}

func TestColumnType(t *testing.T) {
	pg := &PostgresDialect{}
	assert.Equal(t, "NUMERIC(18,2)", pg.ColumnType("decimal", 2))
	assert.Equal(t, "NUMERIC", pg.ColumnType("decimal", 0))
	assert.Equal(t, "JSONB", pg.ColumnType("json", 0))
	assert.Equal(t, "TIMESTAMPTZ", pg.ColumnType("timestamp", 0))
	assert.Equal(t, "TEXT", pg.ColumnType("whatever", 0))

	lite := &SQLiteDialect{}
	assert.Equal(t, "INTEGER", lite.ColumnType("boolean", 0))
	assert.Equal(t, "REAL", lite.ColumnType("decimal", 2))
	assert.Equal(t, "TEXT", lite.ColumnType("timestamp", 0))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"index"`, QuoteIdent("index"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}

func TestParamBuilders(t *testing.T) {
	pg := NewDialect("postgres").NewParamBuilder()
	assert.Equal(t, "$1", pg.Add("a"))
	assert.Equal(t, "$2", pg.Add(2))
	assert.Equal(t, []any{"a", 2}, pg.Params())

	lite := NewDialect("sqlite").NewParamBuilder()
	assert.Equal(t, "?1", lite.Add("a"))
	assert.Equal(t, 1, lite.Count())
}

func TestSQLiteInExpr(t *testing.T) {
	d := &SQLiteDialect{}
	pb := d.NewParamBuilder()
	assert.Equal(t, "id IN (?1, ?2)", d.InExpr("id", pb, []any{1, 2}))
	assert.Equal(t, "1=0", d.InExpr("id", pb, nil))
}

func TestSQLiteMapError(t *testing.T) {
	d := &SQLiteDialect{}
	cases := []struct {
		in       string
		code     string
		message  string
		details  string
		passThru bool
	}{
		{
			in:      "constraint failed: NOT NULL constraint failed: tags.color (1299)",
			code:    "23502",
			message: `null value in column "color" of relation "tags" violates not-null constraint`,
			details: "Failing row contains null values.",
		},
		{
			in:      "constraint failed: UNIQUE constraint failed: product_distributors.product_id, product_distributors.distributor_id (1555)",
			code:    "23505",
			message: `duplicate key value violates unique constraint "product_distributors_pkey"`,
			details: "Key (product_id, distributor_id) already exists.",
		},
		{in: "FOREIGN KEY constraint failed", code: "23503", message: "insert or update violates foreign key constraint"},
		{in: "table tags has no column named colour", code: "42703", message: `column "colour" of relation "tags" does not exist`},
		{in: "no such column: colour", code: "42703", message: `column "colour" does not exist`},
		{in: "disk I/O error", passThru: true},
	}
	for _, tc := range cases {
		in := errors.New(tc.in)
		out := d.MapError(in)
		if tc.passThru {
			assert.Same(t, in, out)
			continue
		}
		var dbErr *provider.DBError
		require.ErrorAs(t, out, &dbErr, tc.in)
		assert.Equal(t, tc.code, dbErr.Code, tc.in)
		assert.Equal(t, tc.message, dbErr.Message, tc.in)
		assert.Equal(t, tc.details, dbErr.Details, tc.in)
	}
	assert.NoError(t, MapError(d, nil))
}

func TestPostgresMapError(t *testing.T) {
	d := &PostgresDialect{}
	out := d.MapError(&pgconn.PgError{Code: "23505", Message: "duplicate key", Detail: "Key (name)=(VIP) already exists."})
	var dbErr *provider.DBError
	require.ErrorAs(t, out, &dbErr)
	assert.Equal(t, provider.DBError{Code: "23505", Message: "duplicate key", Details: "Key (name)=(VIP) already exists."}, *dbErr)

	plain := errors.New("boom")
	assert.Same(t, plain, d.MapError(plain))
}

func TestBootstrap_SQLite(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	reg := metadata.NewCRMRegistry()

	require.NoError(t, s.Bootstrap(ctx, reg.AllResources()))
	require.NoError(t, s.Bootstrap(ctx, reg.AllResources()), "bootstrap is repeatable")

	for _, table := range []string{"_rules", "_audit_events", metadata.Opportunities, metadata.ProductDistributors} {
		ok, err := s.Dialect.TableExists(ctx, s.DB, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
	ok, err := s.Dialect.TableExists(ctx, s.DB, "widgets")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := Exec(ctx, s.DB, `INSERT INTO tags ("name", "color") VALUES (?1, ?2)`, "VIP", "gold")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, err := QueryRow(ctx, s.DB, `SELECT * FROM tags WHERE "name" = ?1`, "VIP")
	require.NoError(t, err)
	assert.Equal(t, "gold", row["color"])
	assert.Equal(t, int64(1), row["id"])
	assert.NotEmpty(t, row["created_at"])

	_, err = QueryRow(ctx, s.DB, `SELECT * FROM tags WHERE "name" = ?1`, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Exec(ctx, s.DB, `INSERT INTO tags ("name") VALUES (?1)`, "Orphan")
	var dbErr *provider.DBError
	require.ErrorAs(t, s.Dialect.MapError(err), &dbErr)
	assert.Equal(t, "23502", dbErr.Code)
}
