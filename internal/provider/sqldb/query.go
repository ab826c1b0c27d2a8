package sqldb

import (
	"fmt"
	"sort"
	"strings"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
	"crm-backend/internal/store"
)

// query renders parameterized SQL for one table. res may be nil for tables
// the registry does not describe; columns are then trusted as given.
type query struct {
	dialect store.Dialect
	table   string
	ident   string // quoted table name
	res     *metadata.Resource
	pb      store.ParamBuilder
}

func (p *Provider) newQuery(resource string) *query {
	res := p.resource(resource)
	table := resource
	if res != nil {
		table = res.TableName()
	}
	return &query{
		dialect: p.store.Dialect,
		table:   table,
		ident:   store.QuoteIdent(table),
		res:     res,
		pb:      p.store.Dialect.NewParamBuilder(),
	}
}

func (q *query) column(name string) error {
	if q.res == nil || q.res.HasField(name) {
		return nil
	}
	return &provider.DBError{
		Code:    "42703",
		Message: fmt.Sprintf(`column "%s" of relation "%s" does not exist`, name, q.table),
	}
}

func (q *query) field(name string) *metadata.Field {
	if q.res == nil {
		return nil
	}
	return q.res.GetField(name)
}

// where renders the filter as a conjunction. Keys are visited in sorted order
// so the generated SQL is stable.
func (q *query) where(filter provider.Filter) (string, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		want := filter[key]
		if key == provider.SearchKey {
			if clause := q.search(fmt.Sprint(want)); clause != "" {
				parts = append(parts, clause)
			}
			continue
		}
		name, op := provider.SplitFilterKey(key)
		if err := q.column(name); err != nil {
			return "", err
		}
		clause, err := q.condition(name, op, want)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (q *query) condition(name, op string, want any) (string, error) {
	f := q.field(name)
	col := store.QuoteIdent(name)
	switch op {
	case "eq":
		if want == nil {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, q.pb.Add(encodeParam(f, want))), nil
	case "neq":
		if want == nil {
			return col + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s IS DISTINCT FROM %s", col, q.pb.Add(encodeParam(f, want))), nil
	case "gt":
		return fmt.Sprintf("%s > %s", col, q.pb.Add(encodeParam(f, want))), nil
	case "gte":
		return fmt.Sprintf("%s >= %s", col, q.pb.Add(encodeParam(f, want))), nil
	case "lt":
		return fmt.Sprintf("%s < %s", col, q.pb.Add(encodeParam(f, want))), nil
	case "lte":
		return fmt.Sprintf("%s <= %s", col, q.pb.Add(encodeParam(f, want))), nil
	case "in":
		values := toList(want)
		for i, v := range values {
			values[i] = encodeParam(f, v)
		}
		return q.dialect.InExpr(col, q.pb, values), nil
	case "is":
		switch v := want.(type) {
		case nil:
			return col + " IS NULL", nil
		case bool:
			if v {
				return col + " IS TRUE", nil
			}
			return col + " IS FALSE", nil
		case string:
			switch strings.ToLower(v) {
			case "null":
				return col + " IS NULL", nil
			case "true":
				return col + " IS TRUE", nil
			case "false":
				return col + " IS FALSE", nil
			}
		}
		return "", &provider.DBError{Code: "22P02", Message: fmt.Sprintf("invalid input for IS: %v", want)}
	case "like":
		return fmt.Sprintf("%s LIKE %s", col, q.pb.Add(likePattern(want))), nil
	case "ilike":
		return q.dialect.ILikeExpr(col, q.pb, likePattern(want)), nil
	case "cs":
		return q.dialect.ContainsExpr(col, q.pb, toList(want)), nil
	}
	return "", &provider.DBError{Code: "42883", Message: fmt.Sprintf("operator does not exist: %s", op)}
}

// search ORs a substring match over the resource's search fields.
func (q *query) search(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || q.res == nil || len(q.res.SearchFields) == 0 {
		return ""
	}
	pattern := "%" + text + "%"
	var ors []string
	for _, f := range q.res.SearchFields {
		ors = append(ors, q.dialect.ILikeExpr(store.QuoteIdent(f), q.pb, pattern))
	}
	return "(" + strings.Join(ors, " OR ") + ")"
}

func (q *query) orderBy(s provider.Sort) string {
	if s.Field == "" || q.column(s.Field) != nil {
		return ""
	}
	dir := "ASC"
	if strings.EqualFold(s.Order, "DESC") {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", store.QuoteIdent(s.Field), dir)
}

func (q *query) limit(page provider.Pagination) string {
	if page.PerPage <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %s OFFSET %s", q.pb.Add(page.PerPage), q.pb.Add(page.Offset()))
}

func (q *query) selectSQL(filter provider.Filter, s provider.Sort, page provider.Pagination) (string, error) {
	where, err := q.where(filter)
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + q.ident + where + q.orderBy(s) + q.limit(page), nil
}

func (q *query) countSQL(filter provider.Filter) (string, error) {
	where, err := q.where(filter)
	if err != nil {
		return "", err
	}
	return "SELECT COUNT(*) AS count FROM " + q.ident + where, nil
}

func (q *query) insertSQL(row provider.Record) (string, error) {
	cols := sortedKeys(row)
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", q.ident), nil
	}
	names := make([]string, len(cols))
	phs := make([]string, len(cols))
	for i, c := range cols {
		if err := q.column(c); err != nil {
			return "", err
		}
		names[i] = store.QuoteIdent(c)
		phs[i] = q.pb.Add(encodeValue(q.field(c), row[c]))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		q.ident, strings.Join(names, ", "), strings.Join(phs, ", ")), nil
}

// updateSQL never writes the id column. The SET placeholders are added
// before the WHERE ones so positional parameters line up.
func (q *query) updateSQL(filter provider.Filter, data provider.Record) (string, error) {
	var sets []string
	for _, c := range sortedKeys(data) {
		if c == "id" {
			continue
		}
		if err := q.column(c); err != nil {
			return "", err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", store.QuoteIdent(c), q.pb.Add(encodeValue(q.field(c), data[c]))))
	}
	where, err := q.where(filter)
	if err != nil {
		return "", err
	}
	if len(sets) == 0 {
		return "SELECT * FROM " + q.ident + where, nil
	}
	return fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", q.ident, strings.Join(sets, ", "), where), nil
}

func (q *query) deleteSQL(filter provider.Filter) (string, error) {
	where, err := q.where(filter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s%s RETURNING *", q.ident, where), nil
}

func sortedKeys(r provider.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// likePattern accepts both SQL and PostgREST (*) wildcards.
func likePattern(v any) string {
	return strings.ReplaceAll(fmt.Sprint(v), "*", "%")
}

func toList(v any) []any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	case string:
		var out []any
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}
