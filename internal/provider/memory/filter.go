package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"crm-backend/internal/provider"
)

// matches reports whether row satisfies every key of filter. searchFields
// are the columns matched by the "q" key.
func matches(row provider.Record, filter provider.Filter, searchFields []string) (bool, error) {
	for key, want := range filter {
		if key == provider.SearchKey {
			if !search(row, fmt.Sprint(want), searchFields) {
				return false, nil
			}
			continue
		}
		field, op := provider.SplitFilterKey(key)
		ok, err := compare(row[field], op, want)
		if err != nil {
			return false, fmt.Errorf("filter %s: %w", key, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func search(row provider.Record, q string, fields []string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return true
	}
	if len(fields) == 0 {
		for k := range row {
			fields = append(fields, k)
		}
	}
	for _, f := range fields {
		if s, ok := row[f].(string); ok && fuzzy.MatchFold(q, s) {
			return true
		}
	}
	return false
}

func compare(have any, op string, want any) (bool, error) {
	switch op {
	case "eq":
		return equal(have, want), nil
	case "neq":
		return !equal(have, want), nil
	case "gt", "gte", "lt", "lte":
		if have == nil || want == nil {
			return false, nil
		}
		c := order(have, want)
		switch op {
		case "gt":
			return c > 0, nil
		case "gte":
			return c >= 0, nil
		case "lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "in":
		for _, w := range toList(want) {
			if equal(have, w) {
				return true, nil
			}
		}
		return false, nil
	case "is":
		if want == nil {
			return have == nil, nil
		}
		return equal(have, want), nil
	case "like", "ilike":
		s, ok := have.(string)
		if !ok {
			return false, nil
		}
		re, err := likePattern(fmt.Sprint(want), op == "ilike")
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case "cs":
		list := toList(have)
		for _, w := range toList(want) {
			found := false
			for _, h := range list {
				if equal(h, w) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return scalarString(a) == scalarString(b)
}

// order compares numbers numerically and everything else as strings.
func order(a, b any) int {
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(scalarString(a), scalarString(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(t)
	}
	return provider.IDString(v)
}

func toList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
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
	case nil:
		return nil
	}
	return []any{v}
}

func likePattern(pattern string, fold bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if fold {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%', '*':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// sortRows orders rows by one field. Nil values sort first in ascending order.
func sortRows(rows []provider.Record, s provider.Sort) {
	if s.Field == "" {
		return
	}
	desc := strings.EqualFold(s.Order, "DESC")
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][s.Field], rows[j][s.Field]
		var c int
		switch {
		case a == nil && b == nil:
			c = 0
		case a == nil:
			c = -1
		case b == nil:
			c = 1
		default:
			c = order(a, b)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func paginate(rows []provider.Record, p provider.Pagination) []provider.Record {
	if p.PerPage <= 0 {
		return rows
	}
	start := p.Offset()
	if start >= len(rows) {
		return []provider.Record{}
	}
	end := start + p.PerPage
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
