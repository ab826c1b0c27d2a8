package rest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"crm-backend/internal/provider"
)

// filterQuery renders a filter in PostgREST's "column=op.value" syntax.
// searchFields receive the "q" key as an or=(...) of ilike matches.
func filterQuery(filter provider.Filter, searchFields []string) (url.Values, error) {
	v := url.Values{}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := filter[key]
		if key == provider.SearchKey {
			text := strings.TrimSpace(fmt.Sprint(want))
			if text == "" || len(searchFields) == 0 {
				continue
			}
			ors := make([]string, len(searchFields))
			for i, f := range searchFields {
				ors[i] = fmt.Sprintf("%s.ilike.%s", f, quote("*"+text+"*"))
			}
			v.Add("or", "("+strings.Join(ors, ",")+")")
			continue
		}
		field, op := provider.SplitFilterKey(key)
		expr, err := condition(op, want)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", key, err)
		}
		v.Add(field, expr)
	}
	return v, nil
}

func condition(op string, want any) (string, error) {
	switch op {
	case "eq", "neq":
		if want == nil {
			if op == "eq" {
				return "is.null", nil
			}
			return "not.is.null", nil
		}
		return op + "." + scalar(want), nil
	case "gt", "gte", "lt", "lte":
		return op + "." + scalar(want), nil
	case "like", "ilike":
		return op + "." + strings.ReplaceAll(scalar(want), "%", "*"), nil
	case "in":
		items := listOf(want)
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = quote(scalar(item))
		}
		return "in.(" + strings.Join(parts, ",") + ")", nil
	case "is":
		switch t := want.(type) {
		case nil:
			return "is.null", nil
		case bool:
			return "is." + strconv.FormatBool(t), nil
		case string:
			switch strings.ToLower(t) {
			case "null", "true", "false":
				return "is." + strings.ToLower(t), nil
			}
		}
		return "", fmt.Errorf("is accepts null, true or false, got %v", want)
	case "cs":
		b, err := json.Marshal(listOf(want))
		if err != nil {
			return "", err
		}
		return "cs." + string(b), nil
	}
	return "", fmt.Errorf("unsupported operator %q", op)
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	}
	return provider.IDString(v)
}

// quote wraps values holding PostgREST list delimiters in double quotes.
func quote(s string) string {
	if strings.ContainsAny(s, `,()"`) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func listOf(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
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

func orderQuery(v url.Values, s provider.Sort) {
	if s.Field == "" {
		return
	}
	dir := "asc"
	if strings.EqualFold(s.Order, "DESC") {
		dir = "desc"
	}
	v.Set("order", s.Field+"."+dir)
}

func pageQuery(v url.Values, page provider.Pagination) {
	if page.PerPage <= 0 {
		return
	}
	v.Set("limit", strconv.Itoa(page.PerPage))
	v.Set("offset", strconv.Itoa(page.Offset()))
}

// totalFromContentRange reads "0-24/573" or "*/0". fallback is used when the
// header is absent or the total is unknown.
func totalFromContentRange(header string, fallback int) int {
	_, total, ok := strings.Cut(header, "/")
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return fallback
	}
	return n
}
