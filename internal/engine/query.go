package engine

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

const (
	defaultPerPage = 25
	maxPerPage     = 1000
)

// ListQuery is a parsed list request.
type ListQuery struct {
	Pagination provider.Pagination
	Sort       provider.Sort
	Filter     provider.Filter
}

// ParseListQuery parses filter[field@op]=v, sort=-field, page and per_page.
// Values are coerced using the resource's field types when the field is
// known. Unknown fields are kept as-is for the filter sanitizer to reject.
func ParseListQuery(c *fiber.Ctx, res *metadata.Resource) ListQuery {
	q := ListQuery{
		Pagination: provider.Pagination{Page: 1, PerPage: defaultPerPage},
		Filter:     provider.Filter{},
	}

	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		inner := key[7 : len(key)-1]
		field, op := provider.SplitFilterKey(inner)
		var f *metadata.Field
		if res != nil {
			f = res.GetField(field)
		}
		q.Filter[inner] = coerceFilterValue(f, val, op)
	}

	if s := strings.TrimSpace(c.Query("sort")); s != "" {
		first, _, _ := strings.Cut(s, ",")
		q.Sort = provider.Sort{Field: first, Order: "ASC"}
		if strings.HasPrefix(first, "-") {
			q.Sort = provider.Sort{Field: first[1:], Order: "DESC"}
		}
	}

	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		q.Pagination.Page = p
	}
	if pp, err := strconv.Atoi(c.Query("per_page")); err == nil && pp > 0 {
		q.Pagination.PerPage = min(pp, maxPerPage)
	}
	return q
}

// ParseID converts a path id to an integer when it is one. String ids are
// copied because fiber reuses the request buffer once the handler returns.
func ParseID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return strings.Clone(s)
}

// coerceFilterValue converts a query-string value to the field's type. "in"
// takes a comma-separated list and "is" understands null, true and false.
func coerceFilterValue(field *metadata.Field, val string, op string) any {
	switch op {
	case "in":
		parts := strings.Split(val, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, coerceSingleValue(field, p))
			}
		}
		return out
	case "is":
		switch strings.ToLower(val) {
		case "null":
			return nil
		case "true":
			return true
		case "false":
			return false
		}
	}
	return coerceSingleValue(field, val)
}

func coerceSingleValue(field *metadata.Field, val string) any {
	if field == nil {
		return val
	}
	switch field.Type {
	case "int", "id":
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	case "decimal":
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return val
}
