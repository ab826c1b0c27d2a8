package engine

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

func parseQuery(t *testing.T, resource, rawQuery string) ListQuery {
	t.Helper()
	res := metadata.NewCRMRegistry().GetResource(resource)

	var got ListQuery
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got = ParseListQuery(c, res)
		return nil
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/?"+rawQuery, nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	return got
}

func TestParseListQuery_Defaults(t *testing.T) {
	q := parseQuery(t, metadata.Contacts, "")
	assert.Equal(t, provider.Pagination{Page: 1, PerPage: 25}, q.Pagination)
	assert.Equal(t, provider.Sort{}, q.Sort)
	assert.Empty(t, q.Filter)
}

func TestParseListQuery_FiltersAreCoerced(t *testing.T) {
	q := parseQuery(t, metadata.Activities,
		"filter[opportunity_id]=12&filter[completed]=false&filter[sales_id@in]=1,2,%20&filter[due_date@lte]=2025-11-13&filter[deleted_at@is]=null&filter[q]=demo&other=1")

	assert.Equal(t, provider.Filter{
		"opportunity_id": int64(12),
		"completed":      false,
		"sales_id@in":    []any{int64(1), int64(2)},
		"due_date@lte":   "2025-11-13",
		"deleted_at@is":  nil,
		"q":              "demo",
	}, q.Filter)
}

func TestParseListQuery_SortAndPaging(t *testing.T) {
	q := parseQuery(t, metadata.Contacts, "sort=-last_seen,first_name&page=3&per_page=5000")
	assert.Equal(t, provider.Sort{Field: "last_seen", Order: "DESC"}, q.Sort)
	assert.Equal(t, provider.Pagination{Page: 3, PerPage: 1000}, q.Pagination)

	q = parseQuery(t, metadata.Contacts, "sort=first_name&page=0&per_page=abc")
	assert.Equal(t, provider.Sort{Field: "first_name", Order: "ASC"}, q.Sort)
	assert.Equal(t, provider.Pagination{Page: 1, PerPage: 25}, q.Pagination)
}

func TestParseID(t *testing.T) {
	assert.Equal(t, int64(42), ParseID("42"))
	assert.Equal(t, "3-8", ParseID("3-8"))
	assert.Equal(t, "a1b2", ParseID("a1b2"))
}
