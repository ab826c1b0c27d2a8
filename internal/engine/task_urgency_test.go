package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crm-backend/internal/provider"
)

func TestGroupTasksByUrgency(t *testing.T) {
	today := time.Date(2025, 11, 13, 17, 45, 0, 0, time.FixedZone("PST", -8*3600))
	tasks := []provider.Record{
		{"id": 1, "due_date": "2025-11-10"},
		{"id": 2, "due_date": "2025-11-13"},
		{"id": 3, "due_date": "2025-11-15"},
		{"id": 4},
		{"id": 5, "due_date": ""},
		{"id": 6, "due_date": "next tuesday"},
		{"id": 7, "due_date": "2025-11-13T23:30:00Z"},
		{"id": 8, "due_date": time.Date(2025, 11, 12, 8, 0, 0, 0, time.UTC)},
	}

	groups := GroupTasksByUrgency(tasks, today)

	ids := func(rows []provider.Record) []any { return provider.IDsOf(rows) }
	assert.Equal(t, []any{1, 8}, ids(groups.Overdue))
	assert.Equal(t, []any{2, 7}, ids(groups.Today))
	assert.Equal(t, []any{3, 4, 5, 6}, ids(groups.ThisWeek))
}

func TestGroupTasksByUrgency_EmptyBucketsAreLists(t *testing.T) {
	groups := GroupTasksByUrgency(nil, fixedNow)
	assert.NotNil(t, groups.Overdue)
	assert.NotNil(t, groups.Today)
	assert.NotNil(t, groups.ThisWeek)
}

func TestParseDay(t *testing.T) {
	d, ok := ParseDay("2025-11-13")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC), d)

	d, ok = ParseDay(" 2025-11-13T22:00:00-05:00 ")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC), d)

	_, ok = ParseDay("13/11/2025")
	assert.False(t, ok)
	_, ok = ParseDay("")
	assert.False(t, ok)
}
