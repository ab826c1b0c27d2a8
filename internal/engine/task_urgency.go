package engine

import (
	"strings"
	"time"

	"crm-backend/internal/provider"
)

// Urgency bucket names.
const (
	UrgencyOverdue  = "OVERDUE"
	UrgencyToday    = "TODAY"
	UrgencyThisWeek = "THIS WEEK"
)

// UrgencyGroups holds tasks bucketed by due date, in input order.
type UrgencyGroups struct {
	Overdue  []provider.Record `json:"OVERDUE"`
	Today    []provider.Record `json:"TODAY"`
	ThisWeek []provider.Record `json:"THIS WEEK"`
}

// GroupTasksByUrgency buckets tasks by calendar day of due_date relative to
// today. Tasks with an empty, missing or unreadable due date land in THIS WEEK.
func GroupTasksByUrgency(tasks []provider.Record, today time.Time) UrgencyGroups {
	groups := UrgencyGroups{
		Overdue:  []provider.Record{},
		Today:    []provider.Record{},
		ThisWeek: []provider.Record{},
	}
	day := calendarDay(today)

	for _, t := range tasks {
		due, ok := parseDueDate(t["due_date"])
		switch {
		case !ok:
			groups.ThisWeek = append(groups.ThisWeek, t)
		case due.Before(day):
			groups.Overdue = append(groups.Overdue, t)
		case due.Equal(day):
			groups.Today = append(groups.Today, t)
		default:
			groups.ThisWeek = append(groups.ThisWeek, t)
		}
	}
	return groups
}

// ParseDay parses a YYYY-MM-DD or RFC 3339 value into its calendar day.
func ParseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return calendarDay(t), true
	}
	return time.Time{}, false
}

func parseDueDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case string:
		return ParseDay(d)
	case time.Time:
		return calendarDay(d), true
	}
	return time.Time{}, false
}

// calendarDay drops the clock and zone, keeping the date as written.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
