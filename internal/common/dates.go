package common

import (
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date layout written to fact cards.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order. Day-first layouts precede month-first ones,
// so "05/01/2025" is read as 5 January.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"01-02-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-06",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate parses a fact-card date in any accepted layout and returns the
// calendar day at UTC midnight. The "N/A" sentinel and unparseable input
// report ok=false.
func ParseDate(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" || IsNotAvailable(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), true
		}
	}
	return time.Time{}, false
}

// NormalizeDate returns value as YYYY-MM-DD, or "" when it cannot be parsed.
func NormalizeDate(value string) string {
	t, ok := ParseDate(value)
	if !ok {
		return ""
	}
	return t.Format(DateLayout)
}

// TruncateDay drops the time of day, keeping the calendar date of t in its own
// location and re-expressing it at UTC midnight.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar day by n days.
func AddDays(t time.Time, n int) time.Time {
	return TruncateDay(t).AddDate(0, 0, n)
}
