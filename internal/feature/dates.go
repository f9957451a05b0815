package feature

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; naive timestamps are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	time.RFC1123Z,
}

// parseDate returns the parsed timestamp, or ok=false for blank or
// unrecognised text.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isoWeekday maps Go's Sunday-first weekday to Monday=0 ... Sunday=6.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
