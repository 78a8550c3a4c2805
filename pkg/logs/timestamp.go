package logs

import (
	"strconv"
	"strings"
	"time"
)

var datedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05.999999999",
	"02 Jan 2006 15:04:05.999999999",
}

const (
	syslogLayout   = "Jan _2 15:04:05.999999999"
	timeOnlyLayout = "15:04:05.999999999"
)

// ParseTimestamp interprets the timestamp formats ParseLogLine extracts.
// Values without a year take the current year, and time-only values take
// today's date. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "[]"))
	if s == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch len(s) {
		case 10:
			return time.Unix(n, 0).UTC(), true
		case 13:
			return time.UnixMilli(n).UTC(), true
		}
		return time.Time{}, false
	}

	for _, layout := range datedLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}

	now := time.Now().UTC()
	if ts, err := time.ParseInLocation(syslogLayout, s, time.UTC); err == nil {
		return time.Date(now.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC), true
	}
	if ts, err := time.ParseInLocation(timeOnlyLayout, s, time.UTC); err == nil {
		return time.Date(now.Year(), now.Month(), now.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC), true
	}
	return time.Time{}, false
}
