package window

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	shortAgePattern = regexp.MustCompile(`(?i)\b(\d{1,2})([hd]) ago|just now`)
	longAgePattern  = regexp.MustCompile(`(?i)\b(\d+|an?)\s+(second|minute|hour|day|week)s?\s+ago\b`)
)

// ParseAge reads the compact relative form used by article listings
// ("just now", "5h ago", "3d ago"). The first match in the string wins.
func ParseAge(raw string, today Date) (Date, bool) {
	m := shortAgePattern.FindStringSubmatch(raw)
	if m == nil {
		return Date{}, false
	}
	if m[1] == "" {
		return today, true
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Date{}, false
	}

	if strings.EqualFold(m[2], "d") {
		return today.AddDays(-n), true
	}
	return today, true
}

// ParseLongAge reads spelled-out relative ages such as "4 hours ago",
// "a day ago" or "yesterday".
func ParseLongAge(raw string, today Date) (Date, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case lower == "":
		return Date{}, false
	case strings.Contains(lower, "just now"), strings.Contains(lower, "today"):
		return today, true
	case strings.Contains(lower, "yesterday"):
		return today.AddDays(-1), true
	}

	m := longAgePattern.FindStringSubmatch(lower)
	if m == nil {
		return Date{}, false
	}

	n := 1
	if m[1] != "a" && m[1] != "an" {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return Date{}, false
		}
		n = v
	}

	switch m[2] {
	case "day":
		return today.AddDays(-n), true
	case "week":
		return today.AddDays(-7 * n), true
	default:
		return today, true
	}
}

// ParseInstant accepts RFC 3339 timestamps with or without fractional
// seconds.
func ParseInstant(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
