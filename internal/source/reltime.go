package source

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relTimeRe = regexp.MustCompile(`(\d+)\s*(mo|min|minute|m|h|hour|d|day|w|week|y|year)s?\b`)

// ParseRelativeTime parses "5d", "3h ago", "2mo" style timestamps into an
// absolute time relative to now. Inherently approximate: suitable for coarse
// display filtering only, never for checkpoint math.
func ParseRelativeTime(s string, now time.Time) (time.Time, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, false
	}

	match := relTimeRe.FindStringSubmatch(s)
	if match == nil {
		return time.Time{}, false
	}

	value, err := strconv.Atoi(match[1])
	if err != nil {
		return time.Time{}, false
	}

	switch match[2] {
	case "m", "min", "minute":
		return now.Add(-time.Duration(value) * time.Minute), true
	case "h", "hour":
		return now.Add(-time.Duration(value) * time.Hour), true
	case "d", "day":
		return now.AddDate(0, 0, -value), true
	case "w", "week":
		return now.AddDate(0, 0, -7*value), true
	case "mo":
		return now.AddDate(0, -value, 0), true
	case "y", "year":
		return now.AddDate(-value, 0, 0), true
	default:
		return time.Time{}, false
	}
}
