package source

import (
	"testing"
	"time"
)

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"minutes short", "5m", now.Add(-5 * time.Minute), true},
		{"minutes word", "30 minutes ago", now.Add(-30 * time.Minute), true},
		{"hours", "3h ago", now.Add(-3 * time.Hour), true},
		{"days", "5d", now.AddDate(0, 0, -5), true},
		{"days with suffix", "2 days ago • Edited", now.AddDate(0, 0, -2), true},
		{"weeks", "1w ago", now.AddDate(0, 0, -7), true},
		{"months", "2mo", now.AddDate(0, -2, 0), true},
		{"years", "1y ago", now.AddDate(-1, 0, 0), true},
		{"empty", "", time.Time{}, false},
		{"no timestamp", "Promoted", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRelativeTime(tt.input, now)
			if ok != tt.ok {
				t.Fatalf("ParseRelativeTime(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseRelativeTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
