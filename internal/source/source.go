// Package source contains the per-platform content adapters. Each adapter
// wraps a platform's private search/timeline API and canonicalizes its opaque
// payloads into RawPost records. Adapters own client-side pacing and
// per-request anti-replay token rotation; they hold no state beyond auth and
// pagination tokens.
package source

import (
	"time"

	"github.com/brandpulse/brandpulse/internal/models"
)

// TimeWindow is a bounded [Start, End) range over which one ingestion run
// searches for new content.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// SearchPage is one page of canonicalized search results plus the opaque
// continuation cursor ("" when exhausted).
type SearchPage struct {
	Posts      []*models.RawPost
	NextCursor string
}

// Map-navigation helpers for opaque platform payloads.

func getMap(m map[string]interface{}, keys ...string) map[string]interface{} {
	for _, key := range keys {
		next, ok := m[key].(map[string]interface{})
		if !ok {
			return nil
		}
		m = next
	}
	return m
}

func getSlice(m map[string]interface{}, key string) []interface{} {
	s, _ := m[key].([]interface{})
	return s
}

func getString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func getBool(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func getInt64(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
