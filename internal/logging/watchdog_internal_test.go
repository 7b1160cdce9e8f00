package logging

import (
	"testing"
	"time"
)

func TestHasRecentTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		tail string
		want bool
	}{
		{"recent console line", "2026-03-01T11:58:00Z INFO scheduler: tick\n", true},
		{"recent offset timestamp", `{"ts":"2026-03-01T13:57:00+02:00"}`, true},
		{"old line", "2026-03-01T11:40:00Z INFO scheduler: tick\n", false},
		{"no timestamps", "garbage without dates", false},
		{"empty", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasRecentTimestamp(tc.tail, now, 5*time.Minute); got != tc.want {
				t.Fatalf("hasRecentTimestamp = %v, want %v", got, tc.want)
			}
		})
	}
}
