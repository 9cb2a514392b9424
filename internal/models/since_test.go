package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"24h":                  now.Add(-24 * time.Hour),
		"7d":                   now.Add(-7 * 24 * time.Hour),
		"2w":                   now.Add(-14 * 24 * time.Hour),
		"1m":                   now.Add(-30 * 24 * time.Hour),
		"2024-01-01":           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-01-10T08:00:00Z": time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
		"1705314600":           time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseSince(in, now)
		require.NoError(t, err, in)
		require.True(t, want.Equal(got), "%s: got %s", in, got)
	}

	for _, bad := range []string{"", "soon", "7y", "-3d"} {
		_, err := ParseSince(bad, now)
		require.Error(t, err, bad)
	}
}
