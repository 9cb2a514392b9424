package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var relativeRe = regexp.MustCompile(`^(\d+)([hdwm])$`)

// ParseSince turns a lower bound given either as a relative age ("24h",
// "7d", "2w", "1m" where m is 30 days) or as an absolute timestamp / date
// ("2024-01-15") into an instant.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("since is empty")
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid number in %q", s)
		}
		day := 24 * time.Hour
		unit := map[string]time.Duration{"h": time.Hour, "d": day, "w": 7 * day, "m": 30 * day}[m[2]]
		return now.Add(-time.Duration(n) * unit).UTC(), nil
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid since %q (use e.g. 24h, 7d, 2024-01-15 or RFC 3339)", s)
	}
	return t, nil
}
