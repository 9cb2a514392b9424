package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampParser is one named strategy for turning an upstream value into
// a UTC instant.
type TimestampParser struct {
	Name  string
	Parse func(v any) (time.Time, error)
}

var errNotApplicable = fmt.Errorf("not applicable")

// TimestampParsers are tried in order; the first success wins.
var TimestampParsers = []TimestampParser{
	{Name: "time", Parse: parseTimeValue},
	{Name: "rfc3339", Parse: parseISO8601},
	{Name: "unix", Parse: parseUnixSeconds},
	{Name: "datetime", Parse: layoutParser("2006-01-02 15:04:05")},
	{Name: "datetime-t", Parse: layoutParser("2006-01-02T15:04:05")},
}

// ParseTimestamp runs TimestampParsers over v. On failure it returns one
// ValidationError listing every attempt.
func ParseTimestamp(v any) (time.Time, error) {
	if v == nil {
		return time.Time{}, &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return time.Time{}, &ValidationError{Field: "timestamp", Reason: "is required"}
	}

	attempts := make([]string, 0, len(TimestampParsers))
	for _, p := range TimestampParsers {
		t, err := p.Parse(v)
		if err == nil {
			return t.UTC(), nil
		}
		attempts = append(attempts, p.Name+": "+err.Error())
	}
	return time.Time{}, &ValidationError{
		Field:  "timestamp",
		Value:  v,
		Reason: "unrecognized format (" + strings.Join(attempts, "; ") + ")",
	}
}

func parseTimeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("zero time")
		}
		return t, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, fmt.Errorf("zero time")
		}
		return *t, nil
	}
	return time.Time{}, errNotApplicable
}

// SPOT sends "+0000" offsets without a colon, which RFC3339 rejects.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
}

func parseISO8601(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, errNotApplicable
	}
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseUnixSeconds(v any) (time.Time, error) {
	var f float64
	switch n := v.(type) {
	case int:
		return time.Unix(int64(n), 0), nil
	case int64:
		return time.Unix(n, 0), nil
	case float64:
		f = n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0), nil
		}
		parsed, err := n.Float64()
		if err != nil {
			return time.Time{}, err
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(i, 0), nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("not numeric")
		}
		f = parsed
	default:
		return time.Time{}, errNotApplicable
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("not finite")
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}

// layoutParser treats a zone-less layout as UTC.
func layoutParser(layout string) func(v any) (time.Time, error) {
	return func(v any) (time.Time, error) {
		s, ok := v.(string)
		if !ok {
			return time.Time{}, errNotApplicable
		}
		return time.ParseInLocation(layout, strings.TrimSpace(s), time.UTC)
	}
}

// ParseCoordinate accepts JSON numbers and numeric strings.
func ParseCoordinate(field string, v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, &ValidationError{Field: field, Reason: "is required"}
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, &ValidationError{Field: field, Value: v, Reason: "is not a number"}
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, &ValidationError{Field: field, Reason: "is required"}
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &ValidationError{Field: field, Value: v, Reason: "is not a number"}
		}
		f = parsed
	default:
		return 0, &ValidationError{Field: field, Value: v, Reason: "is not a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: field, Value: v, Reason: "must be a finite number"}
	}
	return f, nil
}
