package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// UnknownAsset is used when an upstream message carries no device name.
const UnknownAsset = "unknown"

// Stored timestamps must fit a four-digit year in UTC.
var (
	MinTimestamp = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxTimestamp = time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)
)

// Position is one normalized observation of a tracked asset.
// ID and CreatedAt are assigned by the store on insert.
type Position struct {
	ID           int64     `json:"id,omitempty"`
	AssetID      string    `json:"asset_id"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     *float64  `json:"altitude,omitempty"`
	MessageType  *string   `json:"message_type,omitempty"`
	BatteryState *string   `json:"battery_state,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// NewPosition normalizes p (trimmed asset id, UTC timestamp, empty optional
// strings dropped) and validates it.
func NewPosition(p Position) (Position, error) {
	p.AssetID = strings.TrimSpace(p.AssetID)
	p.Timestamp = p.Timestamp.UTC()
	p.MessageType = nonEmpty(p.MessageType)
	p.BatteryState = nonEmpty(p.BatteryState)
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

func (p Position) Validate() error {
	if p.AssetID == "" {
		return &ValidationError{Field: "asset_id", Reason: "is required"}
	}
	if p.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if p.Timestamp.Before(MinTimestamp) || p.Timestamp.After(MaxTimestamp) {
		return &ValidationError{Field: "timestamp", Value: p.Timestamp.UTC(), Reason: "must be between 1970 and 9999"}
	}
	if err := ValidateCoordinates(p.Latitude, p.Longitude); err != nil {
		return err
	}
	if p.Altitude != nil && (math.IsNaN(*p.Altitude) || math.IsInf(*p.Altitude, 0)) {
		return &ValidationError{Field: "altitude", Value: *p.Altitude, Reason: "must be a finite number"}
	}
	return nil
}

// Key is the deduplication key of a position.
func (p Position) Key() string {
	return p.AssetID + "|" + p.Timestamp.UTC().Format(time.RFC3339Nano)
}

// ValidateCoordinates checks that lat/lon are finite and inside WGS84 bounds.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return &ValidationError{Field: "latitude", Value: lat, Reason: "must be a finite number"}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return &ValidationError{Field: "longitude", Value: lon, Reason: "must be a finite number"}
	}
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "latitude", Value: lat, Reason: "must be between -90 and 90"}
	}
	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "longitude", Value: lon, Reason: "must be between -180 and 180"}
	}
	return nil
}

// ValidationError is returned for a single record that cannot be normalized.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

type AssetStats struct {
	AssetID   string    `json:"asset_id"`
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type DatabaseStats struct {
	TotalPositions    int64        `json:"total_positions"`
	UniqueAssets      int64        `json:"unique_assets"`
	EarliestPosition  *time.Time   `json:"earliest_position,omitempty"`
	LatestPosition    *time.Time   `json:"latest_position,omitempty"`
	DatabaseSizeBytes int64        `json:"database_size_bytes"`
	Assets            []AssetStats `json:"asset_breakdown"`
}

// InsertResult reports how a batch insert was split between new rows and
// rows that already existed under the same (asset_id, timestamp).
type InsertResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func Float64Ptr(v float64) *float64 { return &v }

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
