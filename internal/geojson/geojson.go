package geojson

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/pkg/errors"
)

type GeometryKind string

const (
	Points GeometryKind = "points"
	Line   GeometryKind = "line"
)

func ParseGeometry(s string) (GeometryKind, error) {
	switch GeometryKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", Points:
		return Points, nil
	case Line, "linestring":
		return Line, nil
	default:
		return "", errors.Errorf("unknown geometry %q (want points or line)", s)
	}
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// PointCoordinates is [longitude, latitude] or [longitude, latitude, altitude].
type PointCoordinates []float64

type LineCoordinates []PointCoordinates

func coords(p models.Position) PointCoordinates {
	if p.Altitude != nil {
		return PointCoordinates{p.Longitude, p.Latitude, *p.Altitude}
	}
	return PointCoordinates{p.Longitude, p.Latitude}
}

// Build renders positions as kind.
func Build(positions []models.Position, kind GeometryKind) *FeatureCollection {
	if kind == Line {
		return ToLines(positions)
	}
	return ToPoints(positions)
}

func ToPoints(positions []models.Position) *FeatureCollection {
	features := make([]Feature, 0, len(positions))
	for _, p := range positions {
		props := map[string]any{
			"asset_id":  p.AssetID,
			"timestamp": p.Timestamp.UTC().Format(time.RFC3339),
		}
		if p.MessageType != nil {
			props["message_type"] = *p.MessageType
		}
		if p.BatteryState != nil {
			props["battery_state"] = *p.BatteryState
		}

		features = append(features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "Point", Coordinates: coords(p)},
			Properties: props,
		})
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}

// ToLines emits one LineString per asset, ordered by asset id, with points
// in time order. Assets with fewer than two positions are left out.
func ToLines(positions []models.Position) *FeatureCollection {
	byAsset := make(map[string][]models.Position)
	for _, p := range positions {
		byAsset[p.AssetID] = append(byAsset[p.AssetID], p)
	}
	assets := make([]string, 0, len(byAsset))
	for a := range byAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	features := make([]Feature, 0, len(assets))
	for _, a := range assets {
		track := byAsset[a]
		if len(track) < 2 {
			continue
		}
		sort.SliceStable(track, func(i, j int) bool { return track[i].Timestamp.Before(track[j].Timestamp) })

		line := make(LineCoordinates, len(track))
		for i, p := range track {
			line[i] = coords(p)
		}
		features = append(features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "LineString", Coordinates: line},
			Properties: map[string]any{
				"asset_id":    a,
				"point_count": len(track),
				"start":       track[0].Timestamp.UTC().Format(time.RFC3339),
				"end":         track[len(track)-1].Timestamp.UTC().Format(time.RFC3339),
			},
		})
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}

func (fc *FeatureCollection) ToJSON() ([]byte, error) {
	return json.Marshal(fc)
}

func (fc *FeatureCollection) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(fc, "", "  ")
}
