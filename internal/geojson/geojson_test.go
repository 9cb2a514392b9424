package geojson

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestToPoints(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	positions := []models.Position{
		{AssetID: "drifter-1", Timestamp: ts, Latitude: -41.29, Longitude: 174.78, MessageType: models.StringPtr("TRACK")},
		{AssetID: "drifter-2", Timestamp: ts, Latitude: 10, Longitude: 20, Altitude: models.Float64Ptr(5)},
	}

	fc := ToPoints(positions)
	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	require.Equal(t, "Point", f.Geometry.Type)
	// [lng, lat]
	require.Equal(t, PointCoordinates{174.78, -41.29}, f.Geometry.Coordinates)
	require.Equal(t, "drifter-1", f.Properties["asset_id"])
	require.Equal(t, "2024-01-15T10:30:00Z", f.Properties["timestamp"])
	require.Equal(t, "TRACK", f.Properties["message_type"])
	require.NotContains(t, f.Properties, "battery_state")

	require.Equal(t, PointCoordinates{20, 10, 5}, fc.Features[1].Geometry.Coordinates)
}

func TestToLines_GroupsAndOrders(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	positions := []models.Position{
		{AssetID: "b", Timestamp: base.Add(time.Hour), Latitude: 2, Longitude: 2},
		{AssetID: "a", Timestamp: base.Add(time.Hour), Latitude: 1, Longitude: 11},
		{AssetID: "b", Timestamp: base, Latitude: 1, Longitude: 1},
		{AssetID: "c", Timestamp: base, Latitude: 1, Longitude: 1},
		{AssetID: "a", Timestamp: base, Latitude: 1, Longitude: 10},
	}

	fc := ToLines(positions)
	require.Len(t, fc.Features, 2)

	require.Equal(t, "a", fc.Features[0].Properties["asset_id"])
	require.Equal(t, "LineString", fc.Features[0].Geometry.Type)
	require.Equal(t, LineCoordinates{{10, 1}, {11, 1}}, fc.Features[0].Geometry.Coordinates)
	require.Equal(t, 2, fc.Features[0].Properties["point_count"])

	require.Equal(t, "b", fc.Features[1].Properties["asset_id"])
	require.Equal(t, "2024-01-15T10:00:00Z", fc.Features[1].Properties["start"])

	// input order untouched
	require.Equal(t, "b", positions[0].AssetID)
}

func TestBuildAndJSON(t *testing.T) {
	fc := Build(nil, Points)
	b, err := fc.ToJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(b))

	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	fc = Build([]models.Position{
		{AssetID: "a", Timestamp: ts, Latitude: 1, Longitude: 2},
		{AssetID: "a", Timestamp: ts.Add(time.Minute), Latitude: 3, Longitude: 4},
	}, Line)
	b, err = fc.ToJSONIndent()
	require.NoError(t, err)

	var decoded struct {
		Features []struct {
			Geometry struct {
				Type        string      `json:"type"`
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded.Features, 1)
	require.Equal(t, [][]float64{{2, 1}, {4, 3}}, decoded.Features[0].Geometry.Coordinates)
}

func TestParseGeometry(t *testing.T) {
	for in, want := range map[string]GeometryKind{"": Points, "points": Points, "LINE": Line, "linestring": Line} {
		got, err := ParseGeometry(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseGeometry("polygon")
	require.Error(t, err)
}
