package gpx

import (
	"sort"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/pkg/errors"
	gpxgo "github.com/tkrajina/gpxgo/gpx"
)

// Encode renders positions as GPX 1.1, one track per asset in asset order,
// points in time order.
func Encode(ps []models.Position, creator string) ([]byte, error) {
	byAsset := make(map[string][]models.Position)
	for _, p := range ps {
		byAsset[p.AssetID] = append(byAsset[p.AssetID], p)
	}
	assets := make([]string, 0, len(byAsset))
	for a := range byAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	doc := &gpxgo.GPX{Creator: creator}
	for _, a := range assets {
		track := byAsset[a]
		sort.SliceStable(track, func(i, j int) bool {
			return track[i].Timestamp.Before(track[j].Timestamp)
		})

		seg := gpxgo.GPXTrackSegment{Points: make([]gpxgo.GPXPoint, 0, len(track))}
		for _, p := range track {
			pt := gpxgo.GPXPoint{
				Point: gpxgo.Point{
					Latitude:  p.Latitude,
					Longitude: p.Longitude,
				},
				Timestamp: p.Timestamp.UTC(),
			}
			if p.Altitude != nil {
				pt.Elevation = *gpxgo.NewNullableFloat64(*p.Altitude)
			}
			seg.Points = append(seg.Points, pt)
		}
		doc.Tracks = append(doc.Tracks, gpxgo.GPXTrack{
			Name:     a,
			Segments: []gpxgo.GPXTrackSegment{seg},
		})
	}

	b, err := doc.ToXml(gpxgo.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, errors.Wrap(err, "encode gpx")
	}
	return b, nil
}
