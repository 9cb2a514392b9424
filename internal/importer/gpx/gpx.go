package gpx

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/pkg/errors"
	gpxgo "github.com/tkrajina/gpxgo/gpx"
)

type TrackSummary struct {
	AssetID string     `json:"asset_id"`
	Points  int        `json:"points"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

type Result struct {
	Positions []models.Position `json:"-"`
	Tracks    []TrackSummary    `json:"tracks"`
	// Skipped counts points without a timestamp or with invalid coordinates.
	Skipped int `json:"skipped"`
}

// ParseFile reads a GPX file. Unnamed tracks take the file name (without
// extension) as their asset id.
func ParseFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errors.Wrap(err, "open gpx file")
	}
	defer f.Close()

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(f, stem)
}

// Parse converts every track point into a position. Output is sorted by
// timestamp.
func Parse(r io.Reader, fallbackAsset string) (Result, error) {
	doc, err := gpxgo.Parse(r)
	if err != nil {
		return Result{}, errors.Wrap(err, "parse gpx")
	}
	if fallbackAsset = strings.TrimSpace(fallbackAsset); fallbackAsset == "" {
		fallbackAsset = models.UnknownAsset
	}

	var out Result
	for _, track := range doc.Tracks {
		asset := strings.TrimSpace(track.Name)
		if asset == "" {
			asset = fallbackAsset
		}
		sum := TrackSummary{AssetID: asset}

		for _, seg := range track.Segments {
			for _, pt := range seg.Points {
				p, ok := toPosition(asset, pt)
				if !ok {
					out.Skipped++
					continue
				}
				out.Positions = append(out.Positions, p)
				sum.Points++
				if sum.Start == nil || p.Timestamp.Before(*sum.Start) {
					ts := p.Timestamp
					sum.Start = &ts
				}
				if sum.End == nil || p.Timestamp.After(*sum.End) {
					ts := p.Timestamp
					sum.End = &ts
				}
			}
		}
		out.Tracks = append(out.Tracks, sum)
	}

	sort.SliceStable(out.Positions, func(i, j int) bool {
		return out.Positions[i].Timestamp.Before(out.Positions[j].Timestamp)
	})
	if out.Skipped > 0 {
		slog.Warn("gpx points skipped", "skipped", out.Skipped)
	}
	return out, nil
}

func toPosition(asset string, pt gpxgo.GPXPoint) (models.Position, bool) {
	if pt.Timestamp.IsZero() {
		return models.Position{}, false
	}
	p := models.Position{
		AssetID:   asset,
		Timestamp: pt.Timestamp,
		Latitude:  pt.Latitude,
		Longitude: pt.Longitude,
	}
	if pt.Elevation.NotNull() {
		p.Altitude = models.Float64Ptr(pt.Elevation.Value())
	}
	np, err := models.NewPosition(p)
	if err != nil {
		slog.Warn("skip gpx point", "asset_id", asset, "error", err.Error())
		return models.Position{}, false
	}
	return np, true
}
