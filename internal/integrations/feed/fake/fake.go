package fake

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/BearBump/SpotBox/internal/integrations/feed"
	"github.com/BearBump/SpotBox/internal/models"
)

// FakeClient is a deterministic stand-in for the SPOT feed, used when no
// feed id is configured. Every asset reports once per step; the track is a
// slow circle around a point derived from the asset name.
type FakeClient struct {
	assets []string
	step   time.Duration
	now    func() time.Time
}

var _ feed.Client = (*FakeClient)(nil)

func New(assets ...string) *FakeClient {
	if len(assets) == 0 {
		assets = []string{"demo-drifter-1", "demo-drifter-2"}
	}
	return &FakeClient{
		assets: assets,
		step:   10 * time.Minute,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (f *FakeClient) WithClock(now func() time.Time) *FakeClient {
	f.now = now
	return f
}

func (f *FakeClient) GetLatestPosition(ctx context.Context, password string) (*models.Position, error) {
	ps := f.history(1, 1)
	if len(ps) == 0 {
		return nil, nil
	}
	return &ps[0], nil
}

func (f *FakeClient) GetMessages(ctx context.Context, q feed.MessagesQuery) ([]models.Position, error) {
	start := q.Start
	if start <= 0 {
		start = 1
	}
	count := q.Count
	if count <= 0 {
		count = 50
	}
	return f.history(start, count), nil
}

func (f *FakeClient) GetMessagesByDateRange(ctx context.Context, q feed.DateRangeQuery) ([]models.Position, error) {
	if q.To.Sub(q.From) > feed.MaxDateRange {
		return nil, feed.ErrRangeTooLarge
	}
	var out []models.Position
	for t := q.To.UTC().Truncate(f.step); !t.Before(q.From); t = t.Add(-f.step) {
		for _, a := range f.assets {
			out = append(out, f.at(a, t))
		}
	}
	return out, nil
}

func (f *FakeClient) TestConnection(ctx context.Context) bool { return true }

// history returns messages newest first, like the real feed.
func (f *FakeClient) history(start, count int) []models.Position {
	newest := f.now().UTC().Truncate(f.step)
	out := make([]models.Position, 0, count)
	for i := start - 1; len(out) < count; i++ {
		slot := i / len(f.assets)
		asset := f.assets[i%len(f.assets)]
		out = append(out, f.at(asset, newest.Add(-time.Duration(slot)*f.step)))
	}
	return out
}

func (f *FakeClient) at(asset string, t time.Time) models.Position {
	h := fnv.New32a()
	_, _ = h.Write([]byte(asset))
	v := h.Sum32()

	baseLat := float64(v%120) - 60
	baseLon := float64((v/120)%340) - 170
	angle := float64(t.Unix()/int64(f.step.Seconds())%360) * math.Pi / 180

	msgType := "TRACK"
	if t.Hour() == 0 && t.Minute() < int(f.step.Minutes()) {
		msgType = "OK"
	}
	battery := "GOOD"
	if v%7 == 0 {
		battery = "LOW"
	}

	return models.Position{
		AssetID:      asset,
		Timestamp:    t,
		Latitude:     baseLat + 0.5*math.Sin(angle),
		Longitude:    baseLon + 0.5*math.Cos(angle),
		Altitude:     models.Float64Ptr(0),
		MessageType:  &msgType,
		BatteryState: &battery,
	}
}
