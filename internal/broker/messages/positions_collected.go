package messages

import (
	"time"

	"github.com/BearBump/SpotBox/internal/models"
)

const TopicPositionsCollected = "positions.collected"

// PositionsCollected is published once per collection cycle that stored at
// least one new position. Keyed by CycleID.
type PositionsCollected struct {
	CycleID     string    `json:"cycle_id"`
	CollectedAt time.Time `json:"collected_at"`

	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`

	Assets []string `json:"assets"`
	// Latest holds the newest fetched position of every asset in the batch.
	Latest []PositionSnapshot `json:"latest"`
}

type PositionSnapshot struct {
	AssetID      string    `json:"asset_id"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     *float64  `json:"altitude,omitempty"`
	MessageType  *string   `json:"message_type,omitempty"`
	BatteryState *string   `json:"battery_state,omitempty"`
}

func SnapshotOf(p models.Position) PositionSnapshot {
	return PositionSnapshot{
		AssetID:      p.AssetID,
		Timestamp:    p.Timestamp.UTC(),
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Altitude:     p.Altitude,
		MessageType:  p.MessageType,
		BatteryState: p.BatteryState,
	}
}

// NewPositionsCollected builds the event for a stored batch. Assets are
// listed in first-seen order.
func NewPositionsCollected(cycleID string, at time.Time, fetched, inserted, duplicates int, batch []models.Position) PositionsCollected {
	msg := PositionsCollected{
		CycleID:     cycleID,
		CollectedAt: at.UTC(),
		Fetched:     fetched,
		Inserted:    inserted,
		Duplicates:  duplicates,
		Assets:      []string{},
		Latest:      []PositionSnapshot{},
	}
	idx := map[string]int{}
	for _, p := range batch {
		i, ok := idx[p.AssetID]
		if !ok {
			idx[p.AssetID] = len(msg.Latest)
			msg.Assets = append(msg.Assets, p.AssetID)
			msg.Latest = append(msg.Latest, SnapshotOf(p))
			continue
		}
		if p.Timestamp.After(msg.Latest[i].Timestamp) {
			msg.Latest[i] = SnapshotOf(p)
		}
	}
	return msg
}
