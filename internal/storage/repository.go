package storage

import (
	"context"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
)

// Repository is the position store contract shared by the SQLite and
// PostgreSQL backends.
type Repository interface {
	// InsertPosition reports false when the (asset_id, timestamp) pair
	// already exists.
	InsertPosition(ctx context.Context, p models.Position) (bool, error)
	// InsertPositions is all-or-nothing.
	InsertPositions(ctx context.Context, ps []models.Position) (models.InsertResult, error)
	// GetLatestPosition returns ErrNotFound when nothing matches. An empty
	// assetID means any asset.
	GetLatestPosition(ctx context.Context, assetID string) (*models.Position, error)
	// GetPositionsSince returns positions with timestamp >= since in
	// ascending order.
	GetPositionsSince(ctx context.Context, since time.Time, assetID string) ([]models.Position, error)
	GetAssetIDs(ctx context.Context) ([]string, error)
	GetPositionCount(ctx context.Context, assetID string) (int64, error)
	GetDatabaseStats(ctx context.Context) (models.DatabaseStats, error)
	CleanupOldPositions(ctx context.Context, daysToKeep int) (int64, error)
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	CheckWritable(ctx context.Context) error
	Close() error
}
