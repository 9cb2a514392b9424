package pgpositions

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS positions (
  id BIGSERIAL PRIMARY KEY,
  asset_id TEXT NOT NULL,
  timestamp TIMESTAMPTZ NOT NULL,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  altitude DOUBLE PRECISION NULL,
  message_type TEXT NULL,
  battery_state TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (asset_id, timestamp)
)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_asset_timestamp ON positions(asset_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_timestamp ON positions(timestamp)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
