package sqlitepos

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS positions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  asset_id TEXT NOT NULL,
  timestamp TEXT NOT NULL,
  latitude REAL NOT NULL,
  longitude REAL NOT NULL,
  altitude REAL NULL,
  message_type TEXT NULL,
  battery_state TEXT NULL,
  created_at TEXT NOT NULL,
  UNIQUE (asset_id, timestamp)
)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_asset_timestamp ON positions(asset_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_timestamp ON positions(timestamp)`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
