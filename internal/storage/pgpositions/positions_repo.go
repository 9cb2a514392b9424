package pgpositions

import (
	"context"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const positionColumns = `id, asset_id, timestamp, latitude, longitude, altitude, message_type, battery_state, created_at`

func (s *Storage) InsertPosition(ctx context.Context, p models.Position) (bool, error) {
	res, err := s.InsertPositions(ctx, []models.Position{p})
	if err != nil {
		return false, err
	}
	return res.Inserted == 1, nil
}

func (s *Storage) InsertPositions(ctx context.Context, ps []models.Position) (models.InsertResult, error) {
	clean := make([]models.Position, 0, len(ps))
	for _, p := range ps {
		np, err := models.NewPosition(p)
		if err != nil {
			return models.InsertResult{}, err
		}
		// TIMESTAMPTZ keeps microseconds.
		np.Timestamp = np.Timestamp.Truncate(time.Microsecond)
		clean = append(clean, np)
	}
	if len(clean) == 0 {
		return models.InsertResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.InsertResult{}, fail("insert positions", "begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	createdAt := s.now()
	var out models.InsertResult
	for _, p := range clean {
		tag, err := tx.Exec(ctx, `
INSERT INTO positions (
  asset_id, timestamp, latitude, longitude, altitude, message_type, battery_state, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (asset_id, timestamp) DO NOTHING
`, p.AssetID, p.Timestamp, p.Latitude, p.Longitude, p.Altitude, p.MessageType, p.BatteryState, createdAt)
		if err != nil {
			return models.InsertResult{}, fail("insert positions", "insert position", err)
		}
		if tag.RowsAffected() == 1 {
			out.Inserted++
		} else {
			out.Duplicates++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.InsertResult{}, fail("insert positions", "commit tx", err)
	}
	return out, nil
}

func (s *Storage) GetLatestPosition(ctx context.Context, assetID string) (*models.Position, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+positionColumns+`
FROM positions
WHERE ($1 = '' OR asset_id = $1)
ORDER BY timestamp DESC, id DESC
LIMIT 1
`, assetID)
	if err != nil {
		return nil, fail("get latest position", "select", err)
	}
	out, err := collectPositions(rows)
	if err != nil {
		return nil, fail("get latest position", "scan", err)
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return &out[0], nil
}

func (s *Storage) GetPositionsSince(ctx context.Context, since time.Time, assetID string) ([]models.Position, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+positionColumns+`
FROM positions
WHERE timestamp >= $1
  AND ($2 = '' OR asset_id = $2)
ORDER BY timestamp ASC, id ASC
`, since.UTC(), assetID)
	if err != nil {
		return nil, fail("get positions since", "select", err)
	}
	out, err := collectPositions(rows)
	if err != nil {
		return nil, fail("get positions since", "scan", err)
	}
	return out, nil
}

func (s *Storage) GetAssetIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT asset_id FROM positions ORDER BY asset_id`)
	if err != nil {
		return nil, fail("get asset ids", "select", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fail("get asset ids", "scan", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *Storage) GetPositionCount(ctx context.Context, assetID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM positions WHERE ($1 = '' OR asset_id = $1)`, assetID).Scan(&n)
	if err != nil {
		return 0, fail("get position count", "select", err)
	}
	return n, nil
}

func (s *Storage) GetDatabaseStats(ctx context.Context) (models.DatabaseStats, error) {
	var st models.DatabaseStats
	err := s.db.QueryRow(ctx, `
SELECT COUNT(*), COUNT(DISTINCT asset_id), MIN(timestamp), MAX(timestamp),
       pg_total_relation_size('positions')
FROM positions
`).Scan(&st.TotalPositions, &st.UniqueAssets, &st.EarliestPosition, &st.LatestPosition, &st.DatabaseSizeBytes)
	if err != nil {
		return st, fail("get database stats", "select totals", err)
	}
	st.EarliestPosition = utcPtr(st.EarliestPosition)
	st.LatestPosition = utcPtr(st.LatestPosition)

	rows, err := s.db.Query(ctx, `
SELECT asset_id, COUNT(*), MIN(timestamp), MAX(timestamp)
FROM positions
GROUP BY asset_id
ORDER BY asset_id
`)
	if err != nil {
		return st, fail("get database stats", "select breakdown", err)
	}
	defer rows.Close()

	st.Assets = make([]models.AssetStats, 0)
	for rows.Next() {
		var a models.AssetStats
		if err := rows.Scan(&a.AssetID, &a.Count, &a.FirstSeen, &a.LastSeen); err != nil {
			return st, fail("get database stats", "scan breakdown", err)
		}
		a.FirstSeen = a.FirstSeen.UTC()
		a.LastSeen = a.LastSeen.UTC()
		st.Assets = append(st.Assets, a)
	}
	if rows.Err() != nil {
		return st, fail("get database stats", "rows", rows.Err())
	}
	return st, nil
}

func (s *Storage) CleanupOldPositions(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		return 0, errors.Errorf("days to keep must be >= 0, got %d", daysToKeep)
	}
	cutoff := s.now().Add(-time.Duration(daysToKeep) * 24 * time.Hour)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fail("cleanup", "begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM positions WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fail("cleanup", "delete", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fail("cleanup", "commit tx", err)
	}
	return tag.RowsAffected(), nil
}

func collectPositions(rows pgx.Rows) ([]models.Position, error) {
	defer rows.Close()

	out := make([]models.Position, 0)
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(
			&p.ID, &p.AssetID, &p.Timestamp, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.MessageType, &p.BatteryState, &p.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan position")
		}
		p.Timestamp = p.Timestamp.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
