package sqlitepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/pkg/errors"
)

const positionColumns = `id, asset_id, timestamp, latitude, longitude, altitude, message_type, battery_state, created_at`

const insertPositionSQL = `
INSERT INTO positions (
  asset_id, timestamp, latitude, longitude, altitude, message_type, battery_state, created_at
)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT (asset_id, timestamp) DO NOTHING`

func (s *Store) InsertPosition(ctx context.Context, p models.Position) (bool, error) {
	res, err := s.InsertPositions(ctx, []models.Position{p})
	if err != nil {
		return false, err
	}
	return res.Inserted == 1, nil
}

// InsertPositions validates the whole batch before opening the transaction,
// so a bad record leaves the store untouched.
func (s *Store) InsertPositions(ctx context.Context, ps []models.Position) (models.InsertResult, error) {
	clean := make([]models.Position, 0, len(ps))
	for _, p := range ps {
		np, err := models.NewPosition(p)
		if err != nil {
			return models.InsertResult{}, err
		}
		clean = append(clean, np)
	}
	if len(clean) == 0 {
		return models.InsertResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.InsertResult{}, fail("insert positions", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertPositionSQL)
	if err != nil {
		return models.InsertResult{}, fail("insert positions", "prepare", err)
	}
	defer stmt.Close()

	createdAt := formatTS(s.now())
	var out models.InsertResult
	for _, p := range clean {
		res, err := stmt.ExecContext(ctx,
			p.AssetID, formatTS(p.Timestamp), p.Latitude, p.Longitude,
			p.Altitude, p.MessageType, p.BatteryState, createdAt,
		)
		if err != nil {
			return models.InsertResult{}, fail("insert positions", "insert position", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return models.InsertResult{}, fail("insert positions", "rows affected", err)
		}
		if n == 1 {
			out.Inserted++
		} else {
			out.Duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.InsertResult{}, fail("insert positions", "commit tx", err)
	}
	return out, nil
}

func (s *Store) GetLatestPosition(ctx context.Context, assetID string) (*models.Position, error) {
	q := `SELECT ` + positionColumns + ` FROM positions`
	var args []any
	if assetID != "" {
		q += ` WHERE asset_id = ?`
		args = append(args, assetID)
	}
	q += ` ORDER BY timestamp DESC, id DESC LIMIT 1`

	p, err := scanPosition(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fail("get latest position", "select", err)
	}
	return &p, nil
}

func (s *Store) GetPositionsSince(ctx context.Context, since time.Time, assetID string) ([]models.Position, error) {
	q := `SELECT ` + positionColumns + ` FROM positions WHERE timestamp >= ?`
	args := []any{formatTS(since)}
	if assetID != "" {
		q += ` AND asset_id = ?`
		args = append(args, assetID)
	}
	q += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fail("get positions since", "select", err)
	}
	defer rows.Close()

	out := make([]models.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fail("get positions since", "scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("get positions since", "rows", err)
	}
	return out, nil
}

func (s *Store) GetAssetIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT asset_id FROM positions ORDER BY asset_id`)
	if err != nil {
		return nil, fail("get asset ids", "select", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fail("get asset ids", "scan", err)
		}
		out = append(out, id)
	}
	return out, storage.Wrap("get asset ids", rows.Err())
}

func (s *Store) GetPositionCount(ctx context.Context, assetID string) (int64, error) {
	q := `SELECT COUNT(*) FROM positions`
	var args []any
	if assetID != "" {
		q += ` WHERE asset_id = ?`
		args = append(args, assetID)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fail("get position count", "select", err)
	}
	return n, nil
}

func (s *Store) GetDatabaseStats(ctx context.Context) (models.DatabaseStats, error) {
	var st models.DatabaseStats
	var earliest, latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT asset_id), MIN(timestamp), MAX(timestamp)
FROM positions`).Scan(&st.TotalPositions, &st.UniqueAssets, &earliest, &latest)
	if err != nil {
		return st, fail("get database stats", "select totals", err)
	}
	if st.EarliestPosition, err = nullTS(earliest); err != nil {
		return st, fail("get database stats", "parse earliest", err)
	}
	if st.LatestPosition, err = nullTS(latest); err != nil {
		return st, fail("get database stats", "parse latest", err)
	}

	if st.DatabaseSizeBytes, err = s.sizeOnDisk(ctx); err != nil {
		return st, fail("get database stats", "size", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT asset_id, COUNT(*), MIN(timestamp), MAX(timestamp)
FROM positions
GROUP BY asset_id
ORDER BY asset_id`)
	if err != nil {
		return st, fail("get database stats", "select breakdown", err)
	}
	defer rows.Close()

	st.Assets = make([]models.AssetStats, 0)
	for rows.Next() {
		var a models.AssetStats
		var first, last string
		if err := rows.Scan(&a.AssetID, &a.Count, &first, &last); err != nil {
			return st, fail("get database stats", "scan breakdown", err)
		}
		if a.FirstSeen, err = parseTS(first); err != nil {
			return st, fail("get database stats", "parse first seen", err)
		}
		if a.LastSeen, err = parseTS(last); err != nil {
			return st, fail("get database stats", "parse last seen", err)
		}
		st.Assets = append(st.Assets, a)
	}
	return st, storage.Wrap("get database stats", rows.Err())
}

// CleanupOldPositions deletes positions observed more than daysToKeep days
// ago and returns how many were removed.
func (s *Store) CleanupOldPositions(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		return 0, errors.Errorf("days to keep must be >= 0, got %d", daysToKeep)
	}
	cutoff := s.now().Add(-time.Duration(daysToKeep) * 24 * time.Hour)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fail("cleanup", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE timestamp < ?`, formatTS(cutoff))
	if err != nil {
		return 0, fail("cleanup", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fail("cleanup", "rows affected", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fail("cleanup", "commit tx", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(r rowScanner) (models.Position, error) {
	var p models.Position
	var ts, createdAt string
	var alt sql.NullFloat64
	var msgType, battery sql.NullString
	if err := r.Scan(&p.ID, &p.AssetID, &ts, &p.Latitude, &p.Longitude, &alt, &msgType, &battery, &createdAt); err != nil {
		return p, err
	}

	var err error
	if p.Timestamp, err = parseTS(ts); err != nil {
		return p, errors.Wrap(err, "parse timestamp")
	}
	if p.CreatedAt, err = parseTS(createdAt); err != nil {
		return p, errors.Wrap(err, "parse created_at")
	}
	if alt.Valid {
		v := alt.Float64
		p.Altitude = &v
	}
	if msgType.Valid {
		v := msgType.String
		p.MessageType = &v
	}
	if battery.Valid {
		v := battery.String
		p.BatteryState = &v
	}
	return p, nil
}

func nullTS(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTS(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
