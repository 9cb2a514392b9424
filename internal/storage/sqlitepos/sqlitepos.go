package sqlitepos

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const DefaultPath = "spot_positions.db"

// Timestamps are stored as fixed-width UTC text so that string order is
// time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// New opens (or creates) the database file at path. WAL mode lets readers
// proceed while the collector writes; busy_timeout makes a second writer
// wait instead of failing immediately.
func New(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, errors.Wrap(err, "create db directory")
			}
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := newWithDB(db, path)
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newWithDB(db *sql.DB, path string) *Store {
	return &Store{
		db:   db,
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Path() string { return s.path }

// sizeOnDisk is the database file plus its write-ahead log. In-memory
// databases report their page usage.
func (s *Store) sizeOnDisk(ctx context.Context) (int64, error) {
	if s.path == ":memory:" {
		var n int64
		err := s.db.QueryRowContext(ctx,
			`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
		).Scan(&n)
		return n, err
	}

	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	n := fi.Size()
	if wal, err := os.Stat(s.path + "-wal"); err == nil {
		n += wal.Size()
	} else if !os.IsNotExist(err) {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return storage.Wrap("ping", s.db.PingContext(ctx))
}

// CheckWritable opens a write transaction and rolls it back.
func (s *Store) CheckWritable(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("check writable", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE 0`); err != nil {
		return fail("check writable", "write test row", err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fail("reset", "delete positions", err)
	}
	return nil
}

func fail(op, step string, err error) error {
	return storage.Wrap(op, errors.Wrap(err, step))
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
