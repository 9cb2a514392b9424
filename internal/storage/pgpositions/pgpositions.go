package pgpositions

import (
	"context"
	"time"

	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Storage struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var _ storage.Repository = (*Storage)(nil)

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close satisfies storage.Repository; the pool itself never fails to close.
func (s *Storage) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return storage.Wrap("ping", s.db.Ping(ctx))
}

func (s *Storage) CheckWritable(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return fail("check writable", "begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE false`); err != nil {
		return fail("check writable", "write test row", err)
	}
	return nil
}

func (s *Storage) Reset(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE positions RESTART IDENTITY`); err != nil {
		return fail("reset", "truncate positions", err)
	}
	return nil
}

func fail(op, step string, err error) error {
	return storage.Wrap(op, errors.Wrap(err, step))
}
