package sqlitepos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestInsertPositions_ExecErrorRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := newWithDB(db, "")
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO positions")
	prep.ExpectExec().
		WithArgs("a", formatTS(ts), 1.0, 2.0, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = st.InsertPositions(context.Background(), []models.Position{
		pos("a", ts, 1, 2),
		pos("a", ts.Add(time.Minute), 1, 2),
	})
	var se *storage.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "insert positions", se.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPositions_CommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := newWithDB(db, "")
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO positions").
		ExpectExec().
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, err = st.InsertPositions(context.Background(), []models.Position{pos("a", time.Now(), 1, 2)})
	var se *storage.Error
	require.ErrorAs(t, err, &se)
	require.Contains(t, err.Error(), "commit tx")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOldPositions_UsesCutoff(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	st := newWithDB(db, "")
	st.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM positions WHERE timestamp <").
		WithArgs(formatTS(now.Add(-30 * 24 * time.Hour))).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := st.CleanupOldPositions(context.Background(), 30)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOldPositions_DeleteErrorRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := newWithDB(db, "")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM positions").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err = st.CleanupOldPositions(context.Background(), 7)
	var se *storage.Error
	require.ErrorAs(t, err, &se)
	require.NoError(t, mock.ExpectationsWereMet())
}
