package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"bff-proxy/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errorRowColumns = []string{"id", "type", "severity", "message", "stack", "context", "timestamp", "received_at"}

func setupErrorRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(countErrorsQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(listErrorsQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(getErrorQuery))
}

func newMockedRepo(t *testing.T, maxEntries int) (*ErrorRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupErrorRepositoryMocks(mock)

	repo, err := NewErrorRepository(db, maxEntries)
	require.NoError(t, err)
	return repo, mock, db
}

func TestNewErrorRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 10)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_list_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(countErrorsQuery))
		mock.ExpectPrepare(regexp.QuoteMeta(listErrorsQuery)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewErrorRepository(db, 10)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare list statement")
	})
}

func TestErrorRepository_Append(t *testing.T) {
	received := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	stack := "at foo()"
	entry := &domain.ErrorEntry{
		ID:         "err_1",
		Type:       "javascript",
		Severity:   "error",
		Message:    "boom",
		Stack:      &stack,
		Context:    map[string]any{"url": "/x", "userAgent": "ua"},
		Timestamp:  "2024-03-10T11:59:00Z",
		ReceivedAt: received,
	}

	t.Run("inserts_and_evicts", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 1000)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertErrorQuery)).
			WithArgs("err_1", "javascript", "error", "boom", "at foo()", sqlmock.AnyArg(), "2024-03-10T11:59:00Z",
				time.Date(2024, 3, 10, 11, 59, 0, 0, time.UTC), received).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta(evictErrorsQuery)).
			WithArgs(1000).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		require.NoError(t, repo.Append(context.Background(), entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls_back_on_duplicate_id", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 1000)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertErrorQuery)).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "error_logs_id_key"})
		mock.ExpectRollback()

		err := repo.Append(context.Background(), entry)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls_back_when_eviction_fails", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 5)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertErrorQuery)).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta(evictErrorsQuery)).WithArgs(5).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := repo.Append(context.Background(), entry)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to evict")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestErrorRepository_List(t *testing.T) {
	repo, mock, _ := newMockedRepo(t, 1000)
	received := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(countErrorsQuery)).
		WithArgs("api", from, nil).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(listErrorsQuery)).
		WithArgs("api", from, nil, 2, 2).
		WillReturnRows(sqlmock.NewRows(errorRowColumns).
			AddRow("err_3", "api", "warning", "late", nil, []byte(`{"url":"/a","userAgent":"ua"}`), "2024-03-09T00:00:00Z", received))

	page, err := repo.List(context.Background(), domain.ErrorFilter{Type: "api", From: from, Page: 2, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Errors, 1)
	assert.Equal(t, "err_3", page.Errors[0].ID)
	assert.Nil(t, page.Errors[0].Stack)
	assert.Equal(t, "/a", page.Errors[0].Context["url"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorRepository_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 1000)

		mock.ExpectQuery(regexp.QuoteMeta(getErrorQuery)).
			WithArgs("err_1").
			WillReturnRows(sqlmock.NewRows(errorRowColumns).
				AddRow("err_1", "manual", "info", "note", "trace", []byte(`{}`), "2024-03-09", time.Now()))

		entry, err := repo.GetByID(context.Background(), "err_1")
		require.NoError(t, err)
		require.NotNil(t, entry.Stack)
		assert.Equal(t, "trace", *entry.Stack)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 1000)

		mock.ExpectQuery(regexp.QuoteMeta(getErrorQuery)).
			WithArgs("err_x").
			WillReturnRows(sqlmock.NewRows(errorRowColumns))

		_, err := repo.GetByID(context.Background(), "err_x")
		assert.ErrorIs(t, err, domain.ErrErrorNotFound)
	})
}

func TestErrorRepository_Ping(t *testing.T) {
	t.Run("empty_table", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 10)
		mock.ExpectQuery(regexp.QuoteMeta(pingErrorsQuery)).WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		assert.NoError(t, repo.Ping(context.Background()))
	})

	t.Run("missing_table", func(t *testing.T) {
		repo, mock, _ := newMockedRepo(t, 10)
		mock.ExpectQuery(regexp.QuoteMeta(pingErrorsQuery)).WillReturnError(&pq.Error{Code: "42P01"})

		err := repo.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error_logs table is missing")
	})
}

func TestEnsureErrorSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(errorLogSchema)).WillReturnResult(driver.ResultNoRows)
	require.NoError(t, EnsureErrorSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
