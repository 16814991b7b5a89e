package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bff-proxy/internal/domain"
)

const errorLogSchema = `
	CREATE TABLE IF NOT EXISTS error_logs (
		seq         BIGSERIAL PRIMARY KEY,
		id          TEXT NOT NULL,
		type        TEXT NOT NULL,
		severity    TEXT NOT NULL,
		message     TEXT NOT NULL,
		stack       TEXT,
		context     JSONB NOT NULL DEFAULT '{}'::jsonb,
		timestamp   TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT error_logs_id_key UNIQUE (id)
	);
	CREATE INDEX IF NOT EXISTS idx_error_logs_occurred_at ON error_logs (occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_error_logs_type ON error_logs (type);
`

const (
	insertErrorQuery = `
		INSERT INTO error_logs (id, type, severity, message, stack, context, timestamp, occurred_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	// keeps the newest $1 rows by insertion order
	evictErrorsQuery = `
		DELETE FROM error_logs
		WHERE seq <= (SELECT seq FROM error_logs ORDER BY seq DESC OFFSET $1 LIMIT 1)
	`

	countErrorsQuery = `
		SELECT COUNT(*) FROM error_logs
		WHERE ($1 = '' OR type = $1)
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at <= $3)
	`

	listErrorsQuery = `
		SELECT id, type, severity, message, stack, context, timestamp, received_at
		FROM error_logs
		WHERE ($1 = '' OR type = $1)
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at <= $3)
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $4 OFFSET $5
	`

	getErrorQuery = `
		SELECT id, type, severity, message, stack, context, timestamp, received_at
		FROM error_logs
		WHERE id = $1
	`

	pingErrorsQuery = `SELECT 1 FROM error_logs LIMIT 1`
)

// EnsureErrorSchema creates the error_logs table when it does not exist.
func EnsureErrorSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, errorLogSchema); err != nil {
		return fmt.Errorf("failed to create error log schema: %w", err)
	}
	return nil
}

type ErrorRepository struct {
	db         *sql.DB
	maxEntries int
	countStmt  *sql.Stmt
	listStmt   *sql.Stmt
	getStmt    *sql.Stmt
}

// NewErrorRepository creates a new ErrorRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewErrorRepository(db *sql.DB, maxEntries int) (*ErrorRepository, error) {
	repo := &ErrorRepository{db: db, maxEntries: maxEntries}

	var err error
	repo.countStmt, err = db.Prepare(countErrorsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare count statement: %w", err)
	}

	repo.listStmt, err = db.Prepare(listErrorsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare list statement: %w", err)
	}

	repo.getStmt, err = db.Prepare(getErrorQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	return repo, nil
}

// Append inserts the entry and evicts the oldest rows beyond the cap in one
// transaction.
func (r *ErrorRepository) Append(ctx context.Context, entry *domain.ErrorEntry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("failed to encode error context: %w", err)
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertErrorQuery,
			entry.ID,
			entry.Type,
			entry.Severity,
			entry.Message,
			nullString(entry.Stack),
			contextJSON,
			entry.Timestamp,
			entry.OccurredAt(),
			entry.ReceivedAt,
		)
		if IsUniqueViolation(err, "error_logs_id_key") {
			return fmt.Errorf("error entry %s already exists: %w", entry.ID, err)
		}
		if err != nil {
			return fmt.Errorf("failed to insert error entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, evictErrorsQuery, r.maxEntries); err != nil {
			return fmt.Errorf("failed to evict old error entries: %w", err)
		}
		return nil
	})
}

func (r *ErrorRepository) List(ctx context.Context, filter domain.ErrorFilter) (*domain.ErrorPage, error) {
	filter = filter.Normalize()
	from, to := nullTime(filter.From), nullTime(filter.To)

	page := &domain.ErrorPage{
		Errors:   []*domain.ErrorEntry{},
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	if err := r.countStmt.QueryRowContext(ctx, filter.Type, from, to).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count error entries: %w", err)
	}

	rows, err := r.listStmt.QueryContext(ctx, filter.Type, from, to, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list error entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanErrorEntry(rows)
		if err != nil {
			return nil, err
		}
		page.Errors = append(page.Errors, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate error entries: %w", err)
	}

	return page, nil
}

func (r *ErrorRepository) GetByID(ctx context.Context, id string) (*domain.ErrorEntry, error) {
	entry, err := scanErrorEntry(r.getStmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *ErrorRepository) Ping(ctx context.Context) error {
	var one int
	err := r.db.QueryRowContext(ctx, pingErrorsQuery).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if IsUndefinedTable(err) {
		return fmt.Errorf("error_logs table is missing: %w", err)
	}
	return err
}

func (r *ErrorRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanErrorEntry(row rowScanner) (*domain.ErrorEntry, error) {
	var (
		entry       domain.ErrorEntry
		stack       sql.NullString
		contextJSON []byte
	)
	err := row.Scan(
		&entry.ID,
		&entry.Type,
		&entry.Severity,
		&entry.Message,
		&stack,
		&contextJSON,
		&entry.Timestamp,
		&entry.ReceivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan error entry: %w", err)
	}

	if stack.Valid {
		entry.Stack = &stack.String
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
			return nil, fmt.Errorf("failed to decode error context: %w", err)
		}
	}
	entry.ReceivedAt = entry.ReceivedAt.UTC()
	return &entry, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
