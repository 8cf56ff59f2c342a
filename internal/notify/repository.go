package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Repository persists notification attempts in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert records a failed or deferred delivery. One row per review; a
// redelivered queue message lands on the same row instead of forking a
// second retry chain.
func (r *Repository) Upsert(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_attempts
			(id, review_id, account_id, phone, attempts, next_retry_at, status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (review_id) DO UPDATE
		SET attempts = EXCLUDED.attempts,
		    next_retry_at = EXCLUDED.next_retry_at,
		    status = EXCLUDED.status,
		    last_error = EXCLUDED.last_error,
		    updated_at = EXCLUDED.updated_at`,
		a.ID, a.ReviewID, a.AccountID, a.Phone, a.Attempts, a.NextRetryAt, a.Status, a.LastError, now)
	return err
}

// ListDue returns pending attempts whose retry time has passed, oldest
// first, bounded so a long backlog drains across ticks.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]*Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, review_id, account_id, phone, attempts, next_retry_at, status, COALESCE(last_error, ''), created_at, updated_at
		FROM notification_attempts
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at ASC
		LIMIT $3`,
		AttemptPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.ReviewID, &a.AccountID, &a.Phone, &a.Attempts,
			&a.NextRetryAt, &a.Status, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// MarkDelivered closes out an attempt after a successful send.
func (r *Repository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_attempts
		SET status = $1, last_error = '', updated_at = $2
		WHERE id = $3`,
		AttemptDelivered, time.Now().UTC(), id)
	return err
}

// RecordFailure bumps the attempt counter and schedules the next retry.
func (r *Repository) RecordFailure(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_attempts
		SET attempts = $1, next_retry_at = $2, last_error = $3, updated_at = $4
		WHERE id = $5`,
		attempts, nextRetryAt, lastError, time.Now().UTC(), id)
	return err
}

// MarkPermanentFailure parks an attempt that exhausted its retries.
func (r *Repository) MarkPermanentFailure(ctx context.Context, id, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_attempts
		SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4`,
		AttemptPermanentFailure, lastError, time.Now().UTC(), id)
	return err
}
