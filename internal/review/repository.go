package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicate reports that the (platform, platform_review_id) key
	// already exists; the caller counts it and moves on.
	ErrDuplicate = errors.New("review already ingested")

	ErrNotFound = errors.New("review not found")
)

// Repository handles database operations for reviews and reply drafts.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateWithDraft inserts a review and its reply draft in one
// transaction. Either both rows commit or neither does; a generator
// failure upstream must never surface here as a review without a draft.
// Dedup rides on the unique index: a conflicting insert affects zero
// rows and the whole unit rolls back with ErrDuplicate.
func (r *Repository) CreateWithDraft(ctx context.Context, rev *Review, draft *ReplyDraft) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rev.ID = uuid.New().String()
	rev.CreatedAt = now

	signals, err := json.Marshal(rev.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}
	metadata := rev.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reviews (id, account_id, platform, platform_review_id, author,
			rating, text, reviewed_at, sentiment, sentiment_score, signals, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (platform, platform_review_id) DO NOTHING`,
		rev.ID, rev.AccountID, rev.Platform, rev.PlatformReviewID, rev.Author,
		rev.Rating, rev.Text, rev.ReviewedAt, rev.Sentiment, rev.SentimentScore,
		signals, metadata, rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}

	draft.ID = uuid.New().String()
	draft.ReviewID = rev.ID
	draft.Status = DraftPending
	draft.CreatedAt = now
	draft.UpdatedAt = now

	reasons, err := json.Marshal(draft.EscalationReasons)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation reasons: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reply_drafts (id, review_id, draft_text, final_text, status,
			escalation, escalation_reasons, confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		draft.ID, draft.ReviewID, draft.DraftText, draft.FinalText, draft.Status,
		draft.Escalation, reasons, draft.Confidence, draft.CreatedAt, draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reply draft: %w", err)
	}

	return tx.Commit()
}

// LatestReviewedAt returns the newest review timestamp for an
// (account, platform) pair, used as the poll cursor. Computing it from
// the table rather than a stored pointer lets a skipped cycle self-heal.
func (r *Repository) LatestReviewedAt(ctx context.Context, accountID string, platform Platform) (time.Time, error) {
	var ts sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(reviewed_at) FROM reviews WHERE account_id = $1 AND platform = $2`,
		accountID, platform,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}

// GetByID retrieves a review by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Review, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, platform, platform_review_id, author, rating, text,
			reviewed_at, sentiment, sentiment_score, signals, metadata, created_at
		FROM reviews WHERE id = $1`, id)
	return scanReview(row)
}

func scanReview(row *sql.Row) (*Review, error) {
	var rev Review
	var signals []byte
	err := row.Scan(
		&rev.ID, &rev.AccountID, &rev.Platform, &rev.PlatformReviewID, &rev.Author,
		&rev.Rating, &rev.Text, &rev.ReviewedAt, &rev.Sentiment, &rev.SentimentScore,
		&signals, &rev.Metadata, &rev.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &rev.Signals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signals: %w", err)
		}
	}
	return &rev, nil
}

// GetDraftByReviewID retrieves the draft attached to a review.
func (r *Repository) GetDraftByReviewID(ctx context.Context, reviewID string) (*ReplyDraft, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, review_id, draft_text, final_text, status, escalation,
			escalation_reasons, confidence, created_at, updated_at
		FROM reply_drafts WHERE review_id = $1`, reviewID)

	var d ReplyDraft
	var reasons []byte
	err := row.Scan(
		&d.ID, &d.ReviewID, &d.DraftText, &d.FinalText, &d.Status, &d.Escalation,
		&reasons, &d.Confidence, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &d.EscalationReasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal escalation reasons: %w", err)
		}
	}
	return &d, nil
}

// UpdateDraftStatus moves a draft through the approval protocol.
// finalText carries the approved or owner-edited reply body and may be
// empty for skipped drafts.
func (r *Repository) UpdateDraftStatus(ctx context.Context, draftID string, status DraftStatus, finalText string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reply_drafts SET status = $1, final_text = $2, updated_at = $3 WHERE id = $4`,
		status, finalText, time.Now().UTC(), draftID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPendingDrafts reports how many drafts still await owner action
// for an account; used by the STATUS command.
func (r *Repository) CountPendingDrafts(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reply_drafts d
		JOIN reviews v ON v.id = d.review_id
		WHERE v.account_id = $1 AND d.status = 'pending'`, accountID,
	).Scan(&n)
	return n, err
}

// WindowStats aggregates reviews for a digest window.
type WindowStats struct {
	Total         int
	Positive      int
	Negative      int
	AverageRating float64
	Replied       int
}

// StatsForWindow aggregates an account's reviews between from
// (inclusive) and to (exclusive), for the weekly digest.
func (r *Repository) StatsForWindow(ctx context.Context, accountID string, from, to time.Time) (*WindowStats, error) {
	var s WindowStats
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE sentiment = 'positive'),
			COUNT(*) FILTER (WHERE sentiment = 'negative'),
			AVG(rating),
			COUNT(*) FILTER (WHERE d.status = 'posted')
		FROM reviews v
		LEFT JOIN reply_drafts d ON d.review_id = v.id
		WHERE v.account_id = $1 AND v.reviewed_at >= $2 AND v.reviewed_at < $3`,
		accountID, from, to,
	).Scan(&s.Total, &s.Positive, &s.Negative, &avg, &s.Replied)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		s.AverageRating = avg.Float64
	}
	return &s, nil
}
