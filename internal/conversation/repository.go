package conversation

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists conversation state in Postgres so the state
// machine survives process restarts and horizontal scaling.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the conversation for a phone, defaulting to IDLE when no
// row exists yet. The row itself is created lazily by Set.
func (r *Repository) Get(ctx context.Context, phone string) (*Conversation, error) {
	var c Conversation
	var reviewID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT phone, state, review_id, updated_at FROM conversations WHERE phone = $1`,
		phone,
	).Scan(&c.Phone, &c.State, &reviewID, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &Conversation{Phone: phone, State: StateIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	c.ReviewID = reviewID.String
	return &c, nil
}

// Set upserts the conversation state. reviewID may be empty when the
// state carries no in-flight item.
func (r *Repository) Set(ctx context.Context, phone string, state State, reviewID string) error {
	var ref sql.NullString
	if reviewID != "" {
		ref = sql.NullString{String: reviewID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (phone, state, review_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE
		SET state = EXCLUDED.state, review_id = EXCLUDED.review_id, updated_at = EXCLUDED.updated_at`,
		phone, state, ref, time.Now().UTC())
	return err
}
