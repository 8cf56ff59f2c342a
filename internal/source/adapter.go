package source

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/replypilot/replypilot/internal/review"
)

// ErrUnauthorized marks a revoked grant or invalid API key. The
// coordinator skips the platform and flags it for manual re-auth
// instead of retrying forever.
var ErrUnauthorized = errors.New("platform credentials rejected")

// RawReview is a platform review normalized to the ingestion shape.
type RawReview struct {
	PlatformReviewID string
	Author           string
	Rating           int
	Text             string
	ReviewedAt       time.Time
	Metadata         json.RawMessage
}

// Adapter fetches reviews for one platform location. Implementations
// must be safe to call repeatedly with the same since value; dedup is
// the caller's job, so returning already-seen reviews is fine.
type Adapter interface {
	Platform() review.Platform
	FetchReviews(ctx context.Context, locationID string, since time.Time) ([]RawReview, error)
}

// TokenProvider yields a usable OAuth access token. The authorization
// code exchange lives outside this service; only its output is consumed.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider for a pre-issued token, used when the
// refresh flow runs in a separate process that rotates the value.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrUnauthorized
	}
	return string(t), nil
}
