package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/replypilot/replypilot/internal/review"
)

const mybusinessBaseURL = "https://mybusiness.googleapis.com/v4"

// ReplyPoster publishes approved replies back to the platforms. Google
// exposes a review reply endpoint behind the Business Profile OAuth
// grant; Yelp has no public write API, so approved Yelp replies are
// logged for the owner to paste manually.
type ReplyPoster struct {
	tokens  TokenProvider
	baseURL string
	client  *http.Client
}

func NewReplyPoster(tokens TokenProvider) *ReplyPoster {
	return &ReplyPoster{
		tokens:  tokens,
		baseURL: mybusinessBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// PostReply pushes the final reply text for a review to its platform.
func (p *ReplyPoster) PostReply(ctx context.Context, rev *review.Review, text string) error {
	switch rev.Platform {
	case review.PlatformGoogle:
		return p.postGoogleReply(ctx, rev, text)
	case review.PlatformYelp:
		log.Printf("Yelp has no reply API; reply for review %s requires manual posting", rev.ID)
		return nil
	default:
		return fmt.Errorf("unknown platform %s", rev.Platform)
	}
}

// reviewName extracts the Business Profile review resource name stored
// at ingestion time; without it the reply cannot be routed.
func reviewName(rev *review.Review) (string, error) {
	var meta struct {
		ReviewName string `json:"review_name"`
	}
	if len(rev.Metadata) > 0 {
		if err := json.Unmarshal(rev.Metadata, &meta); err != nil {
			return "", fmt.Errorf("failed to unmarshal review metadata: %w", err)
		}
	}
	if meta.ReviewName == "" {
		return "", fmt.Errorf("review %s has no business profile resource name", rev.ID)
	}
	return meta.ReviewName, nil
}

func (p *ReplyPoster) postGoogleReply(ctx context.Context, rev *review.Review, text string) error {
	name, err := reviewName(rev)
	if err != nil {
		return err
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	body, err := json.Marshal(map[string]string{"comment": text})
	if err != nil {
		return fmt.Errorf("failed to marshal reply body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/reply", p.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("reply request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("reply rejected with status %d: %w", resp.StatusCode, ErrUnauthorized)
	default:
		return fmt.Errorf("reply returned status %d", resp.StatusCode)
	}
}
