package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/replypilot/replypilot/internal/review"
)

const googlePlacesBaseURL = "https://maps.googleapis.com/maps/api/place"

// GoogleAdapter reads reviews from the Places Details API. Places only
// exposes the most recent handful of reviews per location, which is
// plenty for a polling cadence of minutes.
type GoogleAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGoogleAdapter(apiKey string) *GoogleAdapter {
	return &GoogleAdapter{
		apiKey:  apiKey,
		baseURL: googlePlacesBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *GoogleAdapter) Platform() review.Platform {
	return review.PlatformGoogle
}

type googleDetailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Reviews []googleReview `json:"reviews"`
	} `json:"result"`
}

type googleReview struct {
	AuthorName string `json:"author_name"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
	Time       int64  `json:"time"` // unix seconds
	Language   string `json:"language"`
}

func (g *GoogleAdapter) FetchReviews(ctx context.Context, placeID string, since time.Time) ([]RawReview, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", "reviews")
	q.Set("reviews_sort", "newest")
	q.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/details/json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build places request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places returned status %d", resp.StatusCode)
	}

	var parsed googleDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode places response: %w", err)
	}

	switch parsed.Status {
	case "OK", "ZERO_RESULTS":
	case "REQUEST_DENIED", "INVALID_REQUEST":
		return nil, fmt.Errorf("places status %s: %w", parsed.Status, ErrUnauthorized)
	default:
		return nil, fmt.Errorf("places status %s", parsed.Status)
	}

	var out []RawReview
	for _, gr := range parsed.Result.Reviews {
		reviewedAt := time.Unix(gr.Time, 0).UTC()
		if !since.IsZero() && !reviewedAt.After(since) {
			continue
		}
		meta, _ := json.Marshal(map[string]string{"language": gr.Language})
		out = append(out, RawReview{
			// Places has no stable review id; the author plus the unix
			// timestamp is unique per location in practice.
			PlatformReviewID: fmt.Sprintf("%s:%s:%d", placeID, gr.AuthorName, gr.Time),
			Author:           gr.AuthorName,
			Rating:           gr.Rating,
			Text:             gr.Text,
			ReviewedAt:       reviewedAt,
			Metadata:         meta,
		})
	}
	return out, nil
}
