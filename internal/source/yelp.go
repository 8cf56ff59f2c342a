package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/replypilot/replypilot/internal/review"
)

const yelpBaseURL = "https://api.yelp.com/v3"

// YelpAdapter reads reviews from the Yelp Fusion API.
type YelpAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewYelpAdapter(apiKey string) *YelpAdapter {
	return &YelpAdapter{
		apiKey:  apiKey,
		baseURL: yelpBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (y *YelpAdapter) Platform() review.Platform {
	return review.PlatformYelp
}

type yelpReviewsResponse struct {
	Reviews []struct {
		ID          string `json:"id"`
		Rating      int    `json:"rating"`
		Text        string `json:"text"`
		TimeCreated string `json:"time_created"` // "2006-01-02 15:04:05"
		URL         string `json:"url"`
		User        struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"reviews"`
}

func (y *YelpAdapter) FetchReviews(ctx context.Context, businessID string, since time.Time) ([]RawReview, error) {
	endpoint := fmt.Sprintf("%s/businesses/%s/reviews?sort_by=newest", y.baseURL, businessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build yelp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+y.apiKey)

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yelp request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("yelp returned status %d: %w", resp.StatusCode, ErrUnauthorized)
	default:
		return nil, fmt.Errorf("yelp returned status %d", resp.StatusCode)
	}

	var parsed yelpReviewsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode yelp response: %w", err)
	}

	var out []RawReview
	for _, yr := range parsed.Reviews {
		reviewedAt, err := time.Parse("2006-01-02 15:04:05", yr.TimeCreated)
		if err != nil {
			// Yelp has shipped RFC3339 on some endpoints; try it before
			// giving up on the row.
			reviewedAt, err = time.Parse(time.RFC3339, yr.TimeCreated)
			if err != nil {
				continue
			}
		}
		reviewedAt = reviewedAt.UTC()
		if !since.IsZero() && !reviewedAt.After(since) {
			continue
		}
		meta, _ := json.Marshal(map[string]string{"url": yr.URL})
		out = append(out, RawReview{
			PlatformReviewID: yr.ID,
			Author:           yr.User.Name,
			Rating:           yr.Rating,
			Text:             yr.Text,
			ReviewedAt:       reviewedAt,
			Metadata:         meta,
		})
	}
	return out, nil
}
