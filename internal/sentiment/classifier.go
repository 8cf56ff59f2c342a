package sentiment

import (
	"strings"
)

// Label is the coarse sentiment bucket for a review.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

// Result carries the classification plus the heuristics that fired.
// Signals exist for audit and the digest, never for control flow.
type Result struct {
	Label   Label
	Score   float64 // bounded to [-1, 1]
	Signals []string
}

type keywordSignal struct {
	keyword string
	signal  string
}

// Keyword heuristics. They refine the score and the signal list but a
// review's bucket is decided by rating alone: >= 4 stars is positive,
// <= 3 is negative. That 3/4 boundary is a product rule, not a tunable.
// Ordered slices keep the emitted signal list deterministic.
var (
	negativeKeywords = []keywordSignal{
		{"terrible", "strong_negative_language"},
		{"horrible", "strong_negative_language"},
		{"disgust", "strong_negative_language"},
		{"worst", "strong_negative_language"},
		{"rude", "service_complaint"},
		{"slow", "service_complaint"},
		{"waited", "service_complaint"},
		{"cold", "food_quality"},
		{"raw", "food_quality"},
		{"undercook", "food_quality"},
		{"stale", "food_quality"},
		{"sick", "health_concern"},
		{"poison", "health_concern"},
		{"dirty", "hygiene_concern"},
		{"hair", "hygiene_concern"},
		{"refund", "refund_request"},
		{"overpric", "price_complaint"},
		{"never again", "lost_customer"},
	}

	positiveKeywords = []keywordSignal{
		{"amazing", "strong_positive_language"},
		{"excellent", "strong_positive_language"},
		{"incredible", "strong_positive_language"},
		{"best", "strong_positive_language"},
		{"delicious", "food_praise"},
		{"fresh", "food_praise"},
		{"friendly", "service_praise"},
		{"attentive", "service_praise"},
		{"recommend", "recommendation"},
		{"come back", "returning_customer"},
		{"will return", "returning_customer"},
	}
)

// Classify maps a rating and review text to a sentiment. It is pure and
// deterministic: no I/O, no randomness, same inputs same output.
func Classify(rating int, text string) Result {
	res := Result{}

	// Base score from the star rating, centered on the 3/4 boundary.
	if rating >= 4 {
		res.Label = Positive
		res.Score = 0.3 + 0.2*float64(rating-4) // 4 -> 0.3, 5 -> 0.5
	} else {
		res.Label = Negative
		res.Score = -0.3 - 0.2*float64(3-rating) // 3 -> -0.3, 1 -> -0.7
	}

	lower := strings.ToLower(text)
	for _, ks := range negativeKeywords {
		if strings.Contains(lower, ks.keyword) {
			res.Score -= 0.1
			res.Signals = append(res.Signals, ks.signal)
		}
	}
	for _, ks := range positiveKeywords {
		if strings.Contains(lower, ks.keyword) {
			res.Score += 0.1
			res.Signals = append(res.Signals, ks.signal)
		}
	}

	if res.Score > 1 {
		res.Score = 1
	}
	if res.Score < -1 {
		res.Score = -1
	}
	return res
}
