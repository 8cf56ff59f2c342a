package reply

import (
	"context"
	"strings"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/review"
)

// Draft is a candidate reply awaiting owner disposition.
type Draft struct {
	Text              string
	Escalation        bool
	EscalationReasons []string
	Confidence        float64
}

// Generator produces a reply draft for a review. Implementations must
// honor ctx cancellation; the coordinator calls them with a bounded
// timeout and falls back to the template generator on error.
type Generator interface {
	Generate(ctx context.Context, rev *review.Review, acct *account.Account) (*Draft, error)
}

// Topics that always need extra owner attention before any reply goes
// out, whatever the model's own judgement said.
var escalationTopics = []struct {
	keyword string
	reason  string
}{
	{"sick", "health claim"},
	{"food poisoning", "health claim"},
	{"poison", "health claim"},
	{"allerg", "health claim"},
	{"lawyer", "legal threat"},
	{"sue", "legal threat"},
	{"suing", "legal threat"},
	{"lawsuit", "legal threat"},
	{"health department", "regulatory threat"},
	{"discriminat", "discrimination claim"},
	{"racist", "discrimination claim"},
	{"harass", "harassment claim"},
}

// ScanEscalations returns the sensitive-topic reasons present in text.
// Single-word keywords match at word starts only, so "sue" does not
// fire on "issue"; multi-word phrases match as substrings.
func ScanEscalations(text string) []string {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	var reasons []string
	seen := make(map[string]bool)
	for _, t := range escalationTopics {
		if seen[t.reason] || !matchTopic(lower, words, t.keyword) {
			continue
		}
		reasons = append(reasons, t.reason)
		seen[t.reason] = true
	}
	return reasons
}

func matchTopic(lower string, words []string, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(lower, keyword)
	}
	for _, w := range words {
		if strings.HasPrefix(w, keyword) {
			return true
		}
	}
	return false
}
