package reply

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/review"
	"github.com/replypilot/replypilot/internal/sentiment"
)

// Fallback reply templates keyed by sentiment. Bland on purpose: a
// template draft exists so the approval flow is never blocked when the
// model is down, and the owner can always EDIT it.
var draftTemplates = map[sentiment.Label]string{
	sentiment.Positive: `Thank you so much for the kind words{{if .Author}}, {{.Author}}{{end}}! We're thrilled you enjoyed your visit to {{.Restaurant}} and hope to see you again soon.`,
	sentiment.Negative: `{{if .Author}}{{.Author}}, thank{{else}}Thank{{end}} you for taking the time to share this. We're sorry your experience at {{.Restaurant}} fell short, and we'd like to make it right. Please reach out to us directly so we can follow up.`,
	sentiment.Neutral:  `Thank you for your feedback{{if .Author}}, {{.Author}}{{end}}. We appreciate you visiting {{.Restaurant}} and will share your comments with our team.`,
}

// TemplateGenerator renders a sentiment-keyed fallback draft. It never
// fails for valid sentiment labels, which is what makes it safe as the
// ingestion fallback.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(_ context.Context, rev *review.Review, acct *account.Account) (*Draft, error) {
	tmplText, ok := draftTemplates[sentiment.Label(rev.Sentiment)]
	if !ok {
		tmplText = draftTemplates[sentiment.Neutral]
	}

	tmpl, err := template.New("draft").Parse(tmplText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse draft template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]string{
		"Author":     rev.Author,
		"Restaurant": acct.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render draft template: %w", err)
	}

	reasons := ScanEscalations(rev.Text)
	return &Draft{
		Text:              buf.String(),
		Escalation:        len(reasons) > 0,
		EscalationReasons: reasons,
		Confidence:        0.2,
	}, nil
}
