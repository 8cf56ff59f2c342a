package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/replypilot/replypilot/internal/account"
)

const defaultStripeBaseURL = "https://api.stripe.com/v1"

// StripeClient covers the two provider calls reachable from the SMS
// flow: cancel at period end and (via checkout, out of band) nothing
// else. The full provider surface stays behind the webhook.
type StripeClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{
		apiKey:  apiKey,
		baseURL: defaultStripeBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// CancelAtPeriodEnd flags the subscription to lapse at the end of the
// current billing period rather than cutting the owner off mid-cycle.
func (c *StripeClient) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return errors.New("account has no subscription to cancel")
	}

	form := url.Values{"cancel_at_period_end": {"true"}}
	endpoint := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("subscription update request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("subscription update returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Portal builds short-lived signed links into the billing portal page.
// The portal service validates the token with the shared secret.
type Portal struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
}

func NewPortal(baseURL, secret string) *Portal {
	return &Portal{baseURL: baseURL, secret: []byte(secret), ttl: 24 * time.Hour}
}

func (p *Portal) Link(accountID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign portal token: %w", err)
	}
	return p.baseURL + "?token=" + url.QueryEscape(signed), nil
}

// Biller bundles the billing operations the conversation engine needs.
type Biller struct {
	portal *Portal
	stripe *StripeClient
}

func NewBiller(portal *Portal, stripe *StripeClient) *Biller {
	return &Biller{portal: portal, stripe: stripe}
}

func (b *Biller) PortalLink(accountID string) (string, error) {
	return b.portal.Link(accountID)
}

func (b *Biller) CancelSubscription(ctx context.Context, acct *account.Account) error {
	return b.stripe.CancelAtPeriodEnd(ctx, acct.StripeSubscriptionID)
}
