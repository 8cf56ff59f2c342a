package billing

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/replypilot/replypilot/internal/account"
)

const testSecret = "whsec_test_secret"

func TestVerifySignature_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed"}`)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	header := SignPayload(payload, testSecret, now)

	if err := VerifySignature(payload, header, testSecret, DefaultSigTolerance, now); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
}

func TestVerifySignature_Rejects(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	good := SignPayload(payload, testSecret, now)

	tests := []struct {
		name    string
		payload []byte
		header  string
		now     time.Time
		want    error
	}{
		{"wrong secret", payload, SignPayload(payload, "whsec_other", now), now, ErrBadSignature},
		{"tampered payload", []byte(`{"id":"evt_2"}`), good, now, ErrBadSignature},
		{"empty header", payload, "", now, ErrMalformedHeader},
		{"missing timestamp", payload, "v1=deadbeef", now, ErrMalformedHeader},
		{"missing signature", payload, "t=1760000000", now, ErrMalformedHeader},
		{"garbage header", payload, "not a header", now, ErrMalformedHeader},
		{"replayed old payload", payload, good, now.Add(10 * time.Minute), ErrStaleSignature},
		{"timestamp from the future", payload, good, now.Add(-10 * time.Minute), ErrStaleSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.payload, tt.header, testSecret, DefaultSigTolerance, tt.now)
			if !errors.Is(err, tt.want) {
				t.Errorf("VerifySignature = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifySignature_AcceptsAnyMatchingCandidate(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	good := SignPayload(payload, testSecret, now)

	// Key rotation sends multiple v1 entries; one valid one passes.
	header := strings.Replace(good, "v1=", "v1=0000,v1=", 1)
	if err := VerifySignature(payload, header, testSecret, DefaultSigTolerance, now); err != nil {
		t.Errorf("VerifySignature with rotated keys = %v", err)
	}
}

func TestSubscriptionStateFor(t *testing.T) {
	tests := []struct {
		status     string
		wantState  account.SubscriptionState
		wantPaused bool
	}{
		{"trialing", account.SubscriptionTrialing, false},
		{"active", account.SubscriptionActive, false},
		{"past_due", account.SubscriptionPastDue, true},
		{"canceled", account.SubscriptionCanceled, true},
		{"unpaid", account.SubscriptionCanceled, true},
		{"incomplete_expired", account.SubscriptionCanceled, true},
		{"some_future_status", account.SubscriptionPastDue, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			state, paused := SubscriptionStateFor(tt.status)
			if state != tt.wantState || paused != tt.wantPaused {
				t.Errorf("SubscriptionStateFor(%q) = (%s, %t), want (%s, %t)",
					tt.status, state, paused, tt.wantState, tt.wantPaused)
			}
		})
	}
}

func TestPortalLink(t *testing.T) {
	portal := NewPortal("https://billing.replypilot.io/portal", "portal-secret")
	link, err := portal.Link("acct_1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(link, "https://billing.replypilot.io/portal?token=") {
		t.Errorf("link = %q", link)
	}
	// Token must be non-empty and three dot-separated JWT segments.
	token := strings.TrimPrefix(link, "https://billing.replypilot.io/portal?token=")
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("token %q is not a JWT", token)
	}
}
