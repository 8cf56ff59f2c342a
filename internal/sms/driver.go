package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Driver sends one SMS and returns the provider message id. A non-nil
// error means the message was not accepted; the caller decides whether
// to record a retry attempt.
type Driver interface {
	Send(ctx context.Context, to, body string) (sid string, err error)
}

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioDriver posts messages to the Twilio REST API. The status
// callback URL lets Twilio report delivery progress to our
// delivery-status webhook.
type TwilioDriver struct {
	accountSID  string
	authToken   string
	fromNumber  string
	callbackURL string
	baseURL     string
	client      *http.Client
}

func NewTwilioDriver(accountSID, authToken, fromNumber, callbackURL string) *TwilioDriver {
	return &TwilioDriver{
		accountSID:  accountSID,
		authToken:   authToken,
		fromNumber:  fromNumber,
		callbackURL: callbackURL,
		baseURL:     twilioBaseURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"` // error detail on 4xx
}

func (d *TwilioDriver) Send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", d.fromNumber)
	form.Set("Body", body)
	if d.callbackURL != "" {
		form.Set("StatusCallback", d.callbackURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", d.baseURL, d.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.accountSID, d.authToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, parsed.Message)
	}
	if parsed.SID == "" {
		return "", fmt.Errorf("twilio accepted message without a sid")
	}
	return parsed.SID, nil
}
