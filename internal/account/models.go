package account

import (
	"time"
)

// SubscriptionState mirrors the billing provider's subscription status.
type SubscriptionState string

const (
	SubscriptionTrialing SubscriptionState = "trialing"
	SubscriptionActive   SubscriptionState = "active"
	SubscriptionPastDue  SubscriptionState = "past_due"
	SubscriptionCanceled SubscriptionState = "canceled"
)

// Account is one restaurant tenant under monitoring. Owner interaction
// happens over the phone number; MonitoringPaused is the single gate the
// poll driver consults.
type Account struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	OwnerPhone           string            `json:"owner_phone"` // E.164
	OwnerEmail           string            `json:"owner_email"`
	Timezone             string            `json:"timezone"`
	MonitoringPaused     bool              `json:"monitoring_paused"`
	SMSOptOut            bool              `json:"sms_opt_out"`
	SubscriptionState    SubscriptionState `json:"subscription_state"`
	StripeCustomerID     string            `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string            `json:"stripe_subscription_id,omitempty"`
	GooglePlaceID        string            `json:"google_place_id,omitempty"`
	YelpBusinessID       string            `json:"yelp_business_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// TimezoneOrUTC returns the account's timezone name, defaulting to UTC.
func (a *Account) TimezoneOrUTC() string {
	if a.Timezone == "" {
		return "UTC"
	}
	return a.Timezone
}
