package billing

import "encoding/json"

// Billing lifecycle event types the synchronizer reacts to. Everything
// else is acknowledged and ignored.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
	EventCheckoutCompleted   = "checkout.session.completed"
)

// Event is the provider's webhook envelope. ID is the idempotency key;
// redelivery of the same ID must be a no-op.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Subscription is the slice of the provider's subscription object the
// synchronizer reads.
type Subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// Invoice carries the customer reference off payment events.
type Invoice struct {
	Customer string `json:"customer"`
}

// CheckoutSession links a completed checkout back to our account via
// the client reference id set at session creation.
type CheckoutSession struct {
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
}
