package notify

import "time"

// AttemptStatus tracks a notification through the retry pipeline.
type AttemptStatus string

const (
	AttemptPending          AttemptStatus = "pending"
	AttemptDelivered        AttemptStatus = "delivered"
	AttemptPermanentFailure AttemptStatus = "permanent_failure"
)

// Attempt is one review alert's delivery record. A row is created the
// first time delivery does not succeed immediately and is re-offered by
// the retry scheduler until it delivers or exhausts its attempts.
type Attempt struct {
	ID          string        `json:"id"`
	ReviewID    string        `json:"review_id"`
	AccountID   string        `json:"account_id"`
	Phone       string        `json:"phone"`
	Attempts    int           `json:"attempts"`
	NextRetryAt time.Time     `json:"next_retry_at"`
	Status      AttemptStatus `json:"status"`
	LastError   string        `json:"last_error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// AlertTask is the queue payload that asks for a review alert to be
// delivered. Published by the ingestion coordinator, consumed here.
type AlertTask struct {
	ReviewID string `json:"review_id"`
}
