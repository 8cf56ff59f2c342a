package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/pkg/monitoring"
)

// Sender delivers the owner-facing payment-failure SMS.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Accounts is the account surface the synchronizer mutates.
type Accounts interface {
	GetByStripeCustomer(ctx context.Context, customerID string) (*account.Account, error)
	UpdateSubscription(ctx context.Context, tx *sql.Tx, id string, state account.SubscriptionState, paused bool) error
	LinkStripe(ctx context.Context, tx *sql.Tx, id, customerID, subscriptionID string) error
}

// eventLog runs apply inside one transaction guarded by the event-id
// dedup insert. apply is never called for an already seen event.
type eventLog interface {
	processOnce(ctx context.Context, eventID, eventType string, apply func(tx *sql.Tx) error) (bool, error)
}

// Synchronizer applies billing lifecycle events to local account state.
// Event dedup and the account mutation share one transaction, so a
// crash between them cannot record an event whose effect never landed.
type Synchronizer struct {
	events   eventLog
	accounts Accounts
	sender   Sender // optional
}

func NewSynchronizer(db *sql.DB, accounts Accounts, sender Sender) *Synchronizer {
	return &Synchronizer{events: &sqlEventLog{db: db}, accounts: accounts, sender: sender}
}

type sqlEventLog struct {
	db *sql.DB
}

func (l *sqlEventLog) processOnce(ctx context.Context, eventID, eventType string, apply func(tx *sql.Tx) error) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO billing_events (event_id, event_type, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record billing event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, nil
	}

	if err := apply(tx); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit billing event: %w", err)
	}
	return true, nil
}

// SubscriptionStateFor maps the provider's subscription status onto our
// local state and the monitoring gate. Unknown statuses map to past_due
// with monitoring paused, the conservative side for billing.
func SubscriptionStateFor(providerStatus string) (account.SubscriptionState, bool) {
	switch providerStatus {
	case "trialing":
		return account.SubscriptionTrialing, false
	case "active":
		return account.SubscriptionActive, false
	case "canceled", "unpaid", "incomplete_expired":
		return account.SubscriptionCanceled, true
	default:
		return account.SubscriptionPastDue, true
	}
}

// Process applies one verified webhook event. Redelivery of an already
// seen event id is a no-op.
func (s *Synchronizer) Process(ctx context.Context, payload []byte) error {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("malformed billing event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return errors.New("billing event missing id or type")
	}

	var notify func()
	applied, err := s.events.processOnce(ctx, event.ID, event.Type, func(tx *sql.Tx) error {
		n, err := s.apply(ctx, tx, &event)
		notify = n
		return err
	})
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("billing event %s already processed (idempotent skip)", event.ID)
		return nil
	}

	monitoring.BillingEvents.WithLabelValues(event.Type).Inc()
	if notify != nil {
		// SMS only after the state change is durable; a failed send is
		// logged, not retried, since the next invoice event will nudge
		// the owner again.
		notify()
	}
	return nil
}

// apply mutates account state inside tx and returns an optional
// post-commit notification.
func (s *Synchronizer) apply(ctx context.Context, tx *sql.Tx, event *Event) (func(), error) {
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub Subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("malformed subscription object: %w", err)
		}
		acct, err := s.accounts.GetByStripeCustomer(ctx, sub.Customer)
		if err != nil {
			return nil, fmt.Errorf("no account for customer %s: %w", sub.Customer, err)
		}
		state, paused := SubscriptionStateFor(sub.Status)
		return nil, s.accounts.UpdateSubscription(ctx, tx, acct.ID, state, paused)

	case EventSubscriptionDeleted:
		var sub Subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("malformed subscription object: %w", err)
		}
		acct, err := s.accounts.GetByStripeCustomer(ctx, sub.Customer)
		if err != nil {
			return nil, fmt.Errorf("no account for customer %s: %w", sub.Customer, err)
		}
		return nil, s.accounts.UpdateSubscription(ctx, tx, acct.ID, account.SubscriptionCanceled, true)

	case EventPaymentSucceeded:
		var inv Invoice
		if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("malformed invoice object: %w", err)
		}
		acct, err := s.accounts.GetByStripeCustomer(ctx, inv.Customer)
		if err != nil {
			return nil, fmt.Errorf("no account for customer %s: %w", inv.Customer, err)
		}
		// Only a recovery from past_due changes anything; routine
		// renewals are already active.
		if acct.SubscriptionState != account.SubscriptionPastDue {
			return nil, nil
		}
		return nil, s.accounts.UpdateSubscription(ctx, tx, acct.ID, account.SubscriptionActive, false)

	case EventPaymentFailed:
		var inv Invoice
		if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("malformed invoice object: %w", err)
		}
		acct, err := s.accounts.GetByStripeCustomer(ctx, inv.Customer)
		if err != nil {
			return nil, fmt.Errorf("no account for customer %s: %w", inv.Customer, err)
		}
		if err := s.accounts.UpdateSubscription(ctx, tx, acct.ID, account.SubscriptionPastDue, true); err != nil {
			return nil, err
		}
		return s.paymentFailedNotice(acct), nil

	case EventCheckoutCompleted:
		var sess CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &sess); err != nil {
			return nil, fmt.Errorf("malformed checkout session: %w", err)
		}
		if sess.ClientReferenceID == "" {
			log.Printf("checkout %s has no client reference, ignoring", event.ID)
			return nil, nil
		}
		return nil, s.accounts.LinkStripe(ctx, tx, sess.ClientReferenceID, sess.Customer, sess.Subscription)

	default:
		log.Printf("ignoring billing event type %s", event.Type)
		return nil, nil
	}
}

func (s *Synchronizer) paymentFailedNotice(acct *account.Account) func() {
	if s.sender == nil || acct.SMSOptOut || acct.OwnerPhone == "" {
		return nil
	}
	return func() {
		body := "Your ReplyPilot payment didn't go through, so review monitoring is paused. Text BILLING to update your card."
		if _, err := s.sender.Send(context.Background(), acct.OwnerPhone, body); err != nil {
			monitoring.SMSFailed.WithLabelValues("billing").Inc()
			log.Printf("failed to send payment-failure notice to account %s: %v", acct.ID, err)
			return
		}
		monitoring.SMSSent.WithLabelValues("billing").Inc()
	}
}
