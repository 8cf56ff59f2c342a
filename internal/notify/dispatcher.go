package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/conversation"
	"github.com/replypilot/replypilot/internal/review"
	"github.com/replypilot/replypilot/internal/sms"
	"github.com/replypilot/replypilot/pkg/monitoring"
)

// Accounts is the account lookup the dispatcher needs.
type Accounts interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// Reviews loads the review and draft an alert describes.
type Reviews interface {
	GetByID(ctx context.Context, id string) (*review.Review, error)
	GetDraftByReviewID(ctx context.Context, reviewID string) (*review.ReplyDraft, error)
}

// Approvals is the conversation engine surface the dispatcher drives.
type Approvals interface {
	OpenApproval(ctx context.Context, phone, reviewID string) error
	ReleaseApproval(ctx context.Context, phone, reviewID string) error
}

// Sender delivers one SMS and returns the provider's message sid.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// AttemptStore is the retry bookkeeping behind failed deliveries.
type AttemptStore interface {
	Upsert(ctx context.Context, a *Attempt) error
	MarkDelivered(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error
	MarkPermanentFailure(ctx context.Context, id, lastError string) error
}

// MessageRecorder logs outbound sids for status-callback correlation.
type MessageRecorder interface {
	Record(ctx context.Context, sid, phone, direction, status, body string) error
}

// busyRetryDelay is how soon a busy conversation is probed again. The
// owner usually answers the open item within minutes.
const busyRetryDelay = 5 * time.Minute

// Dispatcher turns queued alert tasks into owner SMS notifications. One
// review alert at a time per phone; a busy conversation defers the task
// into the attempt table rather than double-texting.
type Dispatcher struct {
	accounts  Accounts
	reviews   Reviews
	approvals Approvals
	sender    Sender
	attempts  AttemptStore
	messages  MessageRecorder // optional
}

func NewDispatcher(accounts Accounts, reviews Reviews, approvals Approvals, sender Sender, attempts AttemptStore, messages MessageRecorder) *Dispatcher {
	return &Dispatcher{
		accounts:  accounts,
		reviews:   reviews,
		approvals: approvals,
		sender:    sender,
		attempts:  attempts,
		messages:  messages,
	}
}

// HandleTask processes one queued alert message. A returned error makes
// the broker redeliver; handled-but-deferred outcomes return nil since
// the attempt table owns their follow-up.
func (d *Dispatcher) HandleTask(ctx context.Context, payload []byte) error {
	var task AlertTask
	if err := json.Unmarshal(payload, &task); err != nil {
		log.Printf("dropping malformed alert task: %v", err)
		return nil
	}
	return d.Deliver(ctx, task.ReviewID)
}

// Deliver sends the approval alert for a review, or records a pending
// attempt for the retry scheduler when it cannot.
func (d *Dispatcher) Deliver(ctx context.Context, reviewID string) error {
	rev, err := d.reviews.GetByID(ctx, reviewID)
	if errors.Is(err, review.ErrNotFound) {
		log.Printf("alert task for unknown review %s, dropping", reviewID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load review %s: %w", reviewID, err)
	}

	acct, err := d.accounts.GetByID(ctx, rev.AccountID)
	if err != nil {
		return fmt.Errorf("failed to load account %s: %w", rev.AccountID, err)
	}
	if acct.SMSOptOut || acct.OwnerPhone == "" {
		log.Printf("account %s is opted out, skipping alert for review %s", acct.ID, reviewID)
		return nil
	}

	draft, err := d.reviews.GetDraftByReviewID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("failed to load draft for review %s: %w", reviewID, err)
	}

	err = d.sendAlert(ctx, rev, acct, draft)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStillBusy):
		return d.park(ctx, rev, acct, 0, "conversation busy")
	default:
		return d.park(ctx, rev, acct, 1, err.Error())
	}
}

// Redeliver retries a deferred alert. Conditions that changed since the
// first attempt (opt-out, handled draft, deleted review) drop the
// attempt instead of retrying forever.
func (d *Dispatcher) Redeliver(ctx context.Context, a *Attempt) error {
	rev, err := d.reviews.GetByID(ctx, a.ReviewID)
	if errors.Is(err, review.ErrNotFound) {
		return fmt.Errorf("%w: review %s no longer exists", ErrDropped, a.ReviewID)
	}
	if err != nil {
		return fmt.Errorf("failed to load review %s: %w", a.ReviewID, err)
	}

	acct, err := d.accounts.GetByID(ctx, rev.AccountID)
	if err != nil {
		return fmt.Errorf("failed to load account %s: %w", rev.AccountID, err)
	}
	if acct.SMSOptOut || acct.OwnerPhone == "" {
		return fmt.Errorf("%w: account %s is opted out", ErrDropped, acct.ID)
	}

	draft, err := d.reviews.GetDraftByReviewID(ctx, a.ReviewID)
	if err != nil {
		return fmt.Errorf("failed to load draft for review %s: %w", a.ReviewID, err)
	}
	if draft.Status != review.DraftPending {
		return fmt.Errorf("%w: draft already %s", ErrDropped, draft.Status)
	}

	return d.sendAlert(ctx, rev, acct, draft)
}

// sendAlert opens the approval conversation and sends the alert SMS.
// Returns ErrStillBusy when the phone has another open item; on a send
// failure the conversation is rolled back so the owner is not stuck
// waiting on a message that never arrived.
func (d *Dispatcher) sendAlert(ctx context.Context, rev *review.Review, acct *account.Account, draft *review.ReplyDraft) error {
	if err := d.approvals.OpenApproval(ctx, acct.OwnerPhone, rev.ID); err != nil {
		if errors.Is(err, conversation.ErrConversationBusy) {
			return ErrStillBusy
		}
		return fmt.Errorf("failed to open approval: %w", err)
	}

	body := ComposeAlert(acct, rev, draft)
	sid, err := d.sender.Send(ctx, acct.OwnerPhone, body)
	if err != nil {
		monitoring.SMSFailed.WithLabelValues("alert").Inc()
		if relErr := d.approvals.ReleaseApproval(ctx, acct.OwnerPhone, rev.ID); relErr != nil {
			log.Printf("failed to release approval for review %s: %v", rev.ID, relErr)
		}
		return err
	}

	monitoring.SMSSent.WithLabelValues("alert").Inc()
	if d.messages != nil {
		if err := d.messages.Record(ctx, sid, acct.OwnerPhone, sms.DirectionOutbound, "queued", body); err != nil {
			log.Printf("failed to record outbound message %s: %v", sid, err)
		}
	}
	return nil
}

// park parks the alert in the attempt table. attempts=0 means the
// send was never tried (busy conversation), so backoff starts short.
func (d *Dispatcher) park(ctx context.Context, rev *review.Review, acct *account.Account, attempts int, reason string) error {
	next := time.Now().UTC().Add(busyRetryDelay)
	if attempts > 0 {
		next = time.Now().UTC().Add(backoff(attempts))
	}
	err := d.attempts.Upsert(ctx, &Attempt{
		ReviewID:    rev.ID,
		AccountID:   acct.ID,
		Phone:       acct.OwnerPhone,
		Attempts:    attempts,
		NextRetryAt: next,
		Status:      AttemptPending,
		LastError:   reason,
	})
	if err != nil {
		return fmt.Errorf("failed to record notification attempt: %w", err)
	}
	log.Printf("alert for review %s deferred (%s), retry at %s", rev.ID, reason, next.Format(time.RFC3339))
	return nil
}

// maxExcerptLen bounds how much review text goes into the alert SMS.
const maxExcerptLen = 160

// ComposeAlert builds the owner-facing alert message.
func ComposeAlert(acct *account.Account, rev *review.Review, draft *review.ReplyDraft) string {
	var b strings.Builder
	if draft.Escalation {
		fmt.Fprintf(&b, "NEEDS ATTENTION (%s)\n", strings.Join(draft.EscalationReasons, ", "))
	}
	fmt.Fprintf(&b, "New %d-star %s review for %s from %s:\n\"%s\"\n\n",
		rev.Rating, rev.Platform, acct.Name, rev.Author, excerpt(rev.Text))
	fmt.Fprintf(&b, "Suggested reply:\n\"%s\"\n\n", draft.DraftText)
	b.WriteString("Reply APPROVE to post, EDIT to write your own, or IGNORE to skip.")
	return b.String()
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "(no text)"
	}
	runes := []rune(text)
	if len(runes) <= maxExcerptLen {
		return text
	}
	return string(runes[:maxExcerptLen-3]) + "..."
}
