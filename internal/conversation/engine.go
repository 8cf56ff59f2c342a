package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/review"
	"github.com/replypilot/replypilot/pkg/monitoring"
)

// ErrConversationBusy reports that the phone already has an open item;
// the dispatcher re-offers the alert later instead of interleaving two
// pending reviews in one conversation.
var ErrConversationBusy = errors.New("conversation has an open item")

// Store is the persisted conversation state the engine mutates.
type Store interface {
	Get(ctx context.Context, phone string) (*Conversation, error)
	Set(ctx context.Context, phone string, state State, reviewID string) error
}

// Accounts is the slice of account behavior the engine needs.
type Accounts interface {
	GetByPhone(ctx context.Context, phone string) (*account.Account, error)
	SetMonitoringPaused(ctx context.Context, id string, paused bool) error
	SetSMSOptOut(ctx context.Context, id string, optOut bool) error
}

// Reviews is the slice of review/draft behavior the engine needs.
type Reviews interface {
	GetByID(ctx context.Context, id string) (*review.Review, error)
	GetDraftByReviewID(ctx context.Context, reviewID string) (*review.ReplyDraft, error)
	UpdateDraftStatus(ctx context.Context, draftID string, status review.DraftStatus, finalText string) error
	CountPendingDrafts(ctx context.Context, accountID string) (int, error)
}

// Poster publishes an approved reply back to its platform.
type Poster interface {
	PostReply(ctx context.Context, rev *review.Review, text string) error
}

// Biller exposes the two billing operations reachable from SMS.
type Biller interface {
	PortalLink(accountID string) (string, error)
	CancelSubscription(ctx context.Context, acct *account.Account) error
}

// Deduper answers whether an idempotency key has been seen, recording
// it as seen in the same call.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// EventPublisher emits review lifecycle events for analytics.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Engine drives the per-phone approval state machine. All mutation of a
// phone's conversation goes through its keyed mutex: the inbound webhook
// path and the outbound alert path both take it.
type Engine struct {
	store    Store
	accounts Accounts
	reviews  Reviews
	poster   Poster
	biller   Biller
	dedupe   Deduper
	events   EventPublisher // optional
	locks    *KeyedMutex
}

func NewEngine(store Store, accounts Accounts, reviews Reviews, poster Poster, biller Biller, dedupe Deduper, events EventPublisher) *Engine {
	return &Engine{
		store:    store,
		accounts: accounts,
		reviews:  reviews,
		poster:   poster,
		biller:   biller,
		dedupe:   dedupe,
		events:   events,
		locks:    NewKeyedMutex(),
	}
}

const helpText = "Commands: APPROVE, EDIT, IGNORE, PAUSE, RESUME, STATUS, BILLING, CANCEL, HELP, STOP."

// HandleInbound processes one inbound SMS and returns the reply body to
// send back (empty string means reply with nothing). The provider
// delivers webhooks at least once, so the MessageSid is deduped before
// any side effect.
func (e *Engine) HandleInbound(ctx context.Context, phone, body, messageSid string) (string, error) {
	if messageSid != "" {
		seen, err := e.dedupe.Seen(ctx, "sms:sid:"+messageSid)
		if err != nil {
			// A dedup-store outage should not drop owner commands; the
			// worst case is a duplicate help text.
			log.Printf("dedup check failed for %s: %v", messageSid, err)
		} else if seen {
			log.Printf("inbound %s already handled (idempotent skip)", messageSid)
			return "", nil
		}
	}

	e.locks.Lock(phone)
	defer e.locks.Unlock(phone)

	conv, err := e.store.Get(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}

	cmd := ParseCommand(body, conv.State)
	monitoring.CommandsHandled.WithLabelValues(string(cmd.Type)).Inc()

	acct, err := e.accounts.GetByPhone(ctx, phone)
	if errors.Is(err, account.ErrNotFound) {
		return "This number isn't linked to a ReplyPilot account.", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load account: %w", err)
	}

	return e.execute(ctx, conv, acct, cmd)
}

func (e *Engine) execute(ctx context.Context, conv *Conversation, acct *account.Account, cmd Command) (string, error) {
	switch cmd.Type {
	case CmdApprove:
		return e.handleApprove(ctx, conv, acct)
	case CmdEdit:
		return e.handleEdit(ctx, conv)
	case CmdIgnore:
		return e.handleIgnore(ctx, conv)
	case CmdCustomReply:
		return e.handleCustomReply(ctx, conv, cmd.Payload)
	case CmdPause:
		if err := e.accounts.SetMonitoringPaused(ctx, acct.ID, true); err != nil {
			return "", fmt.Errorf("failed to pause monitoring: %w", err)
		}
		return "Monitoring paused. Text RESUME to pick back up.", nil
	case CmdResume:
		if err := e.accounts.SetMonitoringPaused(ctx, acct.ID, false); err != nil {
			return "", fmt.Errorf("failed to resume monitoring: %w", err)
		}
		return "Monitoring resumed. We'll text you when new reviews come in.", nil
	case CmdStatus:
		return e.handleStatus(ctx, conv, acct)
	case CmdBilling:
		link, err := e.biller.PortalLink(acct.ID)
		if err != nil {
			return "", fmt.Errorf("failed to build portal link: %w", err)
		}
		return "Manage your subscription here: " + link, nil
	case CmdCancel:
		if err := e.store.Set(ctx, conv.Phone, StateAwaitingCancelConfirm, conv.ReviewID); err != nil {
			return "", err
		}
		return "This will cancel your subscription at the end of the billing period. Reply YES to confirm, or anything else to keep your account.", nil
	case CmdCancelConfirm:
		return e.handleCancelConfirm(ctx, conv, acct)
	case CmdCancelDeny:
		if err := e.store.Set(ctx, conv.Phone, StateIdle, ""); err != nil {
			return "", err
		}
		return "Glad to keep you! Your subscription is unchanged.", nil
	case CmdStop:
		// Regulatory opt-out: suppress all further outbound sends. The
		// carrier handles the mandated confirmation message, so reply
		// with nothing.
		if err := e.accounts.SetSMSOptOut(ctx, acct.ID, true); err != nil {
			return "", fmt.Errorf("failed to record opt-out: %w", err)
		}
		return "", nil
	case CmdHelp:
		return helpText, nil
	default:
		return "Sorry, I didn't catch that. " + helpText, nil
	}
}

func (e *Engine) handleApprove(ctx context.Context, conv *Conversation, acct *account.Account) (string, error) {
	if conv.State != StateAwaitingApproval || conv.ReviewID == "" {
		return "No review is waiting for approval right now. Text STATUS for an overview.", nil
	}

	draft, err := e.reviews.GetDraftByReviewID(ctx, conv.ReviewID)
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	if err := e.reviews.UpdateDraftStatus(ctx, draft.ID, review.DraftApproved, draft.DraftText); err != nil {
		return "", fmt.Errorf("failed to approve draft: %w", err)
	}
	if err := e.store.Set(ctx, conv.Phone, StateIdle, ""); err != nil {
		return "", err
	}

	return e.post(ctx, conv.ReviewID, draft, draft.DraftText, "Reply approved and posted. Nice work staying on top of it!")
}

func (e *Engine) handleEdit(ctx context.Context, conv *Conversation) (string, error) {
	if conv.State != StateAwaitingApproval || conv.ReviewID == "" {
		return "No review is waiting for approval right now. Text STATUS for an overview.", nil
	}
	if err := e.store.Set(ctx, conv.Phone, StateAwaitingCustomReply, conv.ReviewID); err != nil {
		return "", err
	}
	return "Reply with the exact text you'd like to send instead.", nil
}

func (e *Engine) handleIgnore(ctx context.Context, conv *Conversation) (string, error) {
	if conv.State != StateAwaitingApproval || conv.ReviewID == "" {
		return "No review is waiting for approval right now. Text STATUS for an overview.", nil
	}
	draft, err := e.reviews.GetDraftByReviewID(ctx, conv.ReviewID)
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	if err := e.reviews.UpdateDraftStatus(ctx, draft.ID, review.DraftSkipped, ""); err != nil {
		return "", fmt.Errorf("failed to skip draft: %w", err)
	}
	if err := e.store.Set(ctx, conv.Phone, StateIdle, ""); err != nil {
		return "", err
	}
	e.emit(ctx, conv.ReviewID, "reply.skipped")
	return "Got it, no reply will be sent for this review.", nil
}

func (e *Engine) handleCustomReply(ctx context.Context, conv *Conversation, text string) (string, error) {
	if conv.ReviewID == "" {
		if err := e.store.Set(ctx, conv.Phone, StateIdle, ""); err != nil {
			return "", err
		}
		return "The review you were editing is no longer pending. Text STATUS for an overview.", nil
	}

	draft, err := e.reviews.GetDraftByReviewID(ctx, conv.ReviewID)
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	if err := e.reviews.UpdateDraftStatus(ctx, draft.ID, review.DraftEdited, text); err != nil {
		return "", fmt.Errorf("failed to store edited reply: %w", err)
	}
	if err := e.store.Set(ctx, conv.Phone, StateIdle, ""); err != nil {
		return "", err
	}

	return e.post(ctx, conv.ReviewID, draft, text, "Your reply has been posted.")
}

// post attempts the platform write. On provider failure the draft
// stays approved/edited on failure and the owner is told, since a
// posting failure needs staff follow-up rather than silent retries.
func (e *Engine) post(ctx context.Context, reviewID string, draft *review.ReplyDraft, text, successReply string) (string, error) {
	rev, err := e.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return "", fmt.Errorf("failed to load review: %w", err)
	}

	if err := e.poster.PostReply(ctx, rev, text); err != nil {
		log.Printf("ALERT: failed to post reply for review %s: %v", reviewID, err)
		return "Your reply is approved, but posting it hit a snag on our side. We're on it and it will go out shortly.", nil
	}

	if err := e.reviews.UpdateDraftStatus(ctx, draft.ID, review.DraftPosted, text); err != nil {
		log.Printf("reply for review %s posted but status update failed: %v", reviewID, err)
	}
	e.emit(ctx, reviewID, "reply.posted")
	return successReply, nil
}

func (e *Engine) handleStatus(ctx context.Context, conv *Conversation, acct *account.Account) (string, error) {
	pending, err := e.reviews.CountPendingDrafts(ctx, acct.ID)
	if err != nil {
		return "", fmt.Errorf("failed to count pending drafts: %w", err)
	}

	noun := "replies"
	if pending == 1 {
		noun = "reply"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d %s awaiting your review.", acct.Name, pending, noun)
	if conv.State == StateAwaitingApproval && conv.ReviewID != "" {
		if rev, err := e.reviews.GetByID(ctx, conv.ReviewID); err == nil {
			fmt.Fprintf(&b, " Current: %d-star review from %s.", rev.Rating, rev.Author)
		}
	}
	if acct.MonitoringPaused {
		b.WriteString(" Monitoring is paused.")
	}
	return b.String(), nil
}

func (e *Engine) handleCancelConfirm(ctx context.Context, conv *Conversation, acct *account.Account) (string, error) {
	// State clears whatever the provider says: a stuck confirmation
	// state would trap the owner in the cancel flow.
	if err := e.store.Set(ctx, conv.Phone, StateIdle, ""); err != nil {
		return "", err
	}

	if err := e.biller.CancelSubscription(ctx, acct); err != nil {
		log.Printf("ALERT: subscription cancellation failed for account %s: %v", acct.ID, err)
		return "We couldn't process the cancellation automatically. Our team has been notified and will sort it out.", nil
	}
	return "Your subscription has been canceled. You're welcome back any time.", nil
}

// OpenApproval moves an idle conversation to AWAITING_APPROVAL for the
// given review. Returns ErrConversationBusy when another item is open.
func (e *Engine) OpenApproval(ctx context.Context, phone, reviewID string) error {
	e.locks.Lock(phone)
	defer e.locks.Unlock(phone)

	conv, err := e.store.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv.State != StateIdle {
		return ErrConversationBusy
	}
	return e.store.Set(ctx, phone, StateAwaitingApproval, reviewID)
}

// ReleaseApproval rolls an AWAITING_APPROVAL state back to IDLE if it
// still references reviewID. The dispatcher calls this when the alert
// SMS failed to send, so the conversation never waits on a message the
// owner never received.
func (e *Engine) ReleaseApproval(ctx context.Context, phone, reviewID string) error {
	e.locks.Lock(phone)
	defer e.locks.Unlock(phone)

	conv, err := e.store.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv.State == StateAwaitingApproval && conv.ReviewID == reviewID {
		return e.store.Set(ctx, phone, StateIdle, "")
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, reviewID, eventType string) {
	if e.events == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"review_id": reviewID, "type": eventType})
	if err := e.events.Publish(ctx, reviewID, payload); err != nil {
		log.Printf("failed to publish %s event: %v", eventType, err)
	}
}
