package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/conversation"
	"github.com/replypilot/replypilot/internal/review"
)

type stubAccounts struct {
	acct *account.Account
}

func (s *stubAccounts) GetByID(context.Context, string) (*account.Account, error) {
	return s.acct, nil
}

type stubReviews struct {
	rev   *review.Review
	draft *review.ReplyDraft
}

func (s *stubReviews) GetByID(_ context.Context, id string) (*review.Review, error) {
	if s.rev == nil || s.rev.ID != id {
		return nil, review.ErrNotFound
	}
	return s.rev, nil
}

func (s *stubReviews) GetDraftByReviewID(context.Context, string) (*review.ReplyDraft, error) {
	return s.draft, nil
}

type stubApprovals struct {
	busy     bool
	opened   []string
	released []string
}

func (s *stubApprovals) OpenApproval(_ context.Context, _, reviewID string) error {
	if s.busy {
		return conversation.ErrConversationBusy
	}
	s.opened = append(s.opened, reviewID)
	return nil
}

func (s *stubApprovals) ReleaseApproval(_ context.Context, _, reviewID string) error {
	s.released = append(s.released, reviewID)
	return nil
}

type stubSender struct {
	err  error
	sent []string
}

func (s *stubSender) Send(_ context.Context, _, body string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, body)
	return "SM_out", nil
}

type stubAttempts struct {
	upserted []*Attempt
}

func (s *stubAttempts) Upsert(_ context.Context, a *Attempt) error {
	s.upserted = append(s.upserted, a)
	return nil
}

func (s *stubAttempts) MarkDelivered(context.Context, string) error { return nil }
func (s *stubAttempts) RecordFailure(context.Context, string, int, time.Time, string) error {
	return nil
}
func (s *stubAttempts) MarkPermanentFailure(context.Context, string, string) error { return nil }

func newTestDispatcher() (*Dispatcher, *stubApprovals, *stubSender, *stubAttempts) {
	accounts := &stubAccounts{acct: &account.Account{
		ID:         "acct_1",
		Name:       "Nonna's Table",
		OwnerPhone: "+15551230000",
	}}
	reviews := &stubReviews{
		rev: &review.Review{
			ID: "rev_1", AccountID: "acct_1", Platform: review.PlatformGoogle,
			Rating: 1, Author: "Dan", Text: "Found a hair in my soup.",
		},
		draft: &review.ReplyDraft{
			ID: "draft_1", ReviewID: "rev_1", Status: review.DraftPending,
			DraftText:  "We're so sorry, Dan.",
			Escalation: true, EscalationReasons: []string{"health"},
		},
	}
	approvals := &stubApprovals{}
	sender := &stubSender{}
	attempts := &stubAttempts{}
	d := NewDispatcher(accounts, reviews, approvals, sender, attempts, nil)
	return d, approvals, sender, attempts
}

func TestDispatcher_DeliverSendsAlert(t *testing.T) {
	d, approvals, sender, attempts := newTestDispatcher()

	if err := d.Deliver(context.Background(), "rev_1"); err != nil {
		t.Fatal(err)
	}
	if len(approvals.opened) != 1 {
		t.Fatalf("opened = %v", approvals.opened)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %v", sender.sent)
	}
	body := sender.sent[0]
	for _, want := range []string{"NEEDS ATTENTION (health)", "1-star google review", "Nonna's Table", "Dan", "APPROVE"} {
		if !strings.Contains(body, want) {
			t.Errorf("alert body missing %q:\n%s", want, body)
		}
	}
	if len(attempts.upserted) != 0 {
		t.Errorf("successful delivery recorded an attempt: %v", attempts.upserted)
	}
}

func TestDispatcher_BusyConversationParks(t *testing.T) {
	d, approvals, sender, attempts := newTestDispatcher()
	approvals.busy = true

	if err := d.Deliver(context.Background(), "rev_1"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("busy conversation must not send: %v", sender.sent)
	}
	if len(attempts.upserted) != 1 {
		t.Fatalf("upserted = %v", attempts.upserted)
	}
	a := attempts.upserted[0]
	if a.Attempts != 0 {
		t.Errorf("attempts = %d, busy defer never tried a send", a.Attempts)
	}
	if a.Status != AttemptPending {
		t.Errorf("status = %s", a.Status)
	}
}

func TestDispatcher_SendFailureRollsBackAndParks(t *testing.T) {
	d, approvals, _, attempts := newTestDispatcher()
	d.sender = &stubSender{err: errors.New("twilio 500")}

	if err := d.Deliver(context.Background(), "rev_1"); err != nil {
		t.Fatal(err)
	}
	if len(approvals.released) != 1 || approvals.released[0] != "rev_1" {
		t.Errorf("released = %v, failed send must release the approval", approvals.released)
	}
	if len(attempts.upserted) != 1 {
		t.Fatalf("upserted = %v", attempts.upserted)
	}
	if got := attempts.upserted[0].Attempts; got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestDispatcher_OptOutSkips(t *testing.T) {
	d, approvals, sender, attempts := newTestDispatcher()
	d.accounts = &stubAccounts{acct: &account.Account{ID: "acct_1", OwnerPhone: "+15551230000", SMSOptOut: true}}

	if err := d.Deliver(context.Background(), "rev_1"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 || len(approvals.opened) != 0 || len(attempts.upserted) != 0 {
		t.Error("opted-out account must be skipped entirely")
	}
}

func TestDispatcher_RedeliverDropsHandledDraft(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	d.reviews = &stubReviews{
		rev:   &review.Review{ID: "rev_1", AccountID: "acct_1"},
		draft: &review.ReplyDraft{ID: "draft_1", ReviewID: "rev_1", Status: review.DraftPosted},
	}

	err := d.Redeliver(context.Background(), &Attempt{ID: "a1", ReviewID: "rev_1"})
	if !errors.Is(err, ErrDropped) {
		t.Errorf("Redeliver = %v, want ErrDropped", err)
	}
}

func TestDispatcher_RedeliverBusy(t *testing.T) {
	d, approvals, _, _ := newTestDispatcher()
	approvals.busy = true

	err := d.Redeliver(context.Background(), &Attempt{ID: "a1", ReviewID: "rev_1"})
	if !errors.Is(err, ErrStillBusy) {
		t.Errorf("Redeliver = %v, want ErrStillBusy", err)
	}
}
