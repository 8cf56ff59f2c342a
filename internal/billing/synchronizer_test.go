package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/replypilot/replypilot/internal/account"
)

type fakeEventLog struct {
	seen map[string]bool
}

func (f *fakeEventLog) processOnce(_ context.Context, eventID, _ string, apply func(tx *sql.Tx) error) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[eventID] {
		return false, nil
	}
	if err := apply(nil); err != nil {
		return false, err
	}
	f.seen[eventID] = true
	return true, nil
}

type subscriptionUpdate struct {
	id     string
	state  account.SubscriptionState
	paused bool
}

type fakeSyncAccounts struct {
	acct    *account.Account
	updates []subscriptionUpdate
	links   []string
}

func (f *fakeSyncAccounts) GetByStripeCustomer(_ context.Context, customerID string) (*account.Account, error) {
	if f.acct == nil || f.acct.StripeCustomerID != customerID {
		return nil, sql.ErrNoRows
	}
	return f.acct, nil
}

func (f *fakeSyncAccounts) UpdateSubscription(_ context.Context, _ *sql.Tx, id string, state account.SubscriptionState, paused bool) error {
	f.updates = append(f.updates, subscriptionUpdate{id: id, state: state, paused: paused})
	f.acct.SubscriptionState = state
	f.acct.MonitoringPaused = paused
	return nil
}

func (f *fakeSyncAccounts) LinkStripe(_ context.Context, _ *sql.Tx, id, customerID, subscriptionID string) error {
	f.links = append(f.links, id+"/"+customerID+"/"+subscriptionID)
	return nil
}

type fakeNoticeSender struct {
	sends []string
}

func (f *fakeNoticeSender) Send(_ context.Context, to, _ string) (string, error) {
	f.sends = append(f.sends, to)
	return "SM1", nil
}

func newTestSynchronizer(acct *account.Account) (*Synchronizer, *fakeSyncAccounts, *fakeNoticeSender) {
	accounts := &fakeSyncAccounts{acct: acct}
	sender := &fakeNoticeSender{}
	s := &Synchronizer{events: &fakeEventLog{}, accounts: accounts, sender: sender}
	return s, accounts, sender
}

func eventPayload(t *testing.T, id, eventType string, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"data": map[string]any{"object": json.RawMessage(raw)},
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func billableAccount() *account.Account {
	return &account.Account{
		ID:                "acct_1",
		OwnerPhone:        "+15550001111",
		StripeCustomerID:  "cus_1",
		SubscriptionState: account.SubscriptionActive,
	}
}

func TestProcess_RedeliveredEventIsNoOp(t *testing.T) {
	s, accounts, sender := newTestSynchronizer(billableAccount())
	payload := eventPayload(t, "evt_1", EventPaymentFailed, Invoice{Customer: "cus_1"})

	if err := s.Process(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	if err := s.Process(context.Background(), payload); err != nil {
		t.Fatal(err)
	}

	if len(accounts.updates) != 1 {
		t.Fatalf("subscription updated %d times across redelivery, want 1", len(accounts.updates))
	}
	if len(sender.sends) != 1 {
		t.Errorf("owner notified %d times across redelivery, want 1", len(sender.sends))
	}
	got := accounts.updates[0]
	if got.state != account.SubscriptionPastDue || !got.paused {
		t.Errorf("update = %+v, want past_due with monitoring paused", got)
	}
}

func TestProcess_PaymentSucceededOnlyRecoversPastDue(t *testing.T) {
	acct := billableAccount()
	s, accounts, _ := newTestSynchronizer(acct)
	invoice := Invoice{Customer: "cus_1"}

	if err := s.Process(context.Background(), eventPayload(t, "evt_1", EventPaymentSucceeded, invoice)); err != nil {
		t.Fatal(err)
	}
	if len(accounts.updates) != 0 {
		t.Fatalf("routine renewal on an active account mutated state: %+v", accounts.updates)
	}

	acct.SubscriptionState = account.SubscriptionPastDue
	acct.MonitoringPaused = true
	if err := s.Process(context.Background(), eventPayload(t, "evt_2", EventPaymentSucceeded, invoice)); err != nil {
		t.Fatal(err)
	}
	if len(accounts.updates) != 1 {
		t.Fatalf("recovery from past_due recorded %d updates, want 1", len(accounts.updates))
	}
	got := accounts.updates[0]
	if got.state != account.SubscriptionActive || got.paused {
		t.Errorf("update = %+v, want active with monitoring resumed", got)
	}
}

func TestProcess_SubscriptionDeletedPausesMonitoring(t *testing.T) {
	acct := billableAccount()
	s, _, _ := newTestSynchronizer(acct)
	payload := eventPayload(t, "evt_1", EventSubscriptionDeleted, Subscription{Customer: "cus_1", Status: "canceled"})

	if err := s.Process(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	if acct.SubscriptionState != account.SubscriptionCanceled {
		t.Errorf("state = %s, want canceled", acct.SubscriptionState)
	}
	if !acct.MonitoringPaused {
		t.Error("canceled account must leave the pollable set")
	}
}

func TestProcess_CheckoutLinksAccount(t *testing.T) {
	s, accounts, _ := newTestSynchronizer(billableAccount())
	payload := eventPayload(t, "evt_1", EventCheckoutCompleted, CheckoutSession{
		Customer:          "cus_new",
		Subscription:      "sub_new",
		ClientReferenceID: "acct_1",
	})

	if err := s.Process(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	if len(accounts.links) != 1 || accounts.links[0] != "acct_1/cus_new/sub_new" {
		t.Errorf("links = %v", accounts.links)
	}
}

func TestProcess_PaymentFailedRespectsOptOut(t *testing.T) {
	acct := billableAccount()
	acct.SMSOptOut = true
	s, accounts, sender := newTestSynchronizer(acct)
	payload := eventPayload(t, "evt_1", EventPaymentFailed, Invoice{Customer: "cus_1"})

	if err := s.Process(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	if len(accounts.updates) != 1 {
		t.Fatalf("state change must still land for an opted-out owner, got %d updates", len(accounts.updates))
	}
	if len(sender.sends) != 0 {
		t.Errorf("opted-out owner was texted %d times", len(sender.sends))
	}
}

func TestProcess_MissingIDOrTypeRejected(t *testing.T) {
	s, accounts, _ := newTestSynchronizer(billableAccount())

	if err := s.Process(context.Background(), []byte(`{"type":"invoice.payment_failed"}`)); err == nil {
		t.Error("event without an id must be rejected")
	}
	if err := s.Process(context.Background(), []byte(`not json`)); err == nil {
		t.Error("malformed payload must be rejected")
	}
	if len(accounts.updates) != 0 {
		t.Errorf("rejected events mutated state: %+v", accounts.updates)
	}
}
