package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeRetryStore struct {
	due []*Attempt

	delivered []string
	failures  []failureRecord
	permanent []string
}

type failureRecord struct {
	id          string
	attempts    int
	nextRetryAt time.Time
	lastError   string
}

func (f *fakeRetryStore) ListDue(context.Context, time.Time, int) ([]*Attempt, error) {
	return f.due, nil
}

func (f *fakeRetryStore) MarkDelivered(_ context.Context, id string) error {
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeRetryStore) RecordFailure(_ context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error {
	f.failures = append(f.failures, failureRecord{id, attempts, nextRetryAt, lastError})
	return nil
}

func (f *fakeRetryStore) MarkPermanentFailure(_ context.Context, id, lastError string) error {
	f.permanent = append(f.permanent, id)
	return nil
}

type scriptedDeliver struct {
	errs map[string]error // by attempt id
}

func (s *scriptedDeliver) Redeliver(_ context.Context, a *Attempt) error {
	return s.errs[a.ID]
}

func TestBackoffDoubles(t *testing.T) {
	base := 2 * time.Minute
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 2 * time.Minute},
		{1, 4 * time.Minute},
		{2, 8 * time.Minute},
		{3, 16 * time.Minute},
	}
	for _, tt := range tests {
		if got := backoffDelay(base, tt.attempts); got != tt.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tt.attempts, got, tt.want)
		}
	}

	// Very high counts must not overflow into a negative delay.
	if got := backoffDelay(base, 500); got <= 0 {
		t.Errorf("backoffDelay(500) = %s", got)
	}
}

func TestRetryScheduler_DeliversAndCloses(t *testing.T) {
	store := &fakeRetryStore{due: []*Attempt{{ID: "a1", ReviewID: "rev_1", Attempts: 2}}}
	sched := NewRetryScheduler(store, &scriptedDeliver{errs: map[string]error{}}, RetryConfig{})

	if err := sched.Tick(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(store.delivered) != 1 || store.delivered[0] != "a1" {
		t.Errorf("delivered = %v, want [a1]", store.delivered)
	}
	if len(store.failures) != 0 || len(store.permanent) != 0 {
		t.Errorf("unexpected failure records: %v %v", store.failures, store.permanent)
	}
}

func TestRetryScheduler_FailureBacksOff(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeRetryStore{due: []*Attempt{{ID: "a1", ReviewID: "rev_1", Attempts: 1}}}
	deliver := &scriptedDeliver{errs: map[string]error{"a1": errors.New("twilio 500")}}
	sched := NewRetryScheduler(store, deliver, RetryConfig{BaseDelay: time.Minute, MaxAttempts: 5})

	if err := sched.Tick(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	if len(store.failures) != 1 {
		t.Fatalf("failures = %v", store.failures)
	}
	rec := store.failures[0]
	if rec.attempts != 2 {
		t.Errorf("attempts = %d, want 2", rec.attempts)
	}
	if want := now.Add(4 * time.Minute); !rec.nextRetryAt.Equal(want) {
		t.Errorf("nextRetryAt = %s, want %s (base * 2^attempts)", rec.nextRetryAt, want)
	}
	if rec.lastError != "twilio 500" {
		t.Errorf("lastError = %q", rec.lastError)
	}
}

func TestRetryScheduler_ExhaustionIsPermanent(t *testing.T) {
	store := &fakeRetryStore{due: []*Attempt{{ID: "a1", ReviewID: "rev_1", Attempts: 4}}}
	deliver := &scriptedDeliver{errs: map[string]error{"a1": errors.New("twilio 500")}}
	sched := NewRetryScheduler(store, deliver, RetryConfig{MaxAttempts: 5})

	if err := sched.Tick(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(store.permanent) != 1 || store.permanent[0] != "a1" {
		t.Errorf("permanent = %v, want [a1]", store.permanent)
	}
	if len(store.failures) != 0 {
		t.Errorf("exhausted attempt must not be rescheduled: %v", store.failures)
	}
}

func TestRetryScheduler_BusyDoesNotConsumeAttempt(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeRetryStore{due: []*Attempt{{ID: "a1", ReviewID: "rev_1", Attempts: 3}}}
	deliver := &scriptedDeliver{errs: map[string]error{"a1": ErrStillBusy}}
	sched := NewRetryScheduler(store, deliver, RetryConfig{MaxAttempts: 4})

	if err := sched.Tick(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	if len(store.permanent) != 0 {
		t.Fatalf("busy must never exhaust: %v", store.permanent)
	}
	if len(store.failures) != 1 {
		t.Fatalf("failures = %v", store.failures)
	}
	if got := store.failures[0].attempts; got != 3 {
		t.Errorf("attempts = %d, busy re-offer keeps the count at 3", got)
	}
}

func TestRetryScheduler_DroppedIsParked(t *testing.T) {
	store := &fakeRetryStore{due: []*Attempt{{ID: "a1", ReviewID: "rev_1", Attempts: 0}}}
	deliver := &scriptedDeliver{errs: map[string]error{"a1": fmt.Errorf("%w: account opted out", ErrDropped)}}
	sched := NewRetryScheduler(store, deliver, RetryConfig{MaxAttempts: 5})

	if err := sched.Tick(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(store.permanent) != 1 {
		t.Errorf("permanent = %v, want the dropped attempt parked", store.permanent)
	}
	if len(store.failures) != 0 {
		t.Errorf("dropped attempt must not be rescheduled: %v", store.failures)
	}
}
