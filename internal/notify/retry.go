package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/replypilot/replypilot/pkg/monitoring"
)

var (
	// ErrStillBusy means the owner's conversation still has an open
	// item. Not a failure; the retry does not count against the cap.
	ErrStillBusy = errors.New("conversation still busy")

	// ErrDropped means the alert is no longer deliverable and should
	// never be retried.
	ErrDropped = errors.New("alert dropped")
)

const defaultRetryBase = 2 * time.Minute

// backoff returns the delay before retry number attempts, doubling each
// time. attempts is clamped so the shift cannot overflow.
func backoffDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = defaultRetryBase
	}
	if attempts > 10 {
		attempts = 10
	}
	return base * time.Duration(1<<attempts)
}

func backoff(attempts int) time.Duration {
	return backoffDelay(defaultRetryBase, attempts)
}

// RetryStore is the attempt persistence the scheduler drains.
type RetryStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Attempt, error)
	MarkDelivered(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error
	MarkPermanentFailure(ctx context.Context, id, lastError string) error
}

// Redeliverer retries one deferred alert.
type Redeliverer interface {
	Redeliver(ctx context.Context, a *Attempt) error
}

// RetryConfig tunes the scheduler.
type RetryConfig struct {
	Interval    time.Duration
	BaseDelay   time.Duration
	MaxAttempts int
	BatchSize   int
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultRetryBase
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// RetryScheduler periodically re-offers deferred alerts until they
// deliver or exhaust their attempts.
type RetryScheduler struct {
	store   RetryStore
	deliver Redeliverer
	cfg     RetryConfig
}

func NewRetryScheduler(store RetryStore, deliver Redeliverer, cfg RetryConfig) *RetryScheduler {
	return &RetryScheduler{store: store, deliver: deliver, cfg: cfg.withDefaults()}
}

// Run ticks until the context is canceled.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("retry scheduler running, interval %s", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now().UTC()); err != nil {
				log.Printf("retry tick failed: %v", err)
			}
		}
	}
}

// Tick drains one batch of due attempts.
func (s *RetryScheduler) Tick(ctx context.Context, now time.Time) error {
	due, err := s.store.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, a := range due {
		s.process(ctx, a, now)
	}
	return nil
}

func (s *RetryScheduler) process(ctx context.Context, a *Attempt, now time.Time) {
	err := s.deliver.Redeliver(ctx, a)
	switch {
	case err == nil:
		monitoring.NotificationRetries.Inc()
		if err := s.store.MarkDelivered(ctx, a.ID); err != nil {
			log.Printf("failed to mark attempt %s delivered: %v", a.ID, err)
		}
	case errors.Is(err, ErrStillBusy):
		// Re-offer later without consuming an attempt.
		if err := s.store.RecordFailure(ctx, a.ID, a.Attempts, now.Add(busyRetryDelay), "conversation busy"); err != nil {
			log.Printf("failed to reschedule attempt %s: %v", a.ID, err)
		}
	case errors.Is(err, ErrDropped):
		if err := s.store.MarkPermanentFailure(ctx, a.ID, err.Error()); err != nil {
			log.Printf("failed to park attempt %s: %v", a.ID, err)
		}
	default:
		monitoring.NotificationRetries.Inc()
		attempts := a.Attempts + 1
		if attempts >= s.cfg.MaxAttempts {
			monitoring.NotificationPermanentFailures.Inc()
			log.Printf("ALERT: alert for review %s failed permanently after %d attempts: %v", a.ReviewID, attempts, err)
			if err := s.store.MarkPermanentFailure(ctx, a.ID, err.Error()); err != nil {
				log.Printf("failed to park attempt %s: %v", a.ID, err)
			}
			return
		}
		next := now.Add(backoffDelay(s.cfg.BaseDelay, attempts))
		if err := s.store.RecordFailure(ctx, a.ID, attempts, next, err.Error()); err != nil {
			log.Printf("failed to record attempt %s failure: %v", a.ID, err)
		}
	}
}
