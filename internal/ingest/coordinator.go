package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/notify"
	"github.com/replypilot/replypilot/internal/reply"
	"github.com/replypilot/replypilot/internal/review"
	"github.com/replypilot/replypilot/internal/sentiment"
	"github.com/replypilot/replypilot/internal/source"
	"github.com/replypilot/replypilot/pkg/messaging"
	"github.com/replypilot/replypilot/pkg/monitoring"
)

// ReviewStore is the persistence slice the coordinator writes through.
type ReviewStore interface {
	CreateWithDraft(ctx context.Context, rev *review.Review, draft *review.ReplyDraft) error
	LatestReviewedAt(ctx context.Context, accountID string, platform review.Platform) (time.Time, error)
}

// TaskPublisher queues alert tasks for the notification dispatcher.
type TaskPublisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// EventPublisher emits review lifecycle events for analytics.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Stats summarizes one poll cycle for an account.
type Stats struct {
	Fetched    int
	New        int
	Duplicates int
}

// Coordinator runs one account's poll cycle: fetch per platform, dedup,
// classify, draft, persist atomically, then hand off to notification.
// Ingestion and notification never share a transaction; a committed
// review whose alert cannot be queued is recovered by the retry path,
// not rolled back.
type Coordinator struct {
	store     ReviewStore
	generator reply.Generator
	fallback  reply.Generator
	adapters  []source.Adapter
	tasks     TaskPublisher
	events    EventPublisher // optional
}

func NewCoordinator(store ReviewStore, generator reply.Generator, adapters []source.Adapter, tasks TaskPublisher, events EventPublisher) *Coordinator {
	return &Coordinator{
		store:     store,
		generator: generator,
		fallback:  reply.NewTemplateGenerator(),
		adapters:  adapters,
		tasks:     tasks,
		events:    events,
	}
}

// locationFor returns the account's external id on a platform, empty if
// the platform is not connected.
func locationFor(acct *account.Account, platform review.Platform) string {
	switch platform {
	case review.PlatformGoogle:
		return acct.GooglePlaceID
	case review.PlatformYelp:
		return acct.YelpBusinessID
	default:
		return ""
	}
}

// PollAccount runs one cycle for one account. A platform failure is
// logged and skipped; it never aborts the other platforms.
func (c *Coordinator) PollAccount(ctx context.Context, acct *account.Account) (Stats, error) {
	start := time.Now()
	defer func() {
		monitoring.PollCycleDuration.Observe(time.Since(start).Seconds())
	}()

	var stats Stats
	for _, adapter := range c.adapters {
		platform := adapter.Platform()
		locationID := locationFor(acct, platform)
		if locationID == "" {
			continue
		}

		since, err := c.store.LatestReviewedAt(ctx, acct.ID, platform)
		if err != nil {
			log.Printf("failed to compute %s cursor for account %s: %v", platform, acct.ID, err)
			monitoring.PollErrors.WithLabelValues(string(platform)).Inc()
			continue
		}

		raws, err := adapter.FetchReviews(ctx, locationID, since)
		if errors.Is(err, source.ErrUnauthorized) {
			log.Printf("ALERT: %s credentials rejected for account %s, needs re-authorization", platform, acct.ID)
			monitoring.PollErrors.WithLabelValues(string(platform)).Inc()
			continue
		}
		if err != nil {
			log.Printf("%s fetch failed for account %s: %v", platform, acct.ID, err)
			monitoring.PollErrors.WithLabelValues(string(platform)).Inc()
			continue
		}

		stats.Fetched += len(raws)
		monitoring.ReviewsFetched.WithLabelValues(string(platform)).Add(float64(len(raws)))

		for _, raw := range raws {
			switch err := c.ingestOne(ctx, acct, platform, raw); {
			case err == nil:
				stats.New++
			case errors.Is(err, review.ErrDuplicate):
				stats.Duplicates++
				monitoring.ReviewsDuplicate.WithLabelValues(string(platform)).Inc()
			default:
				// Abandoned unit; the review was never recorded, so the
				// next cycle naturally retries it.
				log.Printf("failed to ingest %s review %s for account %s: %v",
					platform, raw.PlatformReviewID, acct.ID, err)
			}
		}
	}
	return stats, nil
}

// ingestOne persists one raw review with its draft and queues the owner
// alert. Returns review.ErrDuplicate for already-seen reviews.
func (c *Coordinator) ingestOne(ctx context.Context, acct *account.Account, platform review.Platform, raw source.RawReview) error {
	result := sentiment.Classify(raw.Rating, raw.Text)

	rev := &review.Review{
		AccountID:        acct.ID,
		Platform:         platform,
		PlatformReviewID: raw.PlatformReviewID,
		Author:           raw.Author,
		Rating:           raw.Rating,
		Text:             raw.Text,
		ReviewedAt:       raw.ReviewedAt,
		Sentiment:        string(result.Label),
		SentimentScore:   result.Score,
		Signals:          result.Signals,
		Metadata:         raw.Metadata,
	}

	draft := c.draftFor(ctx, rev, acct)
	if err := c.store.CreateWithDraft(ctx, rev, draft); err != nil {
		return err
	}
	monitoring.ReviewsIngested.WithLabelValues(string(platform), string(result.Label)).Inc()

	c.enqueueAlert(ctx, rev.ID)
	c.emit(ctx, rev)
	return nil
}

// draftFor asks the configured generator for a reply and falls back to
// a template when it fails. A review without any draft would block the
// approval workflow entirely, so ingestion never depends on the
// generator being up.
func (c *Coordinator) draftFor(ctx context.Context, rev *review.Review, acct *account.Account) *review.ReplyDraft {
	d, err := c.generator.Generate(ctx, rev, acct)
	if err != nil {
		log.Printf("reply generation failed for review %s, using fallback template: %v", rev.ID, err)
		if d, err = c.fallback.Generate(ctx, rev, acct); err != nil {
			// The template generator cannot actually fail; guard anyway.
			d = &reply.Draft{Text: "Thank you for your feedback.", Confidence: 0}
		}
	}
	return &review.ReplyDraft{
		DraftText:         d.Text,
		Status:            review.DraftPending,
		Escalation:        d.Escalation,
		EscalationReasons: d.EscalationReasons,
		Confidence:        d.Confidence,
	}
}

// enqueueAlert hands the committed review to the notification pipeline.
// Failure is logged only; the pending draft is still discoverable via
// STATUS, and the broker being down must not fail ingestion.
func (c *Coordinator) enqueueAlert(ctx context.Context, reviewID string) {
	task, _ := json.Marshal(notify.AlertTask{ReviewID: reviewID})
	if err := c.tasks.Publish(ctx, messaging.QueueReviewAlerts, task); err != nil {
		log.Printf("ALERT: failed to queue alert for review %s: %v", reviewID, err)
	}
}

func (c *Coordinator) emit(ctx context.Context, rev *review.Review) {
	if c.events == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"review_id": rev.ID,
		"type":      "review.ingested",
		"platform":  string(rev.Platform),
		"sentiment": rev.Sentiment,
		"rating":    fmt.Sprint(rev.Rating),
	})
	if err := c.events.Publish(ctx, rev.ID, payload); err != nil {
		log.Printf("failed to publish review.ingested event: %v", err)
	}
}
