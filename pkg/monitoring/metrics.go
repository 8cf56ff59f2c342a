package monitoring

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline counters. Labels stay low-cardinality: platform and command
// names only, never account ids or phone numbers.
var (
	ReviewsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_reviews_fetched_total",
		Help: "Raw reviews returned by platform adapters.",
	}, []string{"platform"})

	ReviewsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_reviews_ingested_total",
		Help: "Reviews persisted with a reply draft.",
	}, []string{"platform", "sentiment"})

	ReviewsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_reviews_duplicate_total",
		Help: "Reviews skipped by the (platform, review id) dedup key.",
	}, []string{"platform"})

	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_poll_errors_total",
		Help: "Platform fetch failures during poll cycles.",
	}, []string{"platform"})

	SMSSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_sms_sent_total",
		Help: "Outbound SMS accepted by the provider.",
	}, []string{"kind"})

	SMSFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_sms_failed_total",
		Help: "Outbound SMS rejected or timed out.",
	}, []string{"kind"})

	CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_commands_handled_total",
		Help: "Inbound SMS commands by parsed command name.",
	}, []string{"command"})

	NotificationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replypilot_notification_retries_total",
		Help: "Notification attempts re-sent by the retry scheduler.",
	})

	NotificationPermanentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replypilot_notification_permanent_failures_total",
		Help: "Notification attempts that exhausted the retry budget.",
	})

	BillingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replypilot_billing_events_total",
		Help: "Verified billing webhook events by type.",
	}, []string{"type"})

	DigestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replypilot_digests_sent_total",
		Help: "Weekly digest emails delivered.",
	})

	PollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "replypilot_poll_cycle_seconds",
		Help:    "Wall time of a full poll cycle across accounts.",
		Buckets: prometheus.DefBuckets,
	})
)

// StartMetricsServer exposes /metrics on its own listener so the
// webhook port never serves scrape traffic.
func StartMetricsServer(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("Metrics server starting on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server failed: %v", err)
		}
	}()
}
