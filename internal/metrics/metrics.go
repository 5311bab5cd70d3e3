// Package metrics defines the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "herbscan",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "herbscan",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// EntitlementTransitionsTotal counts reconciler outcomes by action.
	EntitlementTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "herbscan",
		Subsystem: "billing",
		Name:      "entitlement_transitions_total",
		Help:      "Entitlement reconciliation outcomes by action.",
	}, []string{"action"})

	// RedeliveriesTotal counts events the ledger had already recorded.
	RedeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "herbscan",
		Subsystem: "billing",
		Name:      "event_redeliveries_total",
		Help:      "Stripe events processed again after a previous successful delivery.",
	})

	// QuotaRejectionsTotal counts identification requests refused by the free quota.
	QuotaRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "herbscan",
		Subsystem: "identify",
		Name:      "quota_rejections_total",
		Help:      "Identification requests rejected because the daily free quota was reached.",
	})

	// IdentifyRequestsTotal counts identification requests by provider and outcome.
	IdentifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "herbscan",
		Subsystem: "identify",
		Name:      "requests_total",
		Help:      "Identification requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ProfileSyncCorrectionsTotal counts profile plans rewritten by the convergence sweep.
	ProfileSyncCorrectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "herbscan",
		Subsystem: "profiles",
		Name:      "sync_corrections_total",
		Help:      "Profile plans corrected by the scheduled sweep, by resulting plan.",
	}, []string{"plan"})
)
