// Package metrics declares the Prometheus collectors used by the admission
// control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionDecisions counts admission outcomes by decision
	// (allowed, rate_limited, quota_exceeded, unauthorized, store_error).
	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_decisions_total",
		Help: "Admission middleware decisions by outcome.",
	}, []string{"decision"})

	// CredentialRotations counts credential pool rotations by cause.
	CredentialRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credential_rotations_total",
		Help: "Credential pool rotations by cause (usage, forced).",
	}, []string{"cause"})

	// UpstreamAttempts counts generation attempts by final classification.
	UpstreamAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_generation_attempts_total",
		Help: "Upstream generation attempts by error kind (ok on success).",
	}, []string{"kind"})

	// UpstreamRetryDelay observes backoff delays between attempts.
	UpstreamRetryDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upstream_retry_delay_seconds",
		Help:    "Backoff delay applied between generation attempts.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 6),
	})

	// TrackerDropped counts usage events dropped because the queue was full.
	TrackerDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usage_tracker_dropped_total",
		Help: "Usage events dropped by the async tracker.",
	})

	// TrackerFailed counts usage events that failed after retry.
	TrackerFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usage_tracker_failed_total",
		Help: "Usage events that failed permanently after retry.",
	})

	// PlanChanges counts plan-change transitions by type and outcome.
	PlanChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_changes_total",
		Help: "Plan change requests by change type and outcome.",
	}, []string{"type", "outcome"})
)
