// Package metrics holds the process-wide Prometheus collectors shared by
// internal/torc/claim, internal/torc/orphan and internal/torc/httpapi.
// Carried as ambient observability per SPEC_FULL.md even though spec.md's
// Non-goals exclude log-bundle analysis and dashboards — metrics are not a
// dashboard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClaimLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "torc_claim_latency_seconds",
		Help: "Latency of claim_next_jobs calls.",
	})
	ReadySetSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "torc_ready_set_size",
		Help: "Number of Ready jobs per workflow at last observation.",
	}, []string{"workflow_id"})
	OrphansDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torc_orphans_detected_total",
		Help: "Total ComputeNodes reaped by the Orphan Monitor.",
	})
)

// ObserveClaimLatency is a small helper so callers can defer a single line:
// defer metrics.ObserveClaimLatency(time.Now()).
func ObserveClaimLatency(start time.Time) {
	ClaimLatency.Observe(time.Since(start).Seconds())
}
