// Package metrics provides Prometheus metrics for zoneweaver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names use the zoneweaver_ prefix.
const (
	Namespace = "zoneweaver"
)

var (
	// BuildInfo exposes the running version.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information, value is always 1.",
	}, []string{"version", "go_version"})

	// ProviderOperations counts flat-record writes by outcome.
	ProviderOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "provider_operations_total",
		Help:      "Record operations issued to providers.",
	}, []string{"provider", "operation", "status"})

	// PagesFetched counts listing pages read from providers.
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pages_fetched_total",
		Help:      "Listing pages fetched from providers.",
	}, []string{"provider"})

	// JobPolls counts asynchronous job waits by outcome (complete, error, timeout).
	JobPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "job_waits_total",
		Help:      "Asynchronous job waits by outcome.",
	}, []string{"provider", "outcome"})

	// PartitionRewrites counts sibling qualifiers whose region claim was narrowed.
	PartitionRewrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "partition_rewrites_total",
		Help:      "Sibling geo record sets rewritten to keep regions exclusive.",
	}, []string{"provider"})

	// PutDuration observes the latency of record set puts.
	PutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "put_duration_seconds",
		Help:      "Duration of record set puts.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "profile"})

	// SyncRuns counts desired-state sync runs by status.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sync_runs_total",
		Help:      "Desired-state sync runs by status.",
	}, []string{"status"})

	// SyncDuration observes the duration of whole sync runs.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "sync_duration_seconds",
		Help:      "Duration of desired-state sync runs.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// ProviderAvailable is 1 when the provider passed its connectivity check.
	ProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "provider_available",
		Help:      "Whether a provider instance is initialized and reachable.",
	}, []string{"provider", "type"})

	// ProviderInitRetries counts provider initialization attempts by result.
	ProviderInitRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "provider_init_retries_total",
		Help:      "Provider initialization attempts by result.",
	}, []string{"provider", "result"})

	// ProvidersReady is the number of initialized providers.
	ProvidersReady = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "providers_ready",
		Help:      "Number of initialized provider instances.",
	})

	// ProvidersPending is the number of providers waiting for a retry.
	ProvidersPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "providers_pending",
		Help:      "Number of provider instances pending initialization.",
	})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Status returns "success" or "error" for use as a label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
