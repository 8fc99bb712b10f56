// Package observability provides Prometheus metrics for the dirigent
// coordination core.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference
// latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// ProviderCallDuration records per-provider call duration in seconds.
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirigent_provider_call_duration_seconds",
			Help:    "Provider call duration",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "status"},
	)

	// ProviderHealthy reports per-provider routability (1 = receives
	// traffic, 0 = unhealthy).
	ProviderHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dirigent_provider_healthy",
			Help: "Provider health (1 routable, 0 unhealthy)",
		},
		[]string{"provider"},
	)

	// ProviderFallbacksTotal counts completions that fell past the
	// highest-priority provider.
	ProviderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_provider_fallbacks_total",
			Help: "Completions served after at least one failed attempt",
		},
		[]string{"provider"},
	)

	// UsageCostTotal accumulates recorded cost by provider.
	UsageCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_usage_cost_total",
			Help: "Recorded completion cost",
		},
		[]string{"provider"},
	)

	// PoolActiveWorkers tracks the worker pool's active worker count.
	PoolActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirigent_pool_active_workers",
			Help: "Active workers in the pool",
		},
	)

	// PoolQueueDepth tracks the worker pool's queue depth.
	PoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirigent_pool_queue_depth",
			Help: "Queued tasks awaiting a worker",
		},
	)

	// GenerationDuration records creative generation duration in seconds.
	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dirigent_generation_duration_seconds",
			Help:    "Creative generation duration",
			Buckets: LLMBuckets,
		},
	)

	// CoordinationDuration records end-to-end coordination latency in
	// seconds by task kind and final status.
	CoordinationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirigent_coordination_duration_seconds",
			Help:    "End-to-end coordination latency",
			Buckets: LLMBuckets,
		},
		[]string{"kind", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ProviderCallDuration,
		ProviderHealthy,
		ProviderFallbacksTotal,
		UsageCostTotal,
		PoolActiveWorkers,
		PoolQueueDepth,
		GenerationDuration,
		CoordinationDuration,
	)
}
