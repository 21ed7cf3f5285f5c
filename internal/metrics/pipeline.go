package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsrag",
			Name:      "cache_total",
			Help:      "Answer cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsrag",
			Name:      "provider_requests_total",
			Help:      "External search provider calls",
		},
		[]string{"provider", "status"},
	)

	ProviderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsrag",
			Name:      "provider_failures_total",
			Help:      "External search provider failures by reason",
		},
		[]string{"provider", "reason"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsrag",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	StoreDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsrag",
			Name:      "store_degraded_total",
			Help:      "Requests served with the internal store unreachable",
		},
	)

	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsrag",
			Name:      "gate_escalations_total",
			Help:      "Relevance gate escalations to external search by reason",
		},
		[]string{"reason"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once
// from main; repeated calls are no-ops so tests can share a process.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderFailuresTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(StoreDegradedTotal)
	prometheus.MustRegister(EscalationsTotal)
	pipelineMetricsRegistered = true
}
