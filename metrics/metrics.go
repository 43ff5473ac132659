package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration tracks wall time of each pipeline stage
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "video_agent_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 12), // 0.5s to ~17min
	}, []string{"stage"})

	// StageFailures counts failed stages
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_agent_stage_failures_total",
		Help: "Total pipeline stage failures",
	}, []string{"stage"})

	// RunsTotal counts finished runs by result
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_agent_runs_total",
		Help: "Total finished pipeline runs",
	}, []string{"result"})

	// RunsInFlight is the number of runs currently executing
	RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video_agent_runs_in_flight",
		Help: "Pipeline runs currently executing",
	})

	// PollerChecks counts status checks against async generation providers
	PollerChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_agent_poller_checks_total",
		Help: "Total async job status checks",
	}, []string{"outcome"})

	// LedgerWriteFailures counts best-effort ledger writes that failed
	LedgerWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_agent_ledger_write_failures_total",
		Help: "Total failed status ledger writes",
	})

	// ProviderRequests counts outbound provider calls
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_agent_provider_requests_total",
		Help: "Total outbound provider requests",
	}, []string{"provider", "result"})
)

// ObserveProvider records one provider call outcome.
func ObserveProvider(provider string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderRequests.WithLabelValues(provider, result).Inc()
}
