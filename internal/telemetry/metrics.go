package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsCreated          = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_jobs_created_total", Help: "Jobs created with a wallet hold"})
	JobsDequeued         = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_jobs_dequeued_total", Help: "Jobs claimed by workers"})
	SettlementsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_settlements_completed_total", Help: "Jobs settled as COMPLETED"})
	SettlementsFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_settlements_failed_total", Help: "Jobs settled as FAILED"})
	WorkerTimeouts       = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_worker_timeouts_total", Help: "Job executions cut off by the timeout"})
	ReportsDropped       = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_reports_dropped_total", Help: "Settlement reports dropped after exhausting retries"})
	InconsistenciesFound = prometheus.NewGauge(prometheus.GaugeOpts{Name: "settleq_inconsistencies", Help: "Inconsistencies found by the latest reconciliation scan"})
	FixesApplied         = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_fixes_applied_total", Help: "Manual reconciliation fixes applied"})
	RateLimitRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "settleq_rate_limit_rejects_total", Help: "Job submissions rejected by the rate limiter"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCreated,
			JobsDequeued,
			SettlementsCompleted,
			SettlementsFailed,
			WorkerTimeouts,
			ReportsDropped,
			InconsistenciesFound,
			FixesApplied,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
