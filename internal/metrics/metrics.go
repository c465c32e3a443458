package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printpress_jobs_processed_total",
			Help: "Outbox jobs processed by outcome and type",
		},
		[]string{"outcome", "type"},
	)

	jobsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "printpress_jobs_reclaimed_total",
			Help: "PROCESSING jobs swept back to PENDING after a worker crash",
		},
	)

	providerSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printpress_provider_sends_total",
			Help: "Provider send attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "printpress_dispatch_cycle_duration_seconds",
			Help:    "Wall-clock duration of one dispatch cycle",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordJobProcessed records a job outcome (done, skipped, retried, failed).
func RecordJobProcessed(outcome, jobType string) {
	jobsProcessed.WithLabelValues(outcome, jobType).Inc()
}

// RecordJobsReclaimed records jobs recovered from a crashed worker.
func RecordJobsReclaimed(n int64) {
	jobsReclaimed.Add(float64(n))
}

// RecordProviderSend records one provider call result.
func RecordProviderSend(provider, result string) {
	providerSends.WithLabelValues(provider, result).Inc()
}

// RecordCycle records the duration of one dispatch cycle.
func RecordCycle(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}
