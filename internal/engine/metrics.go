package engine

import "github.com/prometheus/client_golang/prometheus"

// Request outcomes used as metric labels.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
	outcomeAbandoned = "abandoned"
)

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demil_scheduler_queue_depth",
			Help: "Number of request tasks waiting in the scheduler queue.",
		},
	)

	stepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "demil_scheduler_steps_total",
			Help: "Total number of task steps advanced by the scheduler.",
		},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demil_requests_total",
			Help: "Total number of scheduled requests by route and outcome.",
		},
		[]string{"route", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "demil_request_duration_seconds",
			Help:    "Time from accept to response per route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(queueDepth, stepsTotal, requestsTotal, requestDuration)
}
