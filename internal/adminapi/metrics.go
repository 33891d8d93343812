package adminapi

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the cascade/tier Prometheus gauges and counters exposed at
// GET /metrics, grounded on agent/run.go's package-level metric vars
// registered once at package init.
var (
	CascadeDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permgate_cascade_decisions_total",
			Help: "Total number of cascade verdicts produced, by tier and verdict.",
		},
		[]string{"tier", "verdict"},
	)
	CascadeEvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "permgate_cascade_evaluation_duration_milliseconds",
			Help:    "Cascade turn latency in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"tier"},
	)
	HumanQueuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "permgate_human_queue_pending",
			Help: "Number of pending decisions awaiting human review.",
		},
	)
)

func init() {
	prometheus.MustRegister(CascadeDecisionsTotal)
	prometheus.MustRegister(CascadeEvaluationDuration)
	prometheus.MustRegister(HumanQueuePending)
}
