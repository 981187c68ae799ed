package monitor

import "github.com/prometheus/client_golang/prometheus"

// Prometheus monitor metrics.
var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_job_runs_total",
			Help: "Total number of monitor job runs by job and outcome.",
		},
		[]string{"job", "outcome"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_job_duration_seconds",
			Help:    "Monitor job run duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"job"},
	)
	rebootsRecommended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_reboots_recommended_total",
			Help: "Total number of times the job history recommended a reboot.",
		},
	)
	historyLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_history_length",
			Help: "Number of entries in the job run history.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobRunsTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(rebootsRecommended)
	prometheus.MustRegister(historyLength)
}

func outcome(succeeded bool) string {
	if succeeded {
		return "succeeded"
	}
	return "failed"
}
