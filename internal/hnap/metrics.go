package hnap

import "github.com/prometheus/client_golang/prometheus"

// Prometheus HNAP client metrics.
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnap_requests_total",
			Help: "Total number of HNAP requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hnap_request_duration_seconds",
			Help:    "HNAP request round-trip duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnap_logins_total",
			Help: "Total number of HNAP login sequences by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(loginsTotal)
}

// Outcome labels.
const (
	outcomeOK        = "ok"
	outcomeTransport = "transport_error"
	outcomeProtocol  = "protocol_error"
)
