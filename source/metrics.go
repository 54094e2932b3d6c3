package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogfeed_upstream_requests_total",
		Help: "The total number of requests sent to the upstream feed, by outcome",
	}, []string{"source", "outcome"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blogfeed_upstream_request_duration_seconds",
		Help:    "Duration of single upstream feed requests",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // Start at 50ms, double each bucket, 10 buckets
	}, []string{"source"})

	upstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogfeed_upstream_retries_total",
		Help: "The total number of retries scheduled after a failed upstream request",
	}, []string{"source"})
)

func observeOutcome(source string, err error) {
	outcome := "ok"
	if kind, ok := KindOf(err); ok {
		outcome = kind.String()
	} else if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(source, outcome).Inc()
}
