package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogfeed_feed_results_total",
		Help: "The total number of post lists served, by where they came from",
	}, []string{"origin"})

	feedErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blogfeed_feed_errors_total",
		Help: "The total number of requests that could not be served any posts",
	})

	sharedRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blogfeed_shared_refreshes_total",
		Help: "The total number of callers that joined a refresh already in flight",
	})
)
