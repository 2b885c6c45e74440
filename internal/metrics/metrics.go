package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_provider_errors_total",
		Help: "Upstream provider failures, by provider",
	}, []string{"provider"})

	FetchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_provider_fetch_seconds",
		Help:    "Time to fetch one provider's listing payload",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_cache_hits_total",
		Help: "Fresh cache hits, by feed kind",
	}, []string{"kind"})

	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_cache_misses_total",
		Help: "Cache misses that triggered a refill, by feed kind",
	}, []string{"kind"})

	StaleServes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_cache_stale_serves_total",
		Help: "Responses served from an expired cache entry after total provider failure",
	}, []string{"kind"})

	QuoteRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_quote_requests_total",
		Help: "Outbound quote requests issued by the quote pipeline",
	})

	SwapExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swap_executions_total",
		Help: "Swap executions reaching a terminal state, by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ProviderErrors,
		FetchLatency,
		CacheHits,
		CacheMisses,
		StaleServes,
		QuoteRequests,
		SwapExecutions,
	)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
