package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeCached  = "cached"
	OutcomeInvalid = "invalid"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verifytx",
			Name:      "verifications_total",
			Help:      "Verification calls by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verifytx",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		},
		[]string{"result"},
	)

	persistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verifytx",
			Name:      "persistence_failures_total",
			Help:      "Cache or history writes that failed and were skipped.",
		},
		[]string{"store"},
	)

	apiRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "verifytx",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of eligibility API verify calls, including token acquisition.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

func ObserveVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

func ObservePersistenceFailure(store string) {
	persistenceFailuresTotal.WithLabelValues(store).Inc()
}

func ObserveAPIDuration(d time.Duration) {
	apiRequestDuration.Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
