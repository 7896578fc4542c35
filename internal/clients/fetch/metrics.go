package fetch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes Prometheus metrics for the fetch loop. It is safe
// for concurrent use.
type MetricsCollector struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	credentialRefresh  prometheus.Counter
	memoHits           prometheus.Counter
	memoMisses         prometheus.Counter
	exhaustedTotal     *prometheus.CounterVec
	noCredentialsTotal prometheus.Counter
}

// NewMetricsCollector registers the collectors on registry.
func NewMetricsCollector(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cineplex_fetch_requests_total",
				Help: "Total number of metadata API requests by response status",
			},
			[]string{"endpoint", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cineplex_fetch_request_duration_seconds",
				Help:    "Duration of single metadata API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cineplex_fetch_retries_total",
				Help: "Total number of retried attempts by reason",
			},
			[]string{"endpoint", "reason"},
		),
		credentialRefresh: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cineplex_fetch_credential_refresh_total",
				Help: "Credential refreshes forced by rejected requests",
			},
		),
		memoHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cineplex_fetch_memo_hits_total",
				Help: "Fetches answered from the memo cache",
			},
		),
		memoMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cineplex_fetch_memo_misses_total",
				Help: "Cacheable fetches not found in the memo cache",
			},
		),
		exhaustedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cineplex_fetch_exhausted_total",
				Help: "Fetches that gave up after spending the retry budget",
			},
			[]string{"endpoint"},
		),
		noCredentialsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cineplex_fetch_no_credential_total",
				Help: "Fetches aborted because no credential was available",
			},
		),
	}
}

func (m *MetricsCollector) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordRetry(endpoint string, state State) {
	m.retriesTotal.WithLabelValues(endpoint, state.String()).Inc()
}

func (m *MetricsCollector) RecordCredentialRefresh() {
	m.credentialRefresh.Inc()
}

func (m *MetricsCollector) RecordMemoHit() {
	m.memoHits.Inc()
}

func (m *MetricsCollector) RecordMemoMiss() {
	m.memoMisses.Inc()
}

func (m *MetricsCollector) RecordExhausted(endpoint string) {
	m.exhaustedTotal.WithLabelValues(endpoint).Inc()
}

func (m *MetricsCollector) RecordNoCredential() {
	m.noCredentialsTotal.Inc()
}
