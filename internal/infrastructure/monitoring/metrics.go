package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentsdk"

// Metrics manages the Prometheus metrics.
type Metrics struct {
	TokenRefreshes    *prometheus.CounterVec
	GrantLatency      *prometheus.HistogramVec
	StoreOperations   *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	LongPollSignals   *prometheus.CounterVec
	EventsEmitted     prometheus.Counter
	DuplicatesDropped prometheus.Counter
	FeedErrors        *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of token grants by entity type and result.",
			},
			[]string{"entity_type", "result"},
		),
		GrantLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_grant_latency_seconds",
				Help:      "Latency of token grants.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity_type"},
		),
		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_store_operations_total",
				Help:      "Total number of token store operations by result.",
			},
			[]string{"operation", "result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of outbound HTTP requests.",
			},
			[]string{"method", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of outbound HTTP requests, long-poll waits included.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method"},
		),
		LongPollSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "long_poll_signals_total",
				Help:      "Outcomes of long-poll waits.",
			},
			[]string{"signal"},
		),
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_emitted_total",
			Help:      "Events handed to feed consumers.",
		}),
		DuplicatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_duplicates_dropped_total",
			Help:      "Events dropped by the deduplication filter.",
		}),
		FeedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_errors_total",
				Help:      "Feed failures by error kind.",
			},
			[]string{"kind"},
		),
	}
}

// RecordTokenRefresh records a completed grant.
func (m *Metrics) RecordTokenRefresh(entityType, result string, duration time.Duration) {
	m.TokenRefreshes.WithLabelValues(entityType, result).Inc()
	m.GrantLatency.WithLabelValues(entityType).Observe(duration.Seconds())
}

// RecordHTTPRequest records an outbound request. status 0 is reported as "error".
func (m *Metrics) RecordHTTPRequest(method string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.HTTPRequests.WithLabelValues(method, label).Inc()
	m.HTTPLatency.WithLabelValues(method).Observe(duration.Seconds())
}
