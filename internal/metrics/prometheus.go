package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notify"

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	// Session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	SchemaLookups   *prometheus.CounterVec

	// Notification metrics
	NotificationsCreated *prometheus.CounterVec
	Acknowledgements     *prometheus.CounterVec
	Promotions           prometheus.Counter
	IdempotentReplays    prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics registered on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWithRegistry(reg, reg)
}

// NewMetricsWithRegistry creates metrics registered on reg and served from gatherer
func NewMetricsWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		gatherer: gatherer,

		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_sessions_total",
				Help:      "Total number of tenant sessions by outcome",
			},
			[]string{"outcome"},
		),

		SessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tenant_session_duration_seconds",
				Help:      "Duration of tenant sessions including connection acquisition",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		SchemaLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_schema_lookups_total",
				Help:      "Tenant schema existence checks by cache result",
			},
			[]string{"result"},
		),

		NotificationsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_created_total",
				Help:      "Total number of notifications created by kind",
			},
			[]string{"kind"},
		),

		Acknowledgements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_acknowledgements_total",
				Help:      "Total number of acknowledgements by status",
			},
			[]string{"status"},
		),

		Promotions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_promotions_total",
				Help:      "Broadcasts promoted to globally read",
			},
		),

		IdempotentReplays: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotent_replays_total",
				Help:      "Create requests answered from a stored idempotency record",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RegisterPoolGauges exposes connection pool occupancy. Each func is sampled
// on scrape.
func (m *Metrics) RegisterPoolGauges(acquired, idle, total func() float64) {
	if m == nil {
		return
	}
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_acquired_connections",
		Help:      "Connections currently borrowed by tenant sessions",
	}, acquired)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_idle_connections",
		Help:      "Idle connections in the pool",
	}, idle)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_total_connections",
		Help:      "Total connections in the pool",
	}, total)
}

// RecordSession records a finished tenant session
func (m *Metrics) RecordSession(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordSchemaLookup records a schema cache hit or miss
func (m *Metrics) RecordSchemaLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SchemaLookups.WithLabelValues(result).Inc()
}

// RecordNotificationCreated counts an inserted notification
func (m *Metrics) RecordNotificationCreated(kind string) {
	if m == nil {
		return
	}
	m.NotificationsCreated.WithLabelValues(kind).Inc()
}

// RecordAcknowledgement counts an acknowledgement outcome
func (m *Metrics) RecordAcknowledgement(status string, promoted bool) {
	if m == nil {
		return
	}
	m.Acknowledgements.WithLabelValues(status).Inc()
	if promoted {
		m.Promotions.Inc()
	}
}

// RecordIdempotentReplay counts a replayed create request
func (m *Metrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplays.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
