package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	cacheInvalidate  prometheus.Counter
	notifications    *prometheus.CounterVec
	catalogRefreshes *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_tracker",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "process_tracker",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_tracker",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Failed requests by route, method and error code.",
		}, []string{"route", "method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_tracker",
			Subsystem: "movement",
			Name:      "transitions_total",
			Help:      "Process transitions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_tracker",
			Subsystem: "responsibility_cache",
			Name:      "requests_total",
			Help:      "Responsibility cache lookups by result.",
		}, []string{"result"}),
		cacheInvalidate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "process_tracker",
			Subsystem: "responsibility_cache",
			Name:      "invalidate_total",
			Help:      "Responsibility cache invalidations.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_tracker",
			Subsystem: "notifications",
			Name:      "dispatch_total",
			Help:      "Notification dispatches by outcome.",
		}, []string{"outcome"}),
		catalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_tracker",
			Subsystem: "catalog",
			Name:      "refresh_total",
			Help:      "Department catalog refreshes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.requestDuration,
			m.errors,
			m.transitions,
			m.cacheRequests,
			m.cacheInvalidate,
			m.notifications,
			m.catalogRefreshes,
		)
	}
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordTransition counts a movement operation outcome.
func (m *Metrics) RecordTransition(operation string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome(err)).Inc()
}

// RecordCacheRequest counts a responsibility cache hit or miss.
func (m *Metrics) RecordCacheRequest(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// RecordCacheInvalidate counts a responsibility cache invalidation.
func (m *Metrics) RecordCacheInvalidate() {
	if m == nil {
		return
	}
	m.cacheInvalidate.Inc()
}

// RecordNotificationDispatch counts a notification batch outcome.
func (m *Metrics) RecordNotificationDispatch(err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome(err)).Inc()
}

// RecordCatalogRefresh counts a catalog refresh by trigger (poll, push, write).
func (m *Metrics) RecordCatalogRefresh(trigger string, err error) {
	if m == nil {
		return
	}
	m.catalogRefreshes.WithLabelValues(trigger, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
