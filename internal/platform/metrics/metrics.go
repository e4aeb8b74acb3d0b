package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	UsersCreated     prometheus.Counter
	ThreadsCreated   prometheus.Counter
	MessagesAppended prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on reg. Tests pass a fresh
// registry so parallel suites do not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadhub_users_created_total",
			Help: "Total number of user accounts created.",
		}),
		ThreadsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadhub_threads_created_total",
			Help: "Total number of threads created.",
		}),
		MessagesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadhub_messages_appended_total",
			Help: "Total number of messages appended to threads.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "threadhub_request_duration_seconds",
			Help:    "Request latency by protocol and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol", "operation"}),
	}
}

// ObserveRequest records one request latency sample.
func (m *Metrics) ObserveRequest(protocol, operation string, seconds float64) {
	m.RequestDuration.WithLabelValues(protocol, operation).Observe(seconds)
}
