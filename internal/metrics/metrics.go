// Package metrics holds the Prometheus collectors of the library service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ReconcileRuns  prometheus.Counter
	ReconcileLoans *prometheus.CounterVec

	ImportFiles *prometheus.CounterVec
	ImportRows  *prometheus.CounterVec

	EventsPublished *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh registry so
// repeated construction does not panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "library",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "overdue_runs_total",
			Help:      "Completed overdue reconciliation runs.",
		}),
		ReconcileLoans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "overdue_loans_total",
			Help:      "Loans handled by the overdue job by outcome.",
		}, []string{"outcome"}),
		ImportFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "import_files_total",
			Help:      "Uploaded import files by result.",
		}, []string{"result"}),
		ImportRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "import_rows_total",
			Help:      "Validated import rows by result.",
		}, []string{"result"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "events_published_total",
			Help:      "Broker publications by event type and result.",
		}, []string{"event_type", "result"}),
	}
}

// NewNop returns collectors registered nowhere
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
