// Package metrics exposes blotter counters in the Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"emsxbridge.com/internal/domain"
	"emsxbridge.com/internal/emsx"
)

type Metrics struct {
	registry *prometheus.Registry

	Updates         *prometheus.CounterVec
	Heartbeats      *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FillsStored     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emsx_updates_total",
			Help: "Order and route updates received on the subscriptions.",
		}, []string{"kind", "status"}),
		Heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emsx_heartbeats_total",
			Help: "Subscription heartbeats received.",
		}, []string{"kind"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emsx_requests_total",
			Help: "EMSX requests issued through the HTTP API.",
		}, []string{"operation", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emsx_request_duration_seconds",
			Help:    "EMSX request round trip in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation"}),
		FillsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emsx_fills_stored_total",
			Help: "New fills stored by fill synchronisation.",
		}),
	}

	m.registry.MustRegister(
		m.Updates,
		m.Heartbeats,
		m.Requests,
		m.RequestDuration,
		m.FillsStored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// HandleUpdate counts one subscription update.
func (m *Metrics) HandleUpdate(u emsx.Update) {
	m.Updates.WithLabelValues(string(u.Kind), u.Status.String()).Inc()
}

func (m *Metrics) HandleHeartbeat(kind emsx.TopicKind) {
	m.Heartbeats.WithLabelValues(string(kind)).Inc()
}

// ObserveRequest records the outcome of one request: ok, rejected,
// invalid, unavailable or error.
func (m *Metrics) ObserveRequest(operation string, elapsed time.Duration, err error) {
	m.Requests.WithLabelValues(operation, outcome(err)).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) AddFillsStored(n int) {
	if n > 0 {
		m.FillsStored.Add(float64(n))
	}
}

func outcome(err error) string {
	var appErr *domain.AppError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRequestRejected):
		return "rejected"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.As(err, &appErr) && appErr.Code == http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "error"
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
