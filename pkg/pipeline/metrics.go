package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loftwing/relay/pkg/transport"
)

// Metrics exposes pipeline counters on a Prometheus registerer. A nil
// *Metrics disables collection; every method is nil-receiver safe so the
// client never branches on its presence.
type Metrics struct {
	requests  *prometheus.CounterVec
	retries   prometheus.Counter
	refreshes *prometheus.CounterVec
	inflight  prometheus.Gauge
	duration  *prometheus.HistogramVec
}

// NewMetrics creates and registers the pipeline collectors.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Completed logical requests by method and outcome.",
		}, []string{"method", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Retry attempts across all requests.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_token_refreshes_total",
			Help: "Token refresh operations by outcome.",
		}, []string{"outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_inflight_requests",
			Help: "Logical requests currently in flight.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Logical request duration, retries and refresh included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.retries, m.refreshes, m.inflight, m.duration)
	return m
}

func (m *Metrics) requestStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) requestFinished(method string, nerr *transport.NetworkError, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	outcome := "ok"
	if nerr != nil {
		outcome = string(nerr.Kind)
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) retryObserved() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) refreshObserved(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}
