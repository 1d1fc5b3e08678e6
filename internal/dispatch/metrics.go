package dispatch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatch counters exposed on /metrics.
type Metrics struct {
	dispatches   *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	retries      *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	batches      prometheus.Counter
	inFlight     prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg (default registry
// when nil). Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Dispatch requests by result",
		}, []string{"result"}), // result: completed|invalid|verify_failed
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_deliveries_total",
			Help: "Per-recipient delivery outcomes",
		}, []string{"provider", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_send_retries_total",
			Help: "Send attempts beyond the first",
		}, []string{"provider"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_send_duration_seconds",
			Help:    "Latency of a single provider send call",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_batches_total",
			Help: "Batches processed",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_sends_in_flight",
			Help: "Provider send calls currently in progress",
		}),
	}

	var err error
	m.dispatches = register(reg, m.dispatches, &err)
	m.deliveries = register(reg, m.deliveries, &err)
	m.retries = register(reg, m.retries, &err)
	m.sendDuration = register(reg, m.sendDuration, &err)
	m.batches = register(reg, m.batches, &err)
	m.inFlight = register(reg, m.inFlight, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, errp *error) T {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

// The methods below are no-ops on a nil *Metrics.

func (m *Metrics) dispatch(result string) {
	if m != nil {
		m.dispatches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) delivery(provider string, status Status) {
	if m != nil {
		m.deliveries.WithLabelValues(provider, string(status)).Inc()
	}
}

func (m *Metrics) retry(provider string) {
	if m != nil {
		m.retries.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) batch() {
	if m != nil {
		m.batches.Inc()
	}
}

func (m *Metrics) sendStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) sendFinished(provider string, seconds float64) {
	if m != nil {
		m.inFlight.Dec()
		m.sendDuration.WithLabelValues(provider).Observe(seconds)
	}
}
