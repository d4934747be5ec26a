// Package metrics exports handle lifecycle and call statistics to
// Prometheus.
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.New(reg)
//	rt, err := runtime.New(ctx, runtime.WithObserver(m), runtime.WithCallObserver(m))
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/handle"
)

const namespace = "wasmbridge"

// Collector implements handle.Observer and runtime.CallObserver.
type Collector struct {
	live     *prometheus.GaugeVec
	created  *prometheus.CounterVec
	released *prometheus.CounterVec
	borrows  prometheus.Gauge
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// New creates a collector and registers it with reg. If reg is also a
// prometheus.Gatherer, Handler serves it.
func New(reg prometheus.Registerer) (*Collector, error) {
	m := &Collector{
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handles_live",
			Help:      "number of live handles by kind",
		}, []string{"kind"}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_created_total",
			Help:      "number of handles created by kind",
		}, []string{"kind"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_released_total",
			Help:      "number of handles released by kind",
		}, []string{"kind"}),
		borrows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "module_borrows",
			Help:      "number of outstanding instance borrows on modules",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "number of function calls by function and outcome",
		}, []string{"function", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "wall time of function calls",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"function"}),
	}

	err := multierr.Combine(
		reg.Register(m.live),
		reg.Register(m.created),
		reg.Register(m.released),
		reg.Register(m.borrows),
		reg.Register(m.calls),
		reg.Register(m.duration),
	)
	if err != nil {
		return nil, err
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m, nil
}

// OnHandleEvent implements handle.Observer.
func (m *Collector) OnHandleEvent(e handle.Event) {
	kind := e.Handle.Kind().String()
	switch e.Type {
	case handle.EventCreated:
		m.created.WithLabelValues(kind).Inc()
		m.live.WithLabelValues(kind).Inc()
	case handle.EventReleased:
		m.released.WithLabelValues(kind).Inc()
		m.live.WithLabelValues(kind).Dec()
	case handle.EventBorrowed:
		m.borrows.Inc()
	case handle.EventBorrowReturned:
		m.borrows.Dec()
	}
}

// ObserveCall implements runtime.CallObserver.
func (m *Collector) ObserveCall(name string, elapsed time.Duration, err error) {
	m.calls.WithLabelValues(name, Outcome(err)).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// Outcome labels a call result: "ok", or the error kind ("trap", "marshal", ...).
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := errors.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// Handler serves the registry the collector was registered with. It returns
// nil if that registry cannot be gathered.
func (m *Collector) Handler() http.Handler {
	if m.gatherer == nil {
		return nil
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
