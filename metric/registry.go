// Package metric owns the hub's Prometheus registry and the core metrics
// every subsystem reports into. Subsystems register their own collectors
// through the registry so metric names stay collision-checked in one place.
package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/fastbot/errors"
)

// Registry manages the registration and lifecycle of hub metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Core               *Core
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates a metrics registry with the core hub metrics and Go
// runtime collectors pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		registered:         make(map[string]prometheus.Collector),
	}

	r.Core = NewCore()
	r.Core.register(r.prometheusRegistry)

	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler returns the HTTP handler exposing the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// Register adds a subsystem collector under subsystem.name, rejecting
// duplicates.
func (r *Registry) Register(subsystem, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", subsystem, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered", key),
			"Registry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapInvalid(err, "Registry", "Register",
				fmt.Sprintf("prometheus conflict for metric %s", key))
		}
		return errors.WrapFatal(err, "Registry", "Register", "prometheus registration")
	}

	r.registered[key] = c
	return nil
}

// Unregister removes a subsystem collector, reporting whether it existed.
func (r *Registry) Unregister(subsystem, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", subsystem, name)
	c, exists := r.registered[key]
	if !exists {
		return false
	}
	r.prometheusRegistry.Unregister(c)
	delete(r.registered, key)
	return true
}

// Core holds the hub-level metrics shared across subsystems.
type Core struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	HandshakeRejected *prometheus.CounterVec

	FramesReceived   *prometheus.CounterVec
	EventsDispatched prometheus.Counter
	DispatchDropped  prometheus.Counter

	CallsPending  prometheus.Gauge
	CallsTotal    *prometheus.CounterVec
	CallDuration  prometheus.Histogram
	HandlerErrors prometheus.Counter
}

// NewCore creates the core hub metrics.
func NewCore() *Core {
	return &Core{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastbot", Subsystem: "gateway",
			Name: "connections_active",
			Help: "Number of live bot connections",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "gateway",
			Name: "connections_total",
			Help: "Total accepted bot connections",
		}),
		HandshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "gateway",
			Name: "handshake_rejected_total",
			Help: "Handshakes rejected, by reason",
		}, []string{"reason"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "gateway",
			Name: "frames_received_total",
			Help: "Inbound frames, by classification",
		}, []string{"kind"}),
		EventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "dispatch",
			Name: "events_total",
			Help: "Events handed to the plugin pipeline",
		}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "dispatch",
			Name: "dropped_total",
			Help: "Inbound events dropped because the dispatch queue was full",
		}),
		CallsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastbot", Subsystem: "rpc",
			Name: "calls_pending",
			Help: "Outbound calls awaiting a response",
		}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "rpc",
			Name: "calls_total",
			Help: "Outbound calls, by outcome",
		}, []string{"status"}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fastbot", Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Round-trip time of outbound calls",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		}),
		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "dispatch",
			Name: "handler_errors_total",
			Help: "Handler failures isolated by the pipeline",
		}),
	}
}

// register registers all core metrics with the prometheus registry.
func (c *Core) register(reg *prometheus.Registry) {
	reg.MustRegister(
		c.ConnectionsActive,
		c.ConnectionsTotal,
		c.HandshakeRejected,
		c.FramesReceived,
		c.EventsDispatched,
		c.DispatchDropped,
		c.CallsPending,
		c.CallsTotal,
		c.CallDuration,
		c.HandlerErrors,
	)
}
