package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "elan2mqtt"

// Label values for the commands and events counters.
const (
	resultRelayed   = "relayed"
	resultDropped   = "dropped"
	resultInvalid   = "invalid"
	resultFailed    = "failed"
	resultHandled   = "handled"
	resultUnknown   = "unknown"
	resultMalformed = "malformed"
)

// Label values for the inbound drop counter.
const (
	sourceMQTT      = "mqtt"
	sourceHubEvents = "hub_events"
)

// Metrics holds the bridge's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	statusPublished    prometheus.Counter
	statusFailures     prometheus.Counter
	discoveryPublished prometheus.Counter
	commands           *prometheus.CounterVec
	events             *prometheus.CounterVec
	inboundDropped     *prometheus.CounterVec
	relogins           prometheus.Counter
	restarts           prometheus.Counter
	sessionUp          prometheus.Gauge
	devices            prometheus.Gauge
}

// NewMetrics creates and registers the bridge collectors, plus the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		statusPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "status_published_total",
			Help:      "Device states published to MQTT",
		}),
		statusFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "status_failures_total",
			Help:      "Device state reads or publishes that failed",
		}),
		discoveryPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "discovery_published_total",
			Help:      "Home Assistant discovery documents published",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "MQTT commands by result",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hub_events_total",
			Help:      "Hub WebSocket events by result",
		}, []string{"result"}),
		inboundDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inbound_dropped_total",
			Help:      "Inbound MQTT messages or hub events lost to a full queue",
		}, []string{"source"}),
		relogins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hub_relogins_total",
			Help:      "Hub re-authentications after the initial login",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_restarts_total",
			Help:      "Sessions ended by an error",
		}),
		sessionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "session_up",
			Help:      "1 while a session is running",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "devices",
			Help:      "Devices in the current registry",
		}),
	}

	m.registry.MustRegister(
		m.statusPublished,
		m.statusFailures,
		m.discoveryPublished,
		m.commands,
		m.events,
		m.inboundDropped,
		m.relogins,
		m.restarts,
		m.sessionUp,
		m.devices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the bridge collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
