// Package metrics holds the gateway's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gpsgateway"

// Frame results.
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultStoreErr  = "storage_error"
)

type Metrics struct {
	registry *prometheus.Registry

	Frames         *prometheus.CounterVec
	ReportsStored  *prometheus.CounterVec
	StorageErrors  *prometheus.CounterVec
	CommandsSent   prometheus.Counter
	CommandErrors  prometheus.Counter
	ActiveSessions prometheus.Gauge
	Connections    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames received, by transport and result.",
		}, []string{"transport", "result"}),
		ReportsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_stored_total",
			Help:      "Location reports persisted, by transport.",
		}, []string{"transport"}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Persistence failures, by operation.",
		}, []string{"op"}),
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to a device connection.",
		}),
		CommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_write_errors_total",
			Help:      "Command writes that failed after the command was claimed.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Devices currently bound to a TCP connection.",
		}),
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tcp_connections_total",
			Help:      "Accepted TCP connections.",
		}),
	}

	m.registry.MustRegister(
		m.Frames,
		m.ReportsStored,
		m.StorageErrors,
		m.CommandsSent,
		m.CommandErrors,
		m.ActiveSessions,
		m.Connections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
