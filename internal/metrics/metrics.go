// Package metrics exposes the gateway's Prometheus instrumentation:
// frame counters, device lifecycle gauges, and the serial ring's fill
// level, grounded on the ecosystem's standard client_golang collectors
// rather than anything teacher-specific, since the teacher repo carries
// no metrics stack of its own.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fbbus-gateway/x/shmring"
)

// Metrics bundles every collector the gateway registers.
type Metrics struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	DevicesByState *prometheus.GaugeVec
	RingFillRatio  prometheus.GaugeFunc
	StorageDropped prometheus.Counter

	registry *prometheus.Registry
}

// New constructs and registers the gateway's collectors against a fresh
// registry (not the global default, so tests can construct more than one
// without a "duplicate metrics collector registration" panic).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbbus_frames_sent_total",
			Help: "FB-Bus frames transmitted, by packet kind.",
		}, []string{"packet"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbbus_frames_received_total",
			Help: "FB-Bus frames received, by packet kind.",
		}, []string{"packet"}),
		DevicesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fbbus_devices",
			Help: "Known devices, by lifecycle state.",
		}, []string{"state"}),
		StorageDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbbus_storage_writes_dropped_total",
			Help: "Storage writes dropped by upstream.StorageBridge because its queue was full.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.FramesSent, m.FramesReceived, m.DevicesByState, m.StorageDropped)
	return m
}

// WatchRing registers a gauge reporting a shmring.Ring's fill ratio
// (Available/Cap), looked up by handle so the metrics package never needs
// to import the transport package that owns the ring.
func (m *Metrics) WatchRing(h shmring.Handle) {
	m.RingFillRatio = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fbbus_serial_ring_fill_ratio",
		Help: "Fraction of the serial RX ring currently occupied.",
	}, func() float64 {
		r := shmring.Get(h)
		if r == nil || r.Cap() == 0 {
			return 0
		}
		return float64(r.Available()) / float64(r.Cap())
	})
	m.registry.MustRegister(m.RingFillRatio)
}

// Handler returns an http.Handler serving these collectors in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
