// Package metrics exposes the engine's Prometheus collectors. Every method
// is safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "overlaycast"

// Metrics groups the engine collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	connected       prometheus.Gauge
	reconnects      prometheus.Counter
	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	acks            *prometheus.CounterVec
	acksDropped     prometheus.Counter
	handleDuration  *prometheus.HistogramVec
	playerDropped   *prometheus.CounterVec
	visibleOverlays *prometheus.GaugeVec
	probes          *prometheus.CounterVec
}

// New builds and registers every collector. Go runtime and process
// collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "director_connected",
			Help: "1 while the director socket is open",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "director_reconnects_total",
			Help: "Reconnects scheduled after abnormal closure",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Inbound frames by event type",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total",
			Help: "Inbound frames no handler could take",
		}, []string{"reason"}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "acks_total",
			Help: "Acknowledgments by outcome",
		}, []string{"success"}),
		acksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "acks_dropped_total",
			Help: "Acknowledgments evicted from the offline queue before delivery",
		}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "event_handle_duration_seconds",
			Help:    "Time spent handling one event",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"type"}),
		playerDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "player_commands_dropped_total",
			Help: "Embedded player commands evicted from a full queue",
		}, []string{"overlay"}),
		visibleOverlays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "overlay_visible",
			Help: "1 while an overlay shows an item",
		}, []string{"overlay"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "media_probes_total",
			Help: "Media probes by outcome",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.connected, m.reconnects, m.framesReceived, m.framesDropped, m.acks, m.acksDropped,
		m.handleDuration, m.playerDropped, m.visibleOverlays, m.probes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format for the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) FrameReceived(eventType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(eventType).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Ack(success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.acks.WithLabelValues(label).Inc()
}

func (m *Metrics) AckDropped() {
	if m == nil {
		return
	}
	m.acksDropped.Inc()
}

// ObserveHandle records how long one event took to handle.
func (m *Metrics) ObserveHandle(eventType string, d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *Metrics) PlayerCommandDropped(overlay string) {
	if m == nil {
		return
	}
	m.playerDropped.WithLabelValues(overlay).Inc()
}

func (m *Metrics) SetVisible(overlay string, visible bool) {
	if m == nil {
		return
	}
	if visible {
		m.visibleOverlays.WithLabelValues(overlay).Set(1)
		return
	}
	m.visibleOverlays.WithLabelValues(overlay).Set(0)
}

func (m *Metrics) Probe(ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.probes.WithLabelValues(outcome).Inc()
}
