// Package metric provides Prometheus metrics for dzmesh.
//
// It exposes metrics in Prometheus format for monitoring message flow,
// cached expeditions, invites, zone links and the admin API.
package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/dzmesh-go/internal/protocol"
)

const namespace = "dzmesh"

// Registry holds all application metrics.
//
// One Registry serves as the service.Observer and as the metrics sink of
// the world hub and the zone link.
type Registry struct {
	registry *prometheus.Registry

	// Replication
	messagesHandled *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec

	// State
	expeditionsCached prometheus.Gauge
	invites           *prometheus.CounterVec

	// Links
	zonesConnected prometheus.Gauge
	linkUp         prometheus.Gauge
	outboxDepth    prometheus.Gauge

	// Admin API
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with all dzmesh metrics and the Go
// runtime and process collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		messagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "messages_handled_total",
			Help:      "Inbound replication messages by opcode and outcome",
		}, []string{"opcode", "outcome"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Frames written to a websocket link",
		}, []string{"opcode"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Frames read from a websocket link",
		}, []string{"opcode"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by reason",
		}, []string{"reason"}),

		expeditionsCached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "expeditions_cached",
			Help:      "Expeditions held in the in-memory registry",
		}),
		invites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "invites_total",
			Help:      "Invite flow results by outcome",
		}, []string{"outcome"}),

		zonesConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "zones_connected",
			Help:      "Zone processes linked to the world",
		}),
		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "up",
			Help:      "1 while the zone is linked to the world",
		}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "outbox_frames",
			Help:      "Frames spooled while the world link is down",
		}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin HTTP requests by route and status",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.messagesHandled,
		r.framesSent,
		r.framesReceived,
		r.framesDropped,
		r.expeditionsCached,
		r.invites,
		r.zonesConnected,
		r.linkUp,
		r.outboxDepth,
		r.requestsTotal,
		r.requestDuration,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ============================================================================
// service.Observer
// ============================================================================

func (r *Registry) MessageHandled(op protocol.Opcode, outcome string) {
	r.messagesHandled.WithLabelValues(op.String(), outcome).Inc()
}

func (r *Registry) InviteOutcome(outcome string) {
	r.invites.WithLabelValues(outcome).Inc()
}

func (r *Registry) ExpeditionsCached(n int) {
	r.expeditionsCached.Set(float64(n))
}

// ============================================================================
// hub.Metrics and zonelink.Metrics
// ============================================================================

func (r *Registry) FrameSent(op protocol.Opcode) {
	r.framesSent.WithLabelValues(op.String()).Inc()
}

func (r *Registry) FrameReceived(op protocol.Opcode) {
	r.framesReceived.WithLabelValues(op.String()).Inc()
}

func (r *Registry) FrameDropped(reason string) {
	r.framesDropped.WithLabelValues(reason).Inc()
}

func (r *Registry) ZonesConnected(n int) {
	r.zonesConnected.Set(float64(n))
}

func (r *Registry) LinkUp(up bool) {
	if up {
		r.linkUp.Set(1)
		return
	}
	r.linkUp.Set(0)
}

func (r *Registry) Spooled(n int) {
	r.outboxDepth.Set(float64(n))
}

// ============================================================================
// Admin API
// ============================================================================

// ObserveRequest records one admin HTTP request.
func (r *Registry) ObserveRequest(route string, status int, elapsed time.Duration) {
	r.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
