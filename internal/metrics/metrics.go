// Package metrics wires Prometheus collectors for the nearby-gossip core.
// Every instance gets its own prometheus.Registry rather than touching the
// global default one, so tests (and multiple in-process nodes) don't
// collide on metric registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every nearbyd Prometheus collector.
type Metrics struct {
	Registry *prometheus.Registry

	// Rendezvous Selector outcomes.
	RendezvousSwitchTotal *prometheus.CounterVec

	// Connection-State Loop transitions.
	ConnStateTransitionsTotal *prometheus.CounterVec
	ConnStateCurrent          *prometheus.GaugeVec
	ActivePeerCount           prometheus.Gauge

	// Blob Dispatcher fetch outcomes.
	BlobFetchTotal           *prometheus.CounterVec
	BlobFetchDurationSeconds *prometheus.HistogramVec

	// Document Session insert classification.
	InsertsClassifiedTotal *prometheus.CounterVec

	// mDNS radio discovery events.
	MDNSDiscoveredTotal *prometheus.CounterVec

	// Document rotations.
	DocumentRotationsTotal *prometheus.CounterVec

	BuildInfo *prometheus.GaugeVec
}

// New creates a Metrics instance with all collectors registered on an
// isolated registry. version and goVersion are recorded as labels on the
// nearbyd_info gauge.
func New(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RendezvousSwitchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearbyd_rendezvous_switch_total",
				Help: "Total number of evaluate_peers_for_connection calls, by outcome.",
			},
			[]string{"result"},
		),

		ConnStateTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearbyd_connstate_transitions_total",
				Help: "Total number of Connection-State Loop transitions, by destination state.",
			},
			[]string{"state"},
		),
		ConnStateCurrent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nearbyd_connstate_current",
				Help: "1 if the Connection-State Loop is currently in the given state, else 0.",
			},
			[]string{"state"},
		),
		ActivePeerCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nearbyd_active_peer_count",
				Help: "Number of sync peers seen within the liveness window.",
			},
		),

		BlobFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearbyd_blob_fetch_total",
				Help: "Total number of Blob Dispatcher fetches, by outcome.",
			},
			[]string{"result"},
		),
		BlobFetchDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nearbyd_blob_fetch_duration_seconds",
				Help:    "Duration of Blob Dispatcher fetches in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"result"},
		),

		InsertsClassifiedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearbyd_inserts_classified_total",
				Help: "Total number of document inserts released past completeness gating, by classified handler.",
			},
			[]string{"handler"},
		),

		MDNSDiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearbyd_mdns_discovered_total",
				Help: "Total mDNS discovery events by result.",
			},
			[]string{"result"},
		),

		DocumentRotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearbyd_document_rotations_total",
				Help: "Total number of active-document rotations, by reason.",
			},
			[]string{"reason"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nearbyd_info",
				Help: "Build information for the running nearbyd instance.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.RendezvousSwitchTotal,
		m.ConnStateTransitionsTotal,
		m.ConnStateCurrent,
		m.ActivePeerCount,
		m.BlobFetchTotal,
		m.BlobFetchDurationSeconds,
		m.InsertsClassifiedTotal,
		m.MDNSDiscoveredTotal,
		m.DocumentRotationsTotal,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)

	return m
}

// Handler returns an http.Handler that serves the Prometheus metrics
// endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
