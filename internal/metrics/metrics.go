// Package metrics holds the Prometheus collectors shared by the relay and
// the tagging pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glassmon"

type Metrics struct {
	registry *prometheus.Registry

	Connections   *prometheus.GaugeVec
	FramesRelayed prometheus.Counter
	FramesDropped prometheus.Counter
	StatusRelayed prometheus.Counter
	ControlsSent  *prometheus.CounterVec

	TaggerRuns      *prometheus.CounterVec
	TagsAssigned    prometheus.Counter
	ItemsAnnotated  prometheus.Counter
	ItemFailures    *prometheus.CounterVec
	LastTagAssigned prometheus.Gauge
}

// New registers every collector on a fresh registry so that parallel tests
// and multiple relay instances never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "connections",
			Help: "Live socket connections by role.",
		}, []string{"role"}),
		FramesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "frames_relayed_total",
			Help: "Frames fanned out to dashboards.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "frames_dropped_total",
			Help: "Frame messages dropped for missing image data.",
		}),
		StatusRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "status_relayed_total",
			Help: "Device status messages fanned out to dashboards.",
		}),
		ControlsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "controls_sent_total",
			Help: "Dashboard control commands delivered to devices.",
		}, []string{"event"}),
		TaggerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tagger", Name: "runs_total",
			Help: "Tagging passes by outcome.",
		}, []string{"outcome"}),
		TagsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tagger", Name: "tags_assigned_total",
			Help: "Tag numbers committed to defect rows.",
		}),
		ItemsAnnotated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tagger", Name: "items_annotated_total",
			Help: "Defects persisted with an annotated image.",
		}),
		ItemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tagger", Name: "item_failures_total",
			Help: "Per-item pipeline failures by stage.",
		}, []string{"stage"}),
		LastTagAssigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tagger", Name: "last_tag_number",
			Help: "Highest tag number committed by this process.",
		}),
	}
	reg.MustRegister(
		m.Connections, m.FramesRelayed, m.FramesDropped, m.StatusRelayed, m.ControlsSent,
		m.TaggerRuns, m.TagsAssigned, m.ItemsAnnotated, m.ItemFailures, m.LastTagAssigned,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
