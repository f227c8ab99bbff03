// Package metrics exposes Prometheus counters for the recognition session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the session counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	PackageFetches  *prometheus.CounterVec
	EngineCreations *prometheus.CounterVec
	CachePurges     *prometheus.CounterVec
	HandleReuses    prometheus.Counter
	SharedWaits     prometheus.Counter
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		PackageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "package_fetches_total",
			Help:      "Recognition package downloads by result.",
		}, []string{"result"}),
		EngineCreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "engine_creations_total",
			Help:      "Recognizer instantiations by result.",
		}, []string{"result"}),
		CachePurges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "cache_purges_total",
			Help:      "Stale package cache purges by result.",
		}, []string{"result"}),
		HandleReuses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "recognizer_reuses_total",
			Help:      "GetRecognizer calls served from the ready handle.",
		}),
		SharedWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "recognizer_shared_waits_total",
			Help:      "GetRecognizer calls whose creation result was shared with other callers.",
		}),
	}
	reg.MustRegister(m.PackageFetches, m.EngineCreations, m.CachePurges, m.HandleReuses, m.SharedWaits)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Fetch(err error) {
	if m == nil {
		return
	}
	m.PackageFetches.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Create(err error) {
	if m == nil {
		return
	}
	m.EngineCreations.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Purge(err error) {
	if m == nil {
		return
	}
	m.CachePurges.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Reuse() {
	if m == nil {
		return
	}
	m.HandleReuses.Inc()
}

func (m *Metrics) SharedWait() {
	if m == nil {
		return
	}
	m.SharedWaits.Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
