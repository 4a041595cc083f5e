// Package metrics defines the Prometheus collectors of the answer engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine collectors.
type Metrics struct {
	Answers        *prometheus.CounterVec
	ModelLoads     *prometheus.CounterVec
	ModelLoadTime  *prometheus.HistogramVec
	SemanticSearch *prometheus.HistogramVec
	IndexBuilds    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placementqa",
			Name:      "answers_total",
			Help:      "Answers returned, by source.",
		}, []string{"source"}),
		ModelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placementqa",
			Name:      "model_loads_total",
			Help:      "Embedding model loads, by model and outcome.",
		}, []string{"model", "outcome"}),
		ModelLoadTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "placementqa",
			Name:      "model_load_seconds",
			Help:      "Time spent loading embedding models.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"model"}),
		SemanticSearch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "placementqa",
			Name:      "semantic_search_seconds",
			Help:      "Latency of semantic search, including passage encoding on first use.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		IndexBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placementqa",
			Name:      "index_builds_total",
			Help:      "Passage vector spaces built, by model and origin (encoded or cache).",
		}, []string{"model", "origin"}),
	}
	if reg != nil {
		reg.MustRegister(m.Answers, m.ModelLoads, m.ModelLoadTime, m.SemanticSearch, m.IndexBuilds)
	}
	return m
}

// ObserveModelLoad records one factory run; it matches the embedding
// registry load hook signature.
func (m *Metrics) ObserveModelLoad(model string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ModelLoads.WithLabelValues(model, outcome).Inc()
	m.ModelLoadTime.WithLabelValues(model).Observe(d.Seconds())
}
