// Package metrics exposes Prometheus collectors for the engine.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cognicore/semnorm/pkg/semnorm/embed"
)

const (
	namespace = "semnorm"
)

// Metrics groups the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	classifications *prometheus.CounterVec
	mappings        *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	embedDuration   *prometheus.HistogramVec
	embedTexts      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "tables_total",
			Help:      "Total number of classified tables by table type",
		}, []string{"table_type"}),
		mappings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapping",
			Name:      "columns_total",
			Help:      "Total number of mapped columns by status",
		}, []string{"status"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entity",
			Name:      "resolutions_total",
			Help:      "Total number of entity resolutions by type and method",
		}, []string{"entity_type", "method"}),
		embedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embed",
			Name:      "batch_duration_seconds",
			Help:      "Duration of embedding batches in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // from 1ms to ~16s
		}, []string{"provider", "outcome"}),
		embedTexts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embed",
			Name:      "texts_total",
			Help:      "Total number of texts sent to the embedding provider",
		}, []string{"provider"}),
	}
	for _, c := range []prometheus.Collector{m.classifications, m.mappings, m.resolutions, m.embedDuration, m.embedTexts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveClassification counts one classified table.
func (m *Metrics) ObserveClassification(tableType string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(tableType).Inc()
}

// ObserveMapping counts one mapped column.
func (m *Metrics) ObserveMapping(status string) {
	if m == nil {
		return
	}
	m.mappings.WithLabelValues(status).Inc()
}

// ObserveResolution counts one resolved entity value.
func (m *Metrics) ObserveResolution(entityType, method string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(entityType, method).Inc()
}

// InstrumentProvider wraps p so every batch is timed. With a nil m it
// returns p unchanged.
func (m *Metrics) InstrumentProvider(p embed.Provider) embed.Provider {
	if m == nil {
		return p
	}
	return &instrumented{inner: p, m: m}
}

type instrumented struct {
	inner embed.Provider
	m     *Metrics
}

func (p *instrumented) Embed(ctx context.Context, texts []string) ([]embed.Vector, error) {
	start := time.Now()
	vecs, err := p.inner.Embed(ctx, texts)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	name := p.inner.Name()
	p.m.embedDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
	p.m.embedTexts.WithLabelValues(name).Add(float64(len(texts)))
	return vecs, err
}

func (p *instrumented) Dimensions() int { return p.inner.Dimensions() }

func (p *instrumented) Name() string { return p.inner.Name() }
