// Package metrics exposes Prometheus instrumentation for the ingestion and
// retrieval pipeline.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docrag"

// Batch outcomes.
const (
	BatchSucceeded = "succeeded"
	BatchRetried   = "retried"
	BatchFailed    = "failed"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	embeddingBatches *prometheus.CounterVec
	embeddingTokens  prometheus.Counter
	chunksStored     *prometheus.CounterVec
	ingestions       *prometheus.CounterVec
	retrievals       *prometheus.CounterVec
	retrievalTime    *prometheus.HistogramVec
	jobs             *prometheus.CounterVec
}

// New registers the pipeline collectors on registry. A nil registry gets a
// fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		embeddingBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Embedding provider batch calls by outcome.",
		}, []string{"outcome"}),
		embeddingTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_tokens_total",
			Help:      "Prompt tokens billed by the embedding provider.",
		}),
		chunksStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_stored_total",
			Help:      "Chunks persisted, by owner kind and embedding state.",
		}, []string{"owner_kind", "state"}),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Ingestion runs by owner kind and result.",
		}, []string{"owner_kind", "result"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Retrieval calls by owner kind and result.",
		}, []string{"owner_kind", "result"}),
		retrievalTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval latency including the query embedding call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"owner_kind"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_jobs_total",
			Help:      "Backfill jobs processed by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.embeddingBatches,
		m.embeddingTokens,
		m.chunksStored,
		m.ingestions,
		m.retrievals,
		m.retrievalTime,
		m.jobs,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.InstrumentMetricHandler(m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) EmbeddingBatch(outcome string) {
	if m == nil {
		return
	}
	m.embeddingBatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EmbeddingTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.embeddingTokens.Add(float64(n))
}

func (m *Metrics) ChunksStored(ownerKind string, embedded, pending int) {
	if m == nil {
		return
	}
	m.chunksStored.WithLabelValues(ownerKind, "embedded").Add(float64(embedded))
	m.chunksStored.WithLabelValues(ownerKind, "pending").Add(float64(pending))
}

func (m *Metrics) Ingestion(ownerKind, result string) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(ownerKind, result).Inc()
}

func (m *Metrics) Retrieval(ownerKind, result string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(ownerKind, result).Inc()
}

// RetrievalTimer starts a latency timer; call ObserveDuration when done.
func (m *Metrics) RetrievalTimer(ownerKind string) *prometheus.Timer {
	if m == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(m.retrievalTime.WithLabelValues(ownerKind))
}

func (m *Metrics) BackfillJob(result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(strings.ToLower(result)).Inc()
}
