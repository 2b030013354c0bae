// Package metrics exposes Prometheus counters for ingestion and question answering.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "compendium"

// Query outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	documents      prometheus.Counter
	chunks         prometheus.Counter
	truncations    prometheus.Counter
	embeddingBatch prometheus.Counter
	queries        *prometheus.CounterVec
	queryLatency   prometheus.Histogram
	ingestLatency  prometheus.Histogram
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents whose embeddings were stored.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Chunks embedded and stored.",
		}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_truncations_total",
			Help:      "Chunks cut to the token limit because no delimiter could split them.",
		}),
		embeddingBatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Embedding requests sent to the provider.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Questions answered, by outcome.",
		}, []string{"outcome"}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End to end latency of answering a question.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Latency of chunking, embedding and storing one document.",
			Buckets:   prometheus.ExponentialBuckets(.25, 2, 10),
		}),
	}
	reg.MustRegister(
		m.documents, m.chunks, m.truncations, m.embeddingBatch,
		m.queries, m.queryLatency, m.ingestLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// DocumentIngested records a stored document with its chunk count and ingest duration.
func (m *Metrics) DocumentIngested(chunks int, took time.Duration) {
	if m == nil {
		return
	}
	m.documents.Inc()
	m.chunks.Add(float64(chunks))
	m.ingestLatency.Observe(took.Seconds())
}

// ChunkTruncated records one truncated chunk.
func (m *Metrics) ChunkTruncated() {
	if m == nil {
		return
	}
	m.truncations.Inc()
}

// EmbeddingBatch records one provider batch request.
func (m *Metrics) EmbeddingBatch() {
	if m == nil {
		return
	}
	m.embeddingBatch.Inc()
}

// QueryAnswered records a query outcome and its latency.
func (m *Metrics) QueryAnswered(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryLatency.Observe(took.Seconds())
}
