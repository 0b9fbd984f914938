// Package metrics exposes retrieval and ingestion counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"policymitr/internal/rag"
)

// Recorder owns its registry so tests and multiple apps never collide on the
// default one.
type Recorder struct {
	registry *prometheus.Registry

	// RetrievalCounter counts retrievals by the path that produced evidence.
	// Labels: path (vector|lexical|none)
	RetrievalCounter *prometheus.CounterVec

	// RetrievalDuration measures a full retrieval in seconds.
	// Labels: path
	RetrievalDuration *prometheus.HistogramVec

	// EvidenceChunks observes how many chunks reached the assembler.
	EvidenceChunks prometheus.Histogram

	// StageFailures counts degraded retrieval stages.
	// Labels: stage (embed_query|index_query|fallback)
	StageFailures *prometheus.CounterVec

	// IngestedChunks counts chunks by ingestion outcome.
	// Labels: status (indexed|failed)
	IngestedChunks *prometheus.CounterVec

	// GenerationCounter counts answers by generator.
	// Labels: generator, status (success|offline)
	GenerationCounter *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		RetrievalCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policymitr_retrievals_total",
			Help: "Retrievals by evidence path.",
		}, []string{"path"}),
		RetrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policymitr_retrieval_duration_seconds",
			Help:    "Retrieval latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"path"}),
		EvidenceChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "policymitr_retrieval_evidence_chunks",
			Help:    "Evidence chunks per retrieval.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policymitr_retrieval_stage_failures_total",
			Help: "Retrieval stages that failed and degraded.",
		}, []string{"stage"}),
		IngestedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policymitr_ingested_chunks_total",
			Help: "Chunks processed during policy ingestion.",
		}, []string{"status"}),
		GenerationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policymitr_generations_total",
			Help: "Answers produced per generator.",
		}, []string{"generator", "status"}),
	}
	r.registry.MustRegister(
		r.RetrievalCounter,
		r.RetrievalDuration,
		r.EvidenceChunks,
		r.StageFailures,
		r.IngestedChunks,
		r.GenerationCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRetrieval implements rag.Observer.
func (r *Recorder) ObserveRetrieval(path rag.Path, evidence int, elapsed time.Duration) {
	r.RetrievalCounter.WithLabelValues(string(path)).Inc()
	r.RetrievalDuration.WithLabelValues(string(path)).Observe(elapsed.Seconds())
	r.EvidenceChunks.Observe(float64(evidence))
}

// ObserveStageFailure implements rag.Observer.
func (r *Recorder) ObserveStageFailure(stage rag.Stage, _ error) {
	r.StageFailures.WithLabelValues(string(stage)).Inc()
}

func (r *Recorder) ObserveIngest(indexed, failed int) {
	r.IngestedChunks.WithLabelValues("indexed").Add(float64(indexed))
	r.IngestedChunks.WithLabelValues("failed").Add(float64(failed))
}

func (r *Recorder) ObserveGeneration(generator string, offline bool) {
	status := "success"
	if offline {
		status = "offline"
	}
	r.GenerationCounter.WithLabelValues(generator, status).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ rag.Observer = (*Recorder)(nil)
