package indexer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for indexing runs. A nil *Metrics records
// nothing.
//
// Metrics:
//   - repoindex_files_processed_total{outcome} - added, updated, unchanged, removed, failed
//   - repoindex_chunks_embedded_total - chunks embedded and upserted
//   - repoindex_embed_batch_duration_seconds - embed + upsert time per batch
//   - repoindex_run_duration_seconds{status} - whole-run time, success or failure
type Metrics struct {
	FilesProcessed *prometheus.CounterVec
	ChunksEmbedded prometheus.Counter
	BatchDuration  prometheus.Histogram
	RunDuration    *prometheus.HistogramVec
}

// NewMetrics creates the indexing metrics and registers them with reg.
// Passing prometheus.DefaultRegisterer exposes them on promhttp.Handler().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FilesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repoindex_files_processed_total",
				Help: "Total number of files classified or processed, by outcome",
			},
			[]string{"outcome"},
		),
		ChunksEmbedded: factory.NewCounter(prometheus.CounterOpts{
			Name: "repoindex_chunks_embedded_total",
			Help: "Total number of chunks embedded and upserted",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "repoindex_embed_batch_duration_seconds",
			Help:    "Duration of one embed and upsert batch in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repoindex_run_duration_seconds",
				Help:    "Duration of indexing runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) files(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FilesProcessed.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) batch(chunks int, d time.Duration) {
	if m == nil {
		return
	}
	m.ChunksEmbedded.Add(float64(chunks))
	m.BatchDuration.Observe(d.Seconds())
}

func (m *Metrics) run(success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.RunDuration.WithLabelValues(status).Observe(d.Seconds())
}
