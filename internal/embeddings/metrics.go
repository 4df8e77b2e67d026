package embeddings

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks embedding generation outcomes.
type Metrics struct {
	batches  prometheus.Counter
	texts    prometheus.Counter
	retries  prometheus.Counter
	failures *prometheus.CounterVec
}

// Collectors register with the default registry once, shared across all
// Service instances.
var (
	metricsOnce sync.Once
	metrics     *Metrics
)

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = buildMetrics()
	})
	return metrics
}

func buildMetrics() *Metrics {
	return &Metrics{
		batches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutord_embedding_batches_total",
			Help: "Embedding batches completed successfully.",
		}),
		texts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutord_embedding_texts_total",
			Help: "Texts embedded successfully.",
		}),
		retries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutord_embedding_retries_total",
			Help: "Embedding batch retry attempts.",
		}),
		failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tutord_embedding_failures_total",
			Help: "Embedding batches that failed.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) recordBatch(texts, retries int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.texts.Add(float64(texts))
	m.retries.Add(float64(retries))
}

func (m *Metrics) recordFailure(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}
