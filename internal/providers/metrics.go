package providers

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks chat outcomes across the provider chain.
type Metrics struct {
	chats       *prometheus.CounterVec
	fallbacks   prometheus.Counter
	exhaustions prometheus.Counter
}

// Collectors register with the default registry once, shared across all
// Orchestrator instances.
var (
	metricsOnce sync.Once
	metrics     *Metrics
)

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			chats: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "tutord_chat_attempts_total",
				Help: "Chat attempts per provider and outcome.",
			}, []string{"provider", "outcome"}),
			fallbacks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tutord_chat_fallbacks_total",
				Help: "Chats answered by a non-primary provider.",
			}),
			exhaustions: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tutord_chat_exhaustions_total",
				Help: "Chats that exhausted every provider.",
			}),
		}
	})
	return metrics
}

func (m *Metrics) recordChat(provider, outcome string) {
	if m == nil {
		return
	}
	m.chats.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) recordFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) recordExhaustion() {
	if m == nil {
		return
	}
	m.exhaustions.Inc()
}
