package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"proposalpay/core/events"
)

type lifecycleMetrics struct {
	events *prometheus.CounterVec
}

var (
	lifecycleMetricsOnce sync.Once
	lifecycleRegistry    *lifecycleMetrics
)

// Lifecycle returns the metrics registry tracking proposal lifecycle events.
func Lifecycle() *lifecycleMetrics {
	lifecycleMetricsOnce.Do(func() {
		lifecycleRegistry = &lifecycleMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "proposalpay",
				Subsystem: "events",
				Name:      "lifecycle_total",
				Help:      "Count of proposal lifecycle events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(lifecycleRegistry.events)
	})
	return lifecycleRegistry
}

// Record increments the lifecycle counter for the supplied event type.
func (m *lifecycleMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

// MetricsEmitter counts every emitted engine event. It is meant to sit in a
// fanout next to the audit recorder.
type MetricsEmitter struct{}

// Emit implements events.Emitter.
func (MetricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Lifecycle().Record(evt.EventType())
}
