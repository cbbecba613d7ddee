package replay

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics track replay progress.
type Metrics struct {
	events    *prometheus.CounterVec
	lastBlock prometheus.Gauge
	batches   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clmm",
			Subsystem: "replay",
			Name:      "events_total",
			Help:      "Chain events replayed, by event and outcome.",
		}, []string{"event", "result"}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clmm",
			Subsystem: "replay",
			Name:      "last_processed_block",
			Help:      "Last block fully replayed.",
		}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clmm",
			Subsystem: "replay",
			Name:      "batch_duration_seconds",
			Help:      "Time spent replaying one block batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	if reg != nil {
		m.events = register(reg, m.events)
		m.lastBlock = register(reg, m.lastBlock)
		m.batches = register(reg, m.batches)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observeEvent(event, result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.events.WithLabelValues(event, result).Inc()
}

func (m *Metrics) observeBatch(lastBlock uint64, seconds float64) {
	if m == nil {
		return
	}
	m.lastBlock.Set(float64(lastBlock))
	m.batches.Observe(seconds)
}
