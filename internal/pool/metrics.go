package pool

import (
	"errors"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every pool of a process and labelled by pool id.
type Metrics struct {
	operations *prometheus.CounterVec
	crossings  *prometheus.HistogramVec
	liquidity  *prometheus.GaugeVec
	tick       *prometheus.GaugeVec
	price      *prometheus.GaugeVec
}

// NewMetrics registers the pool collectors with reg. Collectors that are
// already registered are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clmm",
			Name:      "operations_total",
			Help:      "Pool operations by type and outcome.",
		}, []string{"pool", "op", "result"}),
		crossings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clmm",
			Name:      "swap_tick_crossings",
			Help:      "Initialized ticks crossed per swap.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"pool"}),
		liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clmm",
			Name:      "active_liquidity",
			Help:      "Liquidity active at the current price.",
		}, []string{"pool"}),
		tick: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clmm",
			Name:      "current_tick",
			Help:      "Current tick of the pool.",
		}, []string{"pool"}),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clmm",
			Name:      "price",
			Help:      "Current price of asset A in asset B.",
		}, []string{"pool"}),
	}
	if reg == nil {
		return m
	}
	m.operations = register(reg, m.operations)
	m.crossings = register(reg, m.crossings)
	m.liquidity = register(reg, m.liquidity)
	m.tick = register(reg, m.tick)
	m.price = register(reg, m.price)
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

func (m *Metrics) observeOperation(poolID, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = ErrorKind(err)
	}
	m.operations.WithLabelValues(poolID, op, result).Inc()
}

func (m *Metrics) observeSwap(poolID string, crossings int) {
	if m == nil {
		return
	}
	m.crossings.WithLabelValues(poolID).Observe(float64(crossings))
}

func (m *Metrics) observeStatus(poolID string, s Status) {
	if m == nil {
		return
	}
	liquidity, _ := new(big.Float).SetInt(s.Liquidity.ToBig()).Float64()
	m.liquidity.WithLabelValues(poolID).Set(liquidity)
	m.tick.WithLabelValues(poolID).Set(float64(s.Tick))
	price, _ := s.Price().Float64()
	m.price.WithLabelValues(poolID).Set(price)
}
