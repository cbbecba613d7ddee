// Package aggregate folds the operation journal into per-pool time windows:
// volume, fees, tick crossings, liquidity churn, closing TVL and fee APR.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage"
)

// StateStore persists the timestamp up to which the journal is aggregated.
// storage.StateFile and storage.StateRow implement it.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// MetricsSink receives finished windows. postgres.Store implements it.
type MetricsSink interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	// RecomputeFrom, when set, restarts aggregation at this timestamp.
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator turns journal records into window metrics.
type Aggregator struct {
	cfg          Config
	sink         MetricsSink
	decimals     *TokenDecimals
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	watermark    uint64
}

func NewAggregator(cfg Config, sink MetricsSink, decimals *TokenDecimals, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if decimals == nil {
		decimals = NewTokenDecimals(nil, logger)
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		decimals:     decimals,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates every record of the journal at journalPath newer than the
// stored watermark.
func (a *Aggregator) Run(ctx context.Context, journalPath string) error {
	if a.sink == nil {
		return fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}
	a.watermark = startTs

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	var total, skipped, failed int

	err = storage.ReadOperations(journalPath, func(record model.OperationRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++
		if record.Timestamp <= startTs {
			skipped++
			return nil
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		key := strings.ToLower(record.PoolID)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != start {
			batch = append(batch, a.flushAccumulator(ctx, acc))
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record.PoolID, start, start+a.cfg.WindowSeconds)
			a.accumulators[key] = acc
		}

		if err := acc.Add(record); err != nil {
			failed++
			a.logger.Warn("aggregate record", zap.Error(err), zap.String("pool", record.PoolID), zap.String("op", record.Op))
			return nil
		}
		if record.Timestamp > a.watermark {
			a.watermark = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	keys := make([]string, 0, len(a.accumulators))
	for key := range a.accumulators {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		batch = append(batch, a.flushAccumulator(ctx, a.accumulators[key]))
	}
	// Trailing windows are written but stay open: the next run starts at the
	// earliest of them and rewrites them in full.
	if err := a.flush(ctx, batch); err != nil {
		return err
	}
	a.accumulators = make(map[string]*Accumulator)

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("watermark", a.watermark),
	)
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// flush writes finished windows and advances the stored watermark to just
// before the earliest window still open.
func (a *Aggregator) flush(ctx context.Context, batch []model.PoolWindowMetrics) error {
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	if a.cfg.StateStore == nil {
		return nil
	}

	safe := a.watermark
	if open := minOpenWindowStart(a.accumulators); open > 0 && open-1 < safe {
		safe = open - 1
	}
	if err := a.cfg.StateStore.Save(ctx, safe); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) model.PoolWindowMetrics {
	decimalsA, decimalsB := a.decimals.Pool(ctx, acc.PoolID)

	feeA := scaled(acc.FeeA, decimalsA)
	feeB := scaled(acc.FeeB, decimalsB)
	metrics := model.PoolWindowMetrics{
		PoolID:           acc.PoolID,
		WindowSizeSecs:   int64(a.cfg.WindowSeconds),
		WindowStart:      time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:        time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:        acc.SwapCount,
		FailedCount:      acc.FailedCount,
		Crossings:        acc.Crossings,
		LiquidityAdds:    acc.LiquidityAdds,
		LiquidityRemoves: acc.LiquidityRemoves,
		VolumeA:          scaled(acc.VolumeA, decimalsA).String(),
		VolumeB:          scaled(acc.VolumeB, decimalsB).String(),
		FeeA:             feeA.String(),
		FeeB:             feeB.String(),
	}

	tvlA, okA := scaledString(acc.ReserveA, decimalsA)
	tvlB, okB := scaledString(acc.ReserveB, decimalsB)
	if okA {
		metrics.TVLA = ptr(tvlA.String())
		metrics.FeeRateA = feeRate(feeA, tvlA)
	}
	if okB {
		metrics.TVLB = ptr(tvlB.String())
		metrics.FeeRateB = feeRate(feeB, tvlB)
	}
	if price, ok := closePrice(acc.SqrtPrice, decimalsA, decimalsB); ok {
		metrics.ClosePrice = ptr(price.String())
		if okA && okB {
			metrics.APR = computeAPR(feeA, feeB, tvlA, tvlB, price, a.cfg.WindowSeconds)
		}
	}

	a.logger.Debug("window closed",
		zap.String("pool", acc.PoolID),
		zap.Time("start", metrics.WindowStart),
		zap.Uint64("swaps", acc.SwapCount),
	)
	return metrics
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
