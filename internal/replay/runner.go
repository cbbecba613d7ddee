package replay

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage"
)

// Chain is the JSON-RPC surface the runner needs. *chain.Client implements it.
type Chain interface {
	dex.Caller
	ChainID(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// SnapshotSink persists the replayed pool after each batch.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap model.PoolSnapshot) error
}

// DecodeErrorSink receives chain logs that could not be replayed.
type DecodeErrorSink interface {
	PutDecodeErrors(errs []model.DecodeError) error
}

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	Pool         common.Address
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	Seed         uint64
	MaxSteps     int
	MaxRetries   int
	RetryBackoff time.Duration
}

// RunnerDeps are the collaborators of a Runner. Journal, Checkpoint,
// Snapshots, DecodeErrors and Metrics are optional.
type RunnerDeps struct {
	Chain        Chain
	Decoder      *dex.V3PoolDecoder
	Applier      *Applier
	Journal      storage.Journal
	Checkpoint   Checkpointer
	Snapshots    []SnapshotSink
	DecodeErrors DecodeErrorSink
	Metrics      *Metrics
	Logger       *zap.Logger
}

// Runner streams the logs of one V3 pool and replays them into a local pool.
type Runner struct {
	cfg       RunConfig
	deps      RunnerDeps
	logger    *zap.Logger
	metaCache *dex.PoolMetaCache
	seen      map[string]struct{}
}

func NewRunner(cfg RunConfig, deps RunnerDeps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		deps:      deps,
		logger:    logger.With(zap.String("source_pool", cfg.Pool.Hex())),
		metaCache: dex.NewPoolMetaCache(),
		seen:      make(map[string]struct{}),
	}
}

// Run replays [FromBlock, ToBlock], resuming after the checkpoint when one
// exists. A zero ToBlock means the latest block.
func (r *Runner) Run(ctx context.Context) error {
	if r.deps.Chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.deps.Decoder == nil || r.deps.Applier == nil {
		return fmt.Errorf("decoder and applier are required")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Pool == (common.Address{}) {
		return fmt.Errorf("pool address is required")
	}

	chainID, err := r.deps.Chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	from, to := r.cfg.FromBlock, r.cfg.ToBlock
	if to == 0 {
		if to, err = r.deps.Chain.LatestBlockNumber(ctx); err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}
	if r.deps.Checkpoint != nil {
		last, ok, err := r.deps.Checkpoint.Load(ctx)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}
	if from > to {
		r.logger.Info("nothing to replay", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	pending, err := r.bootstrap(ctx, from)
	if err != nil {
		return err
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	dc := dex.DecodeContext{
		Context:       ctx,
		Chain:         r.deps.Chain,
		PoolMetaCache: r.metaCache,
		Logger:        r.logger,
	}
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runBatch(ctx, chainID, blockRange, dc, pending); err != nil {
			return err
		}
		pending = nil
	}
	return nil
}

func (r *Runner) runBatch(ctx context.Context, chainID uint64, blockRange BlockRange, dc dex.DecodeContext, records []model.OperationRecord) error {
	started := time.Now()
	r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	clear(r.seen)
	var rejected []model.DecodeError
	for _, log := range logs {
		if log.Removed || r.isDuplicate(log) {
			continue
		}
		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		lr := buildLogRecord(chainID, log, ts)

		ev, err := r.deps.Decoder.Decode(lr, dc)
		if err != nil {
			r.logger.Warn("decode failed", zap.String("log", lr.ID()), zap.Error(err))
			rejected = append(rejected, decodeError(lr, model.StageDecode, err))
			r.deps.Metrics.observeEvent("unknown", model.StageDecode)
			continue
		}
		req, err := Transform(ev)
		if err != nil {
			r.logger.Warn("transform failed", zap.String("log", lr.ID()), zap.String("event", ev.EventName), zap.Error(err))
			rejected = append(rejected, decodeError(lr, model.StageTransform, err))
			r.deps.Metrics.observeEvent(ev.EventName, model.StageTransform)
			continue
		}

		record := r.deps.Applier.Apply(ctx, req)
		if err := ctx.Err(); err != nil {
			return err
		}
		r.deps.Metrics.observeEvent(ev.EventName, record.ErrorKind)
		records = append(records, record)
	}

	if r.deps.Journal != nil {
		if err := r.deps.Journal.PutOperationBatch(records); err != nil {
			return fmt.Errorf("journal operations: %w", err)
		}
	}
	if r.deps.DecodeErrors != nil && len(rejected) > 0 {
		if err := r.deps.DecodeErrors.PutDecodeErrors(rejected); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
	}
	if p := r.deps.Applier.Pool(); p != nil && len(r.deps.Snapshots) > 0 {
		snap := p.Snapshot()
		for _, sink := range r.deps.Snapshots {
			if err := sink.SaveSnapshot(ctx, snap); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
		}
	}
	if r.deps.Checkpoint != nil {
		if err := r.deps.Checkpoint.Save(ctx, blockRange.To); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	r.deps.Metrics.observeBatch(blockRange.To, time.Since(started).Seconds())

	r.logger.Info("batch complete",
		zap.Int("operations", len(records)),
		zap.Int("rejected", len(rejected)),
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
	)
	return nil
}

// bootstrap derives the local pool parameters from the on-chain pool as of
// the block before from. When the local pool does not exist yet but the chain
// pool was already initialized, it is initialized at that block's price.
func (r *Runner) bootstrap(ctx context.Context, from uint64) ([]model.OperationRecord, error) {
	var block *big.Int
	if from > 0 {
		block = new(big.Int).SetUint64(from - 1)
	}

	var meta model.PoolMeta
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		meta, err = dex.FetchPoolMeta(ctx, r.deps.Chain, r.cfg.Pool, block)
		if err != nil {
			r.logger.Warn("pool metadata fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pool metadata: %w", err)
	}
	r.metaCache.Set(r.cfg.Pool, meta)

	cfg, err := ConfigFromMeta(meta, r.cfg.Seed, r.cfg.MaxSteps)
	if err != nil {
		return nil, fmt.Errorf("pool config: %w", err)
	}
	applier := r.deps.Applier
	applier.SetTemplate(cfg)

	fields := []zap.Field{
		zap.String("pool", cfg.Key().ID().Hex()),
		zap.Uint32("fee_bps", cfg.FeeRateBps),
		zap.Int32("tick_spacing", cfg.TickSpacing),
	}
	for i, token := range []common.Address{cfg.AssetA, cfg.AssetB} {
		tokenMeta, err := dex.FetchTokenMeta(ctx, r.deps.Chain, token, r.logger)
		if err != nil {
			r.logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
			continue
		}
		fields = append(fields, zap.String(fmt.Sprintf("symbol%d", i), tokenMeta.Symbol), zap.Uint8(fmt.Sprintf("decimals%d", i), tokenMeta.Decimals))
	}
	r.logger.Info("replay pool", fields...)

	if applier.Pool() != nil || cfg.InitialSqrtPrice == nil {
		return nil, nil
	}
	record := applier.Apply(ctx, model.OperationRequest{Op: model.OpInitialize})
	if record.Failed() {
		return nil, fmt.Errorf("initialize from slot0: %s", record.Error)
	}
	r.logger.Info("initialized from slot0", zap.String("sqrt_price", record.SqrtPrice), zap.Int32("tick", record.Tick))
	return []model.OperationRecord{record}, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.deps.Chain.FilterLogs(ctx, fromBlock, toBlock, []common.Address{r.cfg.Pool}, r.deps.Decoder.Topics())
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.deps.Chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
