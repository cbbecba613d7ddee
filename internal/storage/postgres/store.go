package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage"
)

// Store provides Postgres persistence for pool state, the operation journal
// and window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clmm_pools (
		pool_id TEXT PRIMARY KEY,
		asset_a TEXT NOT NULL,
		asset_b TEXT NOT NULL,
		seed NUMERIC(20,0) NOT NULL,
		tick_spacing INTEGER NOT NULL,
		fee_bps INTEGER NOT NULL,
		max_liquidity_per_tick NUMERIC(78,0) NOT NULL,
		sqrt_price NUMERIC(78,0) NOT NULL,
		tick INTEGER NOT NULL,
		liquidity NUMERIC(78,0) NOT NULL,
		fee_growth_global_a NUMERIC(78,0) NOT NULL,
		fee_growth_global_b NUMERIC(78,0) NOT NULL,
		fees_a NUMERIC(78,0) NOT NULL,
		fees_b NUMERIC(78,0) NOT NULL,
		reserve_a NUMERIC(78,0) NOT NULL,
		reserve_b NUMERIC(78,0) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clmm_ticks (
		pool_id TEXT NOT NULL REFERENCES clmm_pools(pool_id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		liquidity_gross NUMERIC(78,0) NOT NULL,
		liquidity_net NUMERIC(78,0) NOT NULL,
		fee_growth_outside_a NUMERIC(78,0) NOT NULL,
		fee_growth_outside_b NUMERIC(78,0) NOT NULL,
		PRIMARY KEY (pool_id, tick)
	)`,
	`CREATE TABLE IF NOT EXISTS clmm_positions (
		pool_id TEXT NOT NULL REFERENCES clmm_pools(pool_id) ON DELETE CASCADE,
		owner TEXT NOT NULL,
		tick_lower INTEGER NOT NULL,
		tick_upper INTEGER NOT NULL,
		liquidity NUMERIC(78,0) NOT NULL,
		fee_growth_inside_last_a NUMERIC(78,0) NOT NULL,
		fee_growth_inside_last_b NUMERIC(78,0) NOT NULL,
		tokens_owed_a NUMERIC(78,0) NOT NULL,
		tokens_owed_b NUMERIC(78,0) NOT NULL,
		PRIMARY KEY (pool_id, owner, tick_lower, tick_upper)
	)`,
	`CREATE TABLE IF NOT EXISTS clmm_operations (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL,
		op TEXT NOT NULL,
		owner TEXT,
		tick_lower INTEGER,
		tick_upper INTEGER,
		liquidity NUMERIC(78,0),
		direction TEXT,
		amount_in NUMERIC(78,0),
		amount_out NUMERIC(78,0),
		amount_a NUMERIC(78,0),
		amount_b NUMERIC(78,0),
		fee_a NUMERIC(78,0),
		fee_b NUMERIC(78,0),
		crossings INTEGER NOT NULL DEFAULT 0,
		price_limit_reached BOOLEAN NOT NULL DEFAULT false,
		liquidity_exhausted BOOLEAN NOT NULL DEFAULT false,
		step_limit_reached BOOLEAN NOT NULL DEFAULT false,
		error_kind TEXT,
		error TEXT,
		sqrt_price NUMERIC(78,0),
		tick INTEGER NOT NULL,
		active_liquidity NUMERIC(78,0),
		reserve_a NUMERIC(78,0),
		reserve_b NUMERIC(78,0),
		ts BIGINT NOT NULL,
		chain_id BIGINT,
		block_number BIGINT,
		tx_hash TEXT,
		log_index BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS clmm_operations_pool_ts ON clmm_operations (pool_id, ts)`,
	`CREATE TABLE IF NOT EXISTS clmm_window_metrics (
		pool_id TEXT NOT NULL,
		window_size_seconds BIGINT NOT NULL,
		window_start_ts TIMESTAMPTZ NOT NULL,
		window_end_ts TIMESTAMPTZ NOT NULL,
		swap_count BIGINT NOT NULL,
		failed_count BIGINT NOT NULL,
		crossings BIGINT NOT NULL,
		liquidity_adds BIGINT NOT NULL,
		liquidity_removes BIGINT NOT NULL,
		volume_a NUMERIC NOT NULL,
		volume_b NUMERIC NOT NULL,
		fee_a NUMERIC NOT NULL,
		fee_b NUMERIC NOT NULL,
		fee_rate_a NUMERIC,
		fee_rate_b NUMERIC,
		tvl_a NUMERIC,
		tvl_b NUMERIC,
		apr NUMERIC,
		close_price NUMERIC,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (pool_id, window_size_seconds, window_start_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS clmm_state (
		name TEXT PRIMARY KEY,
		last_processed BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveSnapshot replaces the stored state of one pool in a single transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.PoolSnapshot) error {
	p := snap.Pool
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO clmm_pools (
				pool_id, asset_a, asset_b, seed, tick_spacing, fee_bps, max_liquidity_per_tick,
				sqrt_price, tick, liquidity, fee_growth_global_a, fee_growth_global_b,
				fees_a, fees_b, reserve_a, reserve_b, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now())
			ON CONFLICT (pool_id) DO UPDATE SET
				sqrt_price = EXCLUDED.sqrt_price,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				fee_growth_global_a = EXCLUDED.fee_growth_global_a,
				fee_growth_global_b = EXCLUDED.fee_growth_global_b,
				fees_a = EXCLUDED.fees_a,
				fees_b = EXCLUDED.fees_b,
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				updated_at = now()
		`,
			p.PoolID, p.AssetA, p.AssetB, fmt.Sprint(p.Seed), p.TickSpacing, int32(p.FeeBps), p.MaxLiquidityPerTick,
			p.SqrtPrice, p.Tick, p.Liquidity, p.FeeGrowthGlobalA, p.FeeGrowthGlobalB,
			p.FeesA, p.FeesB, p.ReserveA, p.ReserveB,
		); err != nil {
			return fmt.Errorf("upsert pool: %w", err)
		}

		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM clmm_ticks WHERE pool_id = $1`, p.PoolID)
		batch.Queue(`DELETE FROM clmm_positions WHERE pool_id = $1`, p.PoolID)
		for _, t := range snap.Ticks {
			batch.Queue(`
				INSERT INTO clmm_ticks (pool_id, tick, liquidity_gross, liquidity_net, fee_growth_outside_a, fee_growth_outside_b)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, p.PoolID, t.Tick, t.LiquidityGross, t.LiquidityNet, t.FeeGrowthOutsideA, t.FeeGrowthOutsideB)
		}
		for _, pos := range snap.Positions {
			batch.Queue(`
				INSERT INTO clmm_positions (
					pool_id, owner, tick_lower, tick_upper, liquidity,
					fee_growth_inside_last_a, fee_growth_inside_last_b, tokens_owed_a, tokens_owed_b
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`, p.PoolID, pos.Owner, pos.TickLower, pos.TickUpper, pos.Liquidity,
				pos.FeeGrowthInsideLastA, pos.FeeGrowthInsideLastB, pos.TokensOwedA, pos.TokensOwedB)
		}
		return sendBatch(ctx, tx, batch)
	})
}

// LoadSnapshot reads the stored state of one pool. The boolean is false when
// the pool is unknown.
func (s *Store) LoadSnapshot(ctx context.Context, poolID string) (model.PoolSnapshot, bool, error) {
	var snap model.PoolSnapshot
	var seed string
	p := &snap.Pool
	err := s.pool.QueryRow(ctx, `
		SELECT pool_id, asset_a, asset_b, seed::text, tick_spacing, fee_bps, max_liquidity_per_tick::text,
			sqrt_price::text, tick, liquidity::text, fee_growth_global_a::text, fee_growth_global_b::text,
			fees_a::text, fees_b::text, reserve_a::text, reserve_b::text
		FROM clmm_pools WHERE pool_id = $1
	`, poolID).Scan(
		&p.PoolID, &p.AssetA, &p.AssetB, &seed, &p.TickSpacing, &p.FeeBps, &p.MaxLiquidityPerTick,
		&p.SqrtPrice, &p.Tick, &p.Liquidity, &p.FeeGrowthGlobalA, &p.FeeGrowthGlobalB,
		&p.FeesA, &p.FeesB, &p.ReserveA, &p.ReserveB,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, fmt.Errorf("load pool: %w", err)
	}
	if _, err := fmt.Sscan(seed, &p.Seed); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse seed %q: %w", seed, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tick, liquidity_gross::text, liquidity_net::text, fee_growth_outside_a::text, fee_growth_outside_b::text
		FROM clmm_ticks WHERE pool_id = $1 ORDER BY tick
	`, poolID)
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("load ticks: %w", err)
	}
	snap.Ticks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TickRecord, error) {
		var t model.TickRecord
		err := row.Scan(&t.Tick, &t.LiquidityGross, &t.LiquidityNet, &t.FeeGrowthOutsideA, &t.FeeGrowthOutsideB)
		return t, err
	})
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("load ticks: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT owner, tick_lower, tick_upper, liquidity::text, fee_growth_inside_last_a::text,
			fee_growth_inside_last_b::text, tokens_owed_a::text, tokens_owed_b::text
		FROM clmm_positions WHERE pool_id = $1 ORDER BY owner, tick_lower, tick_upper
	`, poolID)
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("load positions: %w", err)
	}
	snap.Positions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PositionRecord, error) {
		var r model.PositionRecord
		err := row.Scan(&r.Owner, &r.TickLower, &r.TickUpper, &r.Liquidity,
			&r.FeeGrowthInsideLastA, &r.FeeGrowthInsideLastB, &r.TokensOwedA, &r.TokensOwedB)
		return r, err
	})
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("load positions: %w", err)
	}
	return snap, true, nil
}

// UpsertOperations inserts journal records, skipping ids already stored.
func (s *Store) UpsertOperations(ctx context.Context, records []model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		var chainID, block, logIndex *int64
		var txHash *string
		if r.Chain != nil {
			c, b, l := int64(r.Chain.ChainID), int64(r.Chain.BlockNumber), int64(r.Chain.LogIndex)
			chainID, block, logIndex, txHash = &c, &b, &l, &r.Chain.TxHash
		}
		batch.Queue(`
			INSERT INTO clmm_operations (
				id, pool_id, op, owner, tick_lower, tick_upper, liquidity, direction,
				amount_in, amount_out, amount_a, amount_b, fee_a, fee_b, crossings,
				price_limit_reached, liquidity_exhausted, step_limit_reached, error_kind, error,
				sqrt_price, tick, active_liquidity, reserve_a, reserve_b, ts,
				chain_id, block_number, tx_hash, log_index
			) VALUES (
				$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,
				$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30
			)
			ON CONFLICT (id) DO NOTHING
		`,
			r.ID, r.PoolID, r.Op, nullable(r.Owner), r.TickLower, r.TickUpper, nullable(r.Liquidity), nullable(r.Direction),
			nullable(r.AmountIn), nullable(r.AmountOut), nullable(r.AmountA), nullable(r.AmountB),
			nullable(r.FeeA), nullable(r.FeeB), r.Crossings,
			r.PriceLimitReached, r.LiquidityExhausted, r.StepLimitReached, nullable(r.ErrorKind), nullable(r.Error),
			nullable(r.SqrtPrice), r.Tick, nullable(r.ActiveLiquidity), nullable(r.ReserveA), nullable(r.ReserveB), int64(r.Timestamp),
			chainID, block, txHash, logIndex,
		)
	}
	return sendBatch(ctx, s.pool, batch)
}

// Journal exposes UpsertOperations as a storage.Journal bound to ctx.
func (s *Store) Journal(ctx context.Context) storage.Journal {
	return storage.JournalFunc(func(records []model.OperationRecord) error {
		return s.UpsertOperations(ctx, records)
	})
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO clmm_window_metrics (
				pool_id, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, failed_count, crossings, liquidity_adds, liquidity_removes,
				volume_a, volume_b, fee_a, fee_b, fee_rate_a, fee_rate_b,
				tvl_a, tvl_b, apr, close_price, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now(),now())
			ON CONFLICT (pool_id, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				failed_count = EXCLUDED.failed_count,
				crossings = EXCLUDED.crossings,
				liquidity_adds = EXCLUDED.liquidity_adds,
				liquidity_removes = EXCLUDED.liquidity_removes,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				fee_a = EXCLUDED.fee_a,
				fee_b = EXCLUDED.fee_b,
				fee_rate_a = EXCLUDED.fee_rate_a,
				fee_rate_b = EXCLUDED.fee_rate_b,
				tvl_a = EXCLUDED.tvl_a,
				tvl_b = EXCLUDED.tvl_b,
				apr = EXCLUDED.apr,
				close_price = EXCLUDED.close_price,
				updated_at = now()
		`,
			m.PoolID,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.FailedCount),
			int64(m.Crossings),
			int64(m.LiquidityAdds),
			int64(m.LiquidityRemoves),
			m.VolumeA,
			m.VolumeB,
			m.FeeA,
			m.FeeB,
			m.FeeRateA,
			m.FeeRateB,
			m.TVLA,
			m.TVLB,
			m.APR,
			m.ClosePrice,
		)
	}
	return sendBatch(ctx, s.pool, batch)
}

// LoadState returns last_processed for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var last int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed FROM clmm_state WHERE name=$1`, name)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(last), true, nil
}

// SaveState upserts last_processed for a name.
func (s *Store) SaveState(ctx context.Context, name string, last uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clmm_state (name, last_processed, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET last_processed = EXCLUDED.last_processed, updated_at = EXCLUDED.updated_at
	`, name, int64(last), time.Now().UTC())
	return err
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendBatch(ctx context.Context, conn batchSender, batch *pgx.Batch) error {
	br := conn.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
