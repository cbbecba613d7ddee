package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/position"
	"liquidityEngine/internal/tickledger"
)

// Snapshot returns the full state of the pool with every integer rendered in decimal.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.st
	snap := model.PoolSnapshot{
		Pool: model.PoolRecord{
			PoolID:              p.id.Hex(),
			AssetA:              p.key.AssetA.Hex(),
			AssetB:              p.key.AssetB.Hex(),
			Seed:                p.key.Seed,
			TickSpacing:         p.tickSpacing,
			FeeBps:              p.feeRateBps,
			MaxLiquidityPerTick: st.ticks.MaxLiquidity().Dec(),
			SqrtPrice:           st.sqrtPrice.Dec(),
			Tick:                st.tick,
			Liquidity:           st.liquidity.Dec(),
			FeeGrowthGlobalA:    st.feeGrowthGlobalA.Dec(),
			FeeGrowthGlobalB:    st.feeGrowthGlobalB.Dec(),
			FeesA:               st.feesA.Dec(),
			FeesB:               st.feesB.Dec(),
			ReserveA:            st.reserveA.Dec(),
			ReserveB:            st.reserveB.Dec(),
		},
		Ticks:     []model.TickRecord{},
		Positions: []model.PositionRecord{},
	}
	for _, t := range st.ticks.Ticks() {
		snap.Ticks = append(snap.Ticks, model.TickRecord{
			Tick:              t.Index,
			LiquidityGross:    t.LiquidityGross.Dec(),
			LiquidityNet:      t.LiquidityNet.String(),
			FeeGrowthOutsideA: t.FeeGrowthOutsideA.Dec(),
			FeeGrowthOutsideB: t.FeeGrowthOutsideB.Dec(),
		})
	}
	for _, pos := range st.positions.All() {
		snap.Positions = append(snap.Positions, model.PositionRecord{
			Owner:                pos.Key.Owner.Hex(),
			TickLower:            pos.Key.TickLower,
			TickUpper:            pos.Key.TickUpper,
			Liquidity:            pos.Liquidity.Dec(),
			FeeGrowthInsideLastA: pos.FeeGrowthInsideLastA.Dec(),
			FeeGrowthInsideLastB: pos.FeeGrowthInsideLastB.Dec(),
			TokensOwedA:          pos.TokensOwedA.Dec(),
			TokensOwedB:          pos.TokensOwedB.Dec(),
		})
	}
	return snap
}

// Restore rebuilds a pool from a snapshot taken by Snapshot.
func Restore(snap model.PoolSnapshot, maxSteps int, deps Deps) (*Pool, error) {
	rec := snap.Pool
	var d decoder
	cfg := Config{
		AssetA:              d.address("asset_a", rec.AssetA),
		AssetB:              d.address("asset_b", rec.AssetB),
		Seed:                rec.Seed,
		InitialSqrtPrice:    d.uint("sqrt_price", rec.SqrtPrice),
		TickSpacing:         rec.TickSpacing,
		FeeRateBps:          rec.FeeBps,
		MaxLiquidityPerTick: d.uint("max_liquidity_per_tick", rec.MaxLiquidityPerTick),
		MaxSteps:            maxSteps,
	}
	st := &state{
		sqrtPrice:        cfg.InitialSqrtPrice,
		tick:             rec.Tick,
		liquidity:        d.uint("liquidity", rec.Liquidity),
		feeGrowthGlobalA: d.uint("fee_growth_global_a", rec.FeeGrowthGlobalA),
		feeGrowthGlobalB: d.uint("fee_growth_global_b", rec.FeeGrowthGlobalB),
		feesA:            d.uint("fees_a", rec.FeesA),
		feesB:            d.uint("fees_b", rec.FeesB),
		reserveA:         d.uint("reserve_a", rec.ReserveA),
		reserveB:         d.uint("reserve_b", rec.ReserveB),
		positions:        position.NewBook(),
	}
	if d.err != nil {
		return nil, fmt.Errorf("restore pool %s: %w", rec.PoolID, d.err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("restore pool %s: %w", rec.PoolID, err)
	}
	if rec.Tick < fixedpoint.MinTick || rec.Tick > fixedpoint.MaxTick {
		return nil, fmt.Errorf("restore pool %s: %w: tick %d", rec.PoolID, ErrPriceOutOfBounds, rec.Tick)
	}
	if err := checkSnapshotTick(rec.Tick, cfg.InitialSqrtPrice); err != nil {
		return nil, fmt.Errorf("restore pool %s: %w", rec.PoolID, err)
	}
	if id := cfg.Key().ID().Hex(); rec.PoolID != "" && rec.PoolID != id {
		return nil, fmt.Errorf("restore pool %s: %w: key derives id %s", rec.PoolID, ErrInvalidConfig, id)
	}
	st.ticks = tickledger.New(cfg.MaxLiquidityPerTick)

	for _, t := range snap.Ticks {
		net, ok := new(big.Int).SetString(t.LiquidityNet, 10)
		if !ok {
			return nil, fmt.Errorf("restore pool %s: tick %d: invalid liquidity_net %q", rec.PoolID, t.Tick, t.LiquidityNet)
		}
		gross := d.uint("liquidity_gross", t.LiquidityGross)
		if d.err == nil && gross.IsZero() {
			return nil, fmt.Errorf("restore pool %s: %w: tick %d has zero liquidity_gross", rec.PoolID, ErrInvalidConfig, t.Tick)
		}
		st.ticks.Put(tickledger.Tick{
			Index:             t.Tick,
			LiquidityGross:    gross,
			LiquidityNet:      net,
			FeeGrowthOutsideA: d.uint("fee_growth_outside_a", t.FeeGrowthOutsideA),
			FeeGrowthOutsideB: d.uint("fee_growth_outside_b", t.FeeGrowthOutsideB),
		})
	}
	for _, r := range snap.Positions {
		st.positions.Put(&position.Position{
			Key: position.Key{
				Owner:     d.address("owner", r.Owner),
				TickLower: r.TickLower,
				TickUpper: r.TickUpper,
			},
			Liquidity:            d.uint("liquidity", r.Liquidity),
			FeeGrowthInsideLastA: d.uint("fee_growth_inside_last_a", r.FeeGrowthInsideLastA),
			FeeGrowthInsideLastB: d.uint("fee_growth_inside_last_b", r.FeeGrowthInsideLastB),
			TokensOwedA:          d.uint("tokens_owed_a", r.TokensOwedA),
			TokensOwedB:          d.uint("tokens_owed_b", r.TokensOwedB),
		})
	}
	if d.err != nil {
		return nil, fmt.Errorf("restore pool %s: %w", rec.PoolID, d.err)
	}

	p := newPool(cfg, deps, st)
	p.metrics.observeStatus(p.id.Hex(), p.status(st))
	return p, nil
}

// checkSnapshotTick matches a stored tick against its sqrt price. A price
// resting exactly on a boundary after a downward cross keeps tick-1.
func checkSnapshotTick(tick int32, sqrtPrice *uint256.Int) error {
	want, err := fixedpoint.TickAtSqrtPrice(sqrtPrice)
	if err != nil {
		return err
	}
	if tick == want {
		return nil
	}
	if tick == want-1 {
		if boundary, err := fixedpoint.SqrtPriceAtTick(want); err == nil && boundary.Eq(sqrtPrice) {
			return nil
		}
	}
	return fmt.Errorf("%w: tick %d does not match sqrt price tick %d", ErrInvalidConfig, tick, want)
}

// decoder parses snapshot fields and keeps the first error.
type decoder struct {
	err error
}

func (d *decoder) uint(field, s string) *uint256.Int {
	if s == "" {
		return new(uint256.Int)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("%s: %w", field, err)
		}
		return new(uint256.Int)
	}
	return v
}

func (d *decoder) address(field, s string) common.Address {
	if !common.IsHexAddress(s) {
		if d.err == nil {
			d.err = fmt.Errorf("%s: invalid address %q", field, s)
		}
		return common.Address{}
	}
	return common.HexToAddress(s)
}
