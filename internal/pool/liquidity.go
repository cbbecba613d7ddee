package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/position"
)

// LiquidityResult describes a committed add, remove or collect.
type LiquidityResult struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
	// Liquidity is the amount added or removed.
	Liquidity *uint256.Int
	// AmountA and AmountB are the principal moved: owner to pool on add,
	// pool to owner on remove.
	AmountA *uint256.Int
	AmountB *uint256.Int
	// FeesA and FeesB are owed fees paid to the owner.
	FeesA *uint256.Int
	FeesB *uint256.Int
	// PositionLiquidity is the liquidity left in the position.
	PositionLiquidity *uint256.Int
	// Closed is set when the position was removed from the book.
	Closed bool
	Status Status
}

// AddLiquidity deposits liquidity over [lower, upper) for owner. The owner pays
// the asset amounts backing it at the current price, rounded up.
func (p *Pool) AddLiquidity(ctx context.Context, owner common.Address, lower, upper int32, liquidity *uint256.Int) (res LiquidityResult, err error) {
	defer func() { p.metrics.observeOperation(p.id.Hex(), model.OpAdd, err) }()
	if liquidity == nil || liquidity.IsZero() {
		return LiquidityResult{}, ErrZeroLiquidity
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.st.clone()
	pos, amountA, amountB, err := p.modifyPosition(st, owner, lower, upper, liquidity.ToBig())
	if err != nil {
		return LiquidityResult{}, err
	}
	if st.reserveA, err = fixedpoint.Add(st.reserveA, amountA); err != nil {
		return LiquidityResult{}, err
	}
	if st.reserveB, err = fixedpoint.Add(st.reserveB, amountB); err != nil {
		return LiquidityResult{}, err
	}

	if err := p.settle(ctx,
		Transfer{Asset: p.key.AssetA, From: owner, To: p.account, Amount: amountA},
		Transfer{Asset: p.key.AssetB, From: owner, To: p.account, Amount: amountB},
	); err != nil {
		return LiquidityResult{}, err
	}
	p.commit(st)
	p.shares.MintShare(p.id, owner, liquidity.Clone())

	p.logger.Debug("liquidity added",
		zap.String("owner", owner.Hex()),
		zap.Int32("tick_lower", lower),
		zap.Int32("tick_upper", upper),
		zap.String("liquidity", liquidity.Dec()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
	)

	return LiquidityResult{
		Owner:             owner,
		TickLower:         lower,
		TickUpper:         upper,
		Liquidity:         liquidity.Clone(),
		AmountA:           amountA,
		AmountB:           amountB,
		FeesA:             new(uint256.Int),
		FeesB:             new(uint256.Int),
		PositionLiquidity: pos.Liquidity.Clone(),
		Status:            p.status(st),
	}, nil
}

// RemoveLiquidity withdraws liquidity from owner's position over [lower, upper)
// and pays out the backing amounts, rounded down. Removing the last of the
// liquidity also pays every owed fee and closes the position.
func (p *Pool) RemoveLiquidity(ctx context.Context, owner common.Address, lower, upper int32, liquidity *uint256.Int) (res LiquidityResult, err error) {
	defer func() { p.metrics.observeOperation(p.id.Hex(), model.OpRemove, err) }()
	if liquidity == nil || liquidity.IsZero() {
		return LiquidityResult{}, ErrZeroLiquidity
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.st.clone()
	pos, amountA, amountB, err := p.modifyPosition(st, owner, lower, upper, new(big.Int).Neg(liquidity.ToBig()))
	if err != nil {
		return LiquidityResult{}, err
	}

	feesA, feesB := new(uint256.Int), new(uint256.Int)
	closed := false
	if pos.Liquidity.IsZero() {
		if feesA, feesB, err = st.positions.Collect(pos.Key, nil, nil); err != nil {
			return LiquidityResult{}, err
		}
		closed = st.positions.Close(pos.Key)
	}

	payA, err := fixedpoint.Add(amountA, feesA)
	if err != nil {
		return LiquidityResult{}, err
	}
	payB, err := fixedpoint.Add(amountB, feesB)
	if err != nil {
		return LiquidityResult{}, err
	}
	if err := p.withdrawReserves(st, payA, payB); err != nil {
		return LiquidityResult{}, err
	}

	if err := p.settle(ctx,
		Transfer{Asset: p.key.AssetA, From: p.account, To: owner, Amount: payA},
		Transfer{Asset: p.key.AssetB, From: p.account, To: owner, Amount: payB},
	); err != nil {
		return LiquidityResult{}, err
	}
	p.commit(st)
	p.shares.BurnShare(p.id, owner, liquidity.Clone())

	p.logger.Debug("liquidity removed",
		zap.String("owner", owner.Hex()),
		zap.Int32("tick_lower", lower),
		zap.Int32("tick_upper", upper),
		zap.String("liquidity", liquidity.Dec()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
		zap.Bool("closed", closed),
	)

	return LiquidityResult{
		Owner:             owner,
		TickLower:         lower,
		TickUpper:         upper,
		Liquidity:         liquidity.Clone(),
		AmountA:           amountA,
		AmountB:           amountB,
		FeesA:             feesA,
		FeesB:             feesB,
		PositionLiquidity: pos.Liquidity.Clone(),
		Closed:            closed,
		Status:            p.status(st),
	}, nil
}

// Collect pays owner every fee owed to the position over [lower, upper).
func (p *Pool) Collect(ctx context.Context, owner common.Address, lower, upper int32) (res LiquidityResult, err error) {
	defer func() { p.metrics.observeOperation(p.id.Hex(), model.OpCollect, err) }()
	if err := position.ValidateRange(lower, upper, p.tickSpacing); err != nil {
		return LiquidityResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.st.clone()
	key := position.Key{Owner: owner, TickLower: lower, TickUpper: upper}
	pos, ok := st.positions.Get(key)
	if !ok {
		return LiquidityResult{}, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}
	if !pos.Liquidity.IsZero() {
		if pos, _, _, err = p.modifyPosition(st, owner, lower, upper, new(big.Int)); err != nil {
			return LiquidityResult{}, err
		}
	}

	feesA, feesB, err := st.positions.Collect(key, nil, nil)
	if err != nil {
		return LiquidityResult{}, err
	}
	closed := st.positions.Close(key)
	if err := p.withdrawReserves(st, feesA, feesB); err != nil {
		return LiquidityResult{}, err
	}

	if err := p.settle(ctx,
		Transfer{Asset: p.key.AssetA, From: p.account, To: owner, Amount: feesA},
		Transfer{Asset: p.key.AssetB, From: p.account, To: owner, Amount: feesB},
	); err != nil {
		return LiquidityResult{}, err
	}
	p.commit(st)

	p.logger.Debug("fees collected",
		zap.String("owner", owner.Hex()),
		zap.Int32("tick_lower", lower),
		zap.Int32("tick_upper", upper),
		zap.String("fees_a", feesA.Dec()),
		zap.String("fees_b", feesB.Dec()),
	)

	return LiquidityResult{
		Owner:             owner,
		TickLower:         lower,
		TickUpper:         upper,
		Liquidity:         new(uint256.Int),
		AmountA:           new(uint256.Int),
		AmountB:           new(uint256.Int),
		FeesA:             feesA,
		FeesB:             feesB,
		PositionLiquidity: pos.Liquidity.Clone(),
		Closed:            closed,
		Status:            p.status(st),
	}, nil
}

// modifyPosition applies delta to owner's position over [lower, upper) on st
// and returns the position with the asset amounts backing |delta|.
func (p *Pool) modifyPosition(st *state, owner common.Address, lower, upper int32, delta *big.Int) (*position.Position, *uint256.Int, *uint256.Int, error) {
	key := position.Key{Owner: owner, TickLower: lower, TickUpper: upper}
	if delta.Sign() > 0 {
		if _, err := st.positions.Open(owner, lower, upper, p.tickSpacing); err != nil {
			return nil, nil, nil, err
		}
	} else {
		if err := position.ValidateRange(lower, upper, p.tickSpacing); err != nil {
			return nil, nil, nil, err
		}
		pos, ok := st.positions.Get(key)
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
		}
		if new(big.Int).Neg(delta).Cmp(pos.Liquidity.ToBig()) > 0 {
			return nil, nil, nil, fmt.Errorf("%w: %s holds %s", ErrInsufficientLiquidity, key, pos.Liquidity.Dec())
		}
	}

	if delta.Sign() != 0 {
		if _, err := st.ticks.UpdateLiquidity(lower, st.tick, delta, false, st.feeGrowthGlobalA, st.feeGrowthGlobalB); err != nil {
			return nil, nil, nil, err
		}
		if _, err := st.ticks.UpdateLiquidity(upper, st.tick, delta, true, st.feeGrowthGlobalA, st.feeGrowthGlobalB); err != nil {
			return nil, nil, nil, err
		}
	}

	insideA, insideB := st.ticks.FeeGrowthInside(lower, upper, st.tick, st.feeGrowthGlobalA, st.feeGrowthGlobalB)
	pos, err := st.positions.ModifyLiquidity(key, delta, insideA, insideB)
	if err != nil {
		return nil, nil, nil, err
	}

	if delta.Sign() < 0 {
		st.ticks.MaybeClear(lower)
		st.ticks.MaybeClear(upper)
	}
	if delta.Sign() == 0 {
		return pos, new(uint256.Int), new(uint256.Int), nil
	}

	if lower <= st.tick && st.tick < upper {
		if st.liquidity, err = fixedpoint.AddDelta(st.liquidity, delta); err != nil {
			return nil, nil, nil, err
		}
	}

	sqrtLower, err := fixedpoint.SqrtPriceAtTick(lower)
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtUpper, err := fixedpoint.SqrtPriceAtTick(upper)
	if err != nil {
		return nil, nil, nil, err
	}
	magnitude, _ := uint256.FromBig(new(big.Int).Abs(delta))
	amountA, amountB, err := fixedpoint.AmountsForLiquidity(magnitude, sqrtLower, sqrtUpper, st.sqrtPrice, delta.Sign() > 0)
	if err != nil {
		return nil, nil, nil, err
	}
	return pos, amountA, amountB, nil
}

func (p *Pool) withdrawReserves(st *state, amountA, amountB *uint256.Int) error {
	var err error
	if st.reserveA, err = fixedpoint.Sub(st.reserveA, amountA); err != nil {
		return fmt.Errorf("reserve A: %w", err)
	}
	if st.reserveB, err = fixedpoint.Sub(st.reserveB, amountB); err != nil {
		return fmt.Errorf("reserve B: %w", err)
	}
	return nil
}

// settle hands the non-zero moves to custody in one call.
func (p *Pool) settle(ctx context.Context, moves ...Transfer) error {
	pending := moves[:0]
	for _, m := range moves {
		if m.Amount != nil && !m.Amount.IsZero() {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if err := p.custody.Transfer(ctx, pending...); err != nil {
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	return nil
}
