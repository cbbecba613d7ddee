package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/tickledger"
)

// SwapRequest is an exact-input swap.
type SwapRequest struct {
	Trader    common.Address
	AmountIn  *uint256.Int
	Direction Direction
	// SqrtPriceLimit stops the swap at this price. Nil means the tick bound.
	SqrtPriceLimit *uint256.Int
	// MinAmountOut fails the swap with ErrSlippageExceeded when not met.
	MinAmountOut *uint256.Int
}

// SwapStep records one iteration of the swap loop.
type SwapStep struct {
	SqrtPriceStart *uint256.Int
	SqrtPriceEnd   *uint256.Int
	Liquidity      *uint256.Int
	AmountIn       *uint256.Int
	AmountOut      *uint256.Int
	FeeAmount      *uint256.Int
	// TickNext is the boundary the step aimed for; Crossed is set when it was crossed.
	TickNext int32
	Crossed  bool
}

// SwapResult describes a swap. AmountIn includes the fee.
type SwapResult struct {
	Direction Direction
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	FeeAmount *uint256.Int
	Crossings int
	Steps     []SwapStep

	// PriceLimitReached reports a partial fill stopped by the price limit.
	PriceLimitReached bool
	// LiquidityExhausted reports a partial fill with no liquidity left ahead.
	LiquidityExhausted bool
	// StepLimitReached reports a partial fill stopped by the step bound.
	StepLimitReached bool

	Status Status
}

// Swap sells req.AmountIn of one asset for the other, crossing initialized
// ticks as the price moves. The trader pays only the input actually consumed.
func (p *Pool) Swap(ctx context.Context, req SwapRequest) (res SwapResult, err error) {
	defer func() { p.metrics.observeOperation(p.id.Hex(), model.OpSwap, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.st.clone()
	res, err = p.swap(st, req)
	if err != nil {
		return SwapResult{}, err
	}
	if req.MinAmountOut != nil && res.AmountOut.Lt(req.MinAmountOut) {
		return SwapResult{}, fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, res.AmountOut.Dec(), req.MinAmountOut.Dec())
	}

	aToB := req.Direction == AToB
	in, out := &st.reserveA, &st.reserveB
	if !aToB {
		in, out = out, in
	}
	if *in, err = fixedpoint.Add(*in, res.AmountIn); err != nil {
		return SwapResult{}, err
	}
	if *out, err = fixedpoint.Sub(*out, res.AmountOut); err != nil {
		return SwapResult{}, fmt.Errorf("reserve: %w", err)
	}

	if err := p.settle(ctx,
		Transfer{Asset: p.assetFor(aToB), From: req.Trader, To: p.account, Amount: res.AmountIn},
		Transfer{Asset: p.assetFor(!aToB), From: p.account, To: req.Trader, Amount: res.AmountOut},
	); err != nil {
		return SwapResult{}, err
	}
	p.commit(st)
	res.Status = p.status(st)
	p.metrics.observeSwap(p.id.Hex(), res.Crossings)

	p.logger.Debug("swap",
		zap.String("trader", req.Trader.Hex()),
		zap.Stringer("direction", req.Direction),
		zap.String("amount_in", res.AmountIn.Dec()),
		zap.String("amount_out", res.AmountOut.Dec()),
		zap.String("fee", res.FeeAmount.Dec()),
		zap.Int("crossings", res.Crossings),
		zap.Int32("tick", st.tick),
		zap.Bool("price_limit_reached", res.PriceLimitReached),
		zap.Bool("liquidity_exhausted", res.LiquidityExhausted),
	)
	return res, nil
}

// Quote runs the swap without committing it, moving funds or checking slippage.
func (p *Pool) Quote(req SwapRequest) (SwapResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.swap(p.st.clone(), req)
}

// swap runs the stepping loop on st.
func (p *Pool) swap(st *state, req SwapRequest) (SwapResult, error) {
	if req.AmountIn == nil || req.AmountIn.IsZero() {
		return SwapResult{}, ErrZeroAmount
	}
	aToB := req.Direction == AToB

	limit, err := swapLimit(st.sqrtPrice, req.SqrtPriceLimit, aToB)
	if err != nil {
		return SwapResult{}, err
	}

	res := SwapResult{
		Direction: req.Direction,
		AmountOut: new(uint256.Int),
		FeeAmount: new(uint256.Int),
	}
	remaining := req.AmountIn.Clone()

	for !remaining.IsZero() && !st.sqrtPrice.Eq(limit) {
		if p.maxSteps > 0 && len(res.Steps) >= p.maxSteps {
			res.StepLimitReached = true
			break
		}

		var (
			tickNext int32
			found    bool
		)
		if aToB {
			tickNext, found = st.ticks.NextInitializedTick(st.tick+1, tickledger.Down)
		} else {
			tickNext, found = st.ticks.NextInitializedTick(st.tick, tickledger.Up)
		}
		if !found {
			if st.liquidity.IsZero() {
				res.LiquidityExhausted = true
				break
			}
			tickNext = fixedpoint.MaxTick
			if aToB {
				tickNext = fixedpoint.MinTick
			}
		}

		sqrtNext, err := fixedpoint.SqrtPriceAtTick(tickNext)
		if err != nil {
			return SwapResult{}, err
		}
		target := sqrtNext
		if (aToB && sqrtNext.Lt(limit)) || (!aToB && sqrtNext.Gt(limit)) {
			target = limit
		}

		start := st.sqrtPrice
		step, err := fixedpoint.ComputeSwapStep(start, target, st.liquidity, remaining, p.feeRateBps)
		if err != nil {
			return SwapResult{}, err
		}

		spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
		if remaining, err = fixedpoint.Sub(remaining, spent); err != nil {
			return SwapResult{}, err
		}
		if res.AmountOut, err = fixedpoint.Add(res.AmountOut, step.AmountOut); err != nil {
			return SwapResult{}, err
		}
		if res.FeeAmount, err = fixedpoint.Add(res.FeeAmount, step.FeeAmount); err != nil {
			return SwapResult{}, err
		}
		if err := st.accrueFee(step.FeeAmount, aToB); err != nil {
			return SwapResult{}, err
		}

		record := SwapStep{
			SqrtPriceStart: start,
			SqrtPriceEnd:   step.SqrtPriceNext,
			Liquidity:      st.liquidity.Clone(),
			AmountIn:       step.AmountIn,
			AmountOut:      step.AmountOut,
			FeeAmount:      step.FeeAmount,
			TickNext:       tickNext,
		}
		st.sqrtPrice = step.SqrtPriceNext

		switch {
		case step.SqrtPriceNext.Eq(sqrtNext):
			if found {
				net, err := st.ticks.Cross(tickNext, st.feeGrowthGlobalA, st.feeGrowthGlobalB)
				if err != nil {
					return SwapResult{}, err
				}
				if aToB {
					net.Neg(net)
				}
				if st.liquidity, err = fixedpoint.AddDelta(st.liquidity, net); err != nil {
					return SwapResult{}, err
				}
				record.Crossed = true
				res.Crossings++
			}
			if aToB {
				st.tick = tickNext - 1
			} else {
				st.tick = tickNext
			}
		case !step.SqrtPriceNext.Eq(start):
			if st.tick, err = fixedpoint.TickAtSqrtPrice(step.SqrtPriceNext); err != nil {
				return SwapResult{}, err
			}
		}
		res.Steps = append(res.Steps, record)
	}

	res.AmountIn = new(uint256.Int).Sub(req.AmountIn, remaining)
	res.PriceLimitReached = !remaining.IsZero() && st.sqrtPrice.Eq(limit)
	if res.AmountOut.IsZero() {
		return SwapResult{}, ErrZeroOutput
	}
	res.Status = p.status(st)
	return res, nil
}

// swapLimit resolves the price limit of a swap and checks it lies strictly
// ahead of the current price in the direction of travel.
func swapLimit(current, limit *uint256.Int, aToB bool) (*uint256.Int, error) {
	if limit == nil {
		if aToB {
			limit = new(uint256.Int).AddUint64(fixedpoint.MinSqrtPrice, 1)
		} else {
			limit = new(uint256.Int).SubUint64(fixedpoint.MaxSqrtPrice, 1)
		}
	}
	if aToB {
		if !limit.Lt(current) || !limit.Gt(fixedpoint.MinSqrtPrice) {
			return nil, fmt.Errorf("%w: limit %s for a falling price from %s", ErrPriceOutOfBounds, limit.Dec(), current.Dec())
		}
	} else if !limit.Gt(current) || !limit.Lt(fixedpoint.MaxSqrtPrice) {
		return nil, fmt.Errorf("%w: limit %s for a rising price from %s", ErrPriceOutOfBounds, limit.Dec(), current.Dec())
	}
	return limit, nil
}

// accrueFee credits a swap fee paid in the input asset to the pool totals and,
// when liquidity is active, to the global fee growth.
func (s *state) accrueFee(fee *uint256.Int, aToB bool) error {
	if fee.IsZero() {
		return nil
	}
	total, growth := &s.feesB, &s.feeGrowthGlobalB
	if aToB {
		total, growth = &s.feesA, &s.feeGrowthGlobalA
	}
	var err error
	if *total, err = fixedpoint.Add(*total, fee); err != nil {
		return err
	}
	if s.liquidity.IsZero() {
		return nil
	}
	delta, err := fixedpoint.MulDiv(fee, fixedpoint.Q64, s.liquidity)
	if err != nil {
		return err
	}
	*growth = new(uint256.Int).Add(*growth, delta)
	return nil
}
