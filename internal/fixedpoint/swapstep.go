package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

// FeeDenominatorBps is the denominator of fee rates expressed in basis points.
const FeeDenominatorBps = 10_000

var feeDenominator = uint256.NewInt(FeeDenominatorBps)

// SwapStep is the outcome of one exact-input step toward a target price.
type SwapStep struct {
	SqrtPriceNext *uint256.Int
	AmountIn      *uint256.Int
	AmountOut     *uint256.Int
	FeeAmount     *uint256.Int
}

// ReachedTarget reports whether the step ended on target.
func (s SwapStep) ReachedTarget(target *uint256.Int) bool {
	return s.SqrtPriceNext.Eq(target)
}

// ComputeSwapStep moves the price from sqrtCurrent toward sqrtTarget spending at
// most amountRemaining (fee included). The direction is implied by the two
// prices: a target below the current price means asset A is sold.
//
// AmountIn excludes the fee; AmountIn + FeeAmount never exceeds amountRemaining.
func ComputeSwapStep(sqrtCurrent, sqrtTarget, liquidity, amountRemaining *uint256.Int, feeRateBps uint32) (SwapStep, error) {
	if feeRateBps >= FeeDenominatorBps {
		return SwapStep{}, fmt.Errorf("%w: %d", ErrFeeRate, feeRateBps)
	}
	aToB := !sqrtCurrent.Lt(sqrtTarget)
	fee := uint256.NewInt(uint64(feeRateBps))
	feeComplement := new(uint256.Int).Sub(feeDenominator, fee)

	remainingLessFee, err := MulDiv(amountRemaining, feeComplement, feeDenominator)
	if err != nil {
		return SwapStep{}, err
	}

	amountIn, err := inputBetween(sqrtCurrent, sqrtTarget, liquidity, aToB)
	if err != nil {
		return SwapStep{}, err
	}

	var next *uint256.Int
	if !remainingLessFee.Lt(amountIn) {
		next = sqrtTarget.Clone()
	} else {
		next, err = NextSqrtPriceFromInput(sqrtCurrent, liquidity, remainingLessFee, aToB)
		if err != nil {
			return SwapStep{}, err
		}
	}
	reached := next.Eq(sqrtTarget)

	if !reached {
		if amountIn, err = inputBetween(sqrtCurrent, next, liquidity, aToB); err != nil {
			return SwapStep{}, err
		}
	}

	var amountOut *uint256.Int
	if aToB {
		amountOut, err = Amount1Delta(next, sqrtCurrent, liquidity, false)
	} else {
		amountOut, err = Amount0Delta(sqrtCurrent, next, liquidity, false)
	}
	if err != nil {
		return SwapStep{}, err
	}

	var feeAmount *uint256.Int
	if reached {
		feeAmount, err = MulDivRoundingUp(amountIn, fee, feeComplement)
		if err != nil {
			return SwapStep{}, err
		}
	} else {
		// The remainder of the input is kept entirely as fee.
		feeAmount, err = Sub(amountRemaining, amountIn)
		if err != nil {
			return SwapStep{}, err
		}
	}

	return SwapStep{
		SqrtPriceNext: next,
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		FeeAmount:     feeAmount,
	}, nil
}

func inputBetween(from, to, liquidity *uint256.Int, aToB bool) (*uint256.Int, error) {
	if aToB {
		return Amount0Delta(to, from, liquidity, true)
	}
	return Amount1Delta(from, to, liquidity, true)
}
