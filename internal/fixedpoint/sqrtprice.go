package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amount0Delta returns the amount of asset A spanned by liquidity between two
// sqrt prices: L * (sqrtB - sqrtA) / (sqrtA * sqrtB), in Q64.64 terms.
func Amount0Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return nil, fmt.Errorf("%w: zero sqrt price", ErrPriceOutOfBounds)
	}
	if liquidity.Gt(MaxUint128) {
		return nil, fmt.Errorf("%w: liquidity exceeds uint128", ErrArithmeticOverflow)
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, Resolution)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		term, err := MulDivRoundingUp(numerator1, numerator2, sqrtB)
		if err != nil {
			return nil, err
		}
		return DivRoundingUp(term, sqrtA)
	}

	term, err := MulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return term.Div(term, sqrtA), nil
}

// Amount1Delta returns the amount of asset B spanned by liquidity between two
// sqrt prices: L * (sqrtB - sqrtA).
func Amount1Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if liquidity.Gt(MaxUint128) {
		return nil, fmt.Errorf("%w: liquidity exceeds uint128", ErrArithmeticOverflow)
	}
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q64)
	}
	return MulDiv(liquidity, diff, Q64)
}

// NextSqrtPriceFromInput returns the sqrt price reached after adding amountIn
// of the input asset. Selling asset A pushes the price down, selling asset B
// pushes it up; both round so the pool never pays out more than it receives.
func NextSqrtPriceFromInput(sqrtPrice, liquidity, amountIn *uint256.Int, aToB bool) (*uint256.Int, error) {
	if sqrtPrice.IsZero() {
		return nil, fmt.Errorf("%w: zero sqrt price", ErrPriceOutOfBounds)
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}
	if aToB {
		return nextSqrtPriceFromAmount0(sqrtPrice, liquidity, amountIn)
	}
	return nextSqrtPriceFromAmount1(sqrtPrice, liquidity, amountIn)
}

// nextSqrtPriceFromAmount0 computes L*sqrtP / (L + amount*sqrtP), rounding up.
func nextSqrtPriceFromAmount0(sqrtPrice, liquidity, amount *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return sqrtPrice.Clone(), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, Resolution)

	if product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPrice); !overflow {
		if denominator, overflow := new(uint256.Int).AddOverflow(numerator1, product); !overflow {
			return MulDivRoundingUp(numerator1, sqrtPrice, denominator)
		}
	}

	// L / (L/sqrtP + amount), which loses precision but cannot overflow.
	denominator := new(uint256.Int).Div(numerator1, sqrtPrice)
	if _, overflow := denominator.AddOverflow(denominator, amount); overflow {
		return nil, ErrArithmeticOverflow
	}
	return DivRoundingUp(numerator1, denominator)
}

// nextSqrtPriceFromAmount1 computes sqrtP + amount/L, rounding down.
func nextSqrtPriceFromAmount1(sqrtPrice, liquidity, amount *uint256.Int) (*uint256.Int, error) {
	quotient, err := MulDiv(amount, Q64, liquidity)
	if err != nil {
		return nil, err
	}
	return Add(sqrtPrice, quotient)
}
