package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// AmountsForLiquidity returns the assets backing liquidity over
// [sqrtLower, sqrtUpper) at sqrtCurrent. Below the range only asset A is
// held; at or above it only asset B.
func AmountsForLiquidity(liquidity, sqrtLower, sqrtUpper, sqrtCurrent *uint256.Int, roundUp bool) (*uint256.Int, *uint256.Int, error) {
	if !sqrtLower.Lt(sqrtUpper) {
		return nil, nil, fmt.Errorf("%w: lower sqrt price must be below upper", ErrPriceOutOfBounds)
	}
	amountA, amountB := new(uint256.Int), new(uint256.Int)
	var err error

	switch {
	case !sqrtCurrent.Gt(sqrtLower):
		amountA, err = Amount0Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	case sqrtCurrent.Lt(sqrtUpper):
		if amountA, err = Amount0Delta(sqrtCurrent, sqrtUpper, liquidity, roundUp); err != nil {
			return nil, nil, err
		}
		amountB, err = Amount1Delta(sqrtLower, sqrtCurrent, liquidity, roundUp)
	default:
		amountB, err = Amount1Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	}
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// LiquidityForAmounts returns the largest liquidity over [sqrtLower, sqrtUpper)
// that amountA and amountB can back at sqrtCurrent.
func LiquidityForAmounts(amountA, amountB, sqrtLower, sqrtUpper, sqrtCurrent *uint256.Int) (*uint256.Int, error) {
	if !sqrtLower.Lt(sqrtUpper) {
		return nil, fmt.Errorf("%w: lower sqrt price must be below upper", ErrPriceOutOfBounds)
	}

	var (
		liquidity *uint256.Int
		err       error
	)
	switch {
	case !sqrtCurrent.Gt(sqrtLower):
		liquidity, err = liquidityForAmount0(sqrtLower, sqrtUpper, amountA)
	case sqrtCurrent.Lt(sqrtUpper):
		var fromA, fromB *uint256.Int
		if fromA, err = liquidityForAmount0(sqrtCurrent, sqrtUpper, amountA); err != nil {
			return nil, err
		}
		if fromB, err = liquidityForAmount1(sqrtLower, sqrtCurrent, amountB); err != nil {
			return nil, err
		}
		liquidity = Min(fromA, fromB)
	default:
		liquidity, err = liquidityForAmount1(sqrtLower, sqrtUpper, amountB)
	}
	if err != nil {
		return nil, err
	}
	if liquidity.Gt(MaxUint128) {
		return nil, fmt.Errorf("%w: liquidity exceeds uint128", ErrArithmeticOverflow)
	}
	return liquidity, nil
}

func liquidityForAmount0(sqrtA, sqrtB, amount *uint256.Int) (*uint256.Int, error) {
	intermediate, err := MulDiv(sqrtA, sqrtB, Q64)
	if err != nil {
		return nil, err
	}
	return MulDiv(amount, intermediate, new(uint256.Int).Sub(sqrtB, sqrtA))
}

func liquidityForAmount1(sqrtA, sqrtB, amount *uint256.Int) (*uint256.Int, error) {
	return MulDiv(amount, Q64, new(uint256.Int).Sub(sqrtB, sqrtA))
}

// AddDelta applies a signed delta to a uint128 liquidity value.
func AddDelta(liquidity *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	if err := CheckInt128(delta); err != nil {
		return nil, err
	}
	magnitude, overflow := uint256.FromBig(new(big.Int).Abs(delta))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	if delta.Sign() < 0 {
		out, err := Sub(liquidity, magnitude)
		if err != nil {
			return nil, fmt.Errorf("%w: liquidity underflow", ErrArithmeticOverflow)
		}
		return out, nil
	}
	out, err := Add(liquidity, magnitude)
	if err != nil || out.Gt(MaxUint128) {
		return nil, fmt.Errorf("%w: liquidity exceeds uint128", ErrArithmeticOverflow)
	}
	return out, nil
}

// CheckInt128 fails when v does not fit a signed 128-bit integer.
func CheckInt128(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: missing value", ErrArithmeticOverflow)
	}
	if v.Cmp(maxInt128) > 0 || v.Cmp(minInt128) < 0 {
		return fmt.Errorf("%w: %s exceeds int128", ErrArithmeticOverflow, v)
	}
	return nil
}
