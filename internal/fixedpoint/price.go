package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PriceDecimals is the precision used when rendering prices.
const PriceDecimals = 18

var q128Decimal = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 128), 0)

// SqrtPriceFromPrice converts an integer price (asset B per asset A) into a Q64.64 sqrt price.
func SqrtPriceFromPrice(price uint64) (*uint256.Int, error) {
	if price == 0 {
		return nil, ErrZeroAmount
	}
	shifted := new(uint256.Int).Lsh(uint256.NewInt(price), 128)
	sqrtPrice := new(uint256.Int).Sqrt(shifted)
	if err := CheckSqrtPrice(sqrtPrice); err != nil {
		return nil, err
	}
	return sqrtPrice, nil
}

// SqrtPriceFromDecimal converts a human-readable price into a Q64.64 sqrt
// price, truncating toward zero.
func SqrtPriceFromDecimal(price decimal.Decimal) (*uint256.Int, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price %s", ErrZeroAmount, price)
	}
	scaled, overflow := uint256.FromBig(price.Mul(q128Decimal).BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: price %s", ErrPriceOutOfBounds, price)
	}
	sqrtPrice := new(uint256.Int).Sqrt(scaled)
	if err := CheckSqrtPrice(sqrtPrice); err != nil {
		return nil, err
	}
	return sqrtPrice, nil
}

// PriceFromSqrtPrice renders a Q64.64 sqrt price as asset B per asset A.
func PriceFromSqrtPrice(sqrtPrice *uint256.Int) decimal.Decimal {
	if sqrtPrice == nil {
		return decimal.Zero
	}
	root := decimal.NewFromBigInt(sqrtPrice.ToBig(), 0)
	return root.Mul(root).DivRound(q128Decimal, PriceDecimals)
}

// SqrtPriceX64FromX96 narrows a Uniswap Q64.96 sqrt price to Q64.64, truncating.
func SqrtPriceX64FromX96(x96 *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x96, 96-Resolution)
}

// SqrtPriceX96FromX64 widens a Q64.64 sqrt price to Q64.96.
func SqrtPriceX96FromX64(x64 *uint256.Int) *uint256.Int {
	return new(uint256.Int).Lsh(x64, 96-Resolution)
}
