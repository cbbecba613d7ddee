package aggregate

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"liquidityEngine/internal/fixedpoint"
)

const ratioScale = 18

var yearSeconds = decimal.NewFromInt(365 * 24 * 60 * 60)

// scaled renders a raw integer amount in whole units of a token.
func scaled(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

func scaledString(value string, decimals uint8) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, false
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return decimal.Zero, false
	}
	return scaled(v, decimals), true
}

// closePrice converts a Q64.64 sqrt price into a price of whole B per whole A.
func closePrice(sqrtPrice string, decimalsA, decimalsB uint8) (decimal.Decimal, bool) {
	if sqrtPrice == "" {
		return decimal.Zero, false
	}
	v, err := uint256.FromDecimal(sqrtPrice)
	if err != nil || v.IsZero() {
		return decimal.Zero, false
	}
	raw := fixedpoint.PriceFromSqrtPrice(v)
	return raw.Mul(decimal.New(1, int32(decimalsA)-int32(decimalsB))), true
}

// feeRate is fee over TVL; nil when either is zero.
func feeRate(fee, tvl decimal.Decimal) *string {
	if fee.IsZero() || !tvl.IsPositive() {
		return nil
	}
	return ptr(fee.DivRound(tvl, ratioScale).String())
}

// computeAPR annualizes the window's fees over the closing TVL, both valued in
// asset B at the closing price.
func computeAPR(feeA, feeB, tvlA, tvlB, price decimal.Decimal, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	fees := feeA.Mul(price).Add(feeB)
	tvl := tvlA.Mul(price).Add(tvlB)
	if !tvl.IsPositive() {
		return nil
	}
	window := decimal.NewFromInt(int64(windowSeconds))
	return ptr(fees.Mul(yearSeconds).DivRound(tvl.Mul(window), ratioScale).String())
}

func ptr(s string) *string { return &s }
