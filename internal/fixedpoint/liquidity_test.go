package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountsForLiquidity(t *testing.T) {
	lower, upper := mustPrice(t, -100), mustPrice(t, 100)
	liquidity := uint256.NewInt(1_000_000)

	tests := []struct {
		name    string
		current *uint256.Int
		roundUp bool
		wantA   uint64
		wantB   uint64
	}{
		{"inside rounded up", Q64, true, 4_988, 4_988},
		{"inside rounded down", Q64, false, 4_987, 4_987},
		{"below the range holds only A", mustPrice(t, -200), true, 10_000, 0},
		{"at the lower bound holds only A", lower, true, 10_000, 0},
		{"at the upper bound holds only B", upper, true, 0, 10_000},
		{"above the range holds only B", mustPrice(t, 200), true, 0, 10_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, err := AmountsForLiquidity(liquidity, lower, upper, tt.current, tt.roundUp)
			require.NoError(t, err)
			assert.Equal(t, tt.wantA, a.Uint64())
			assert.Equal(t, tt.wantB, b.Uint64())
		})
	}

	t.Run("rejects an inverted range", func(t *testing.T) {
		_, _, err := AmountsForLiquidity(liquidity, upper, lower, Q64, true)
		assert.ErrorIs(t, err, ErrPriceOutOfBounds)
	})
}

func TestLiquidityForAmounts(t *testing.T) {
	lower, upper := mustPrice(t, -100), mustPrice(t, 100)

	t.Run("inside takes the smaller side", func(t *testing.T) {
		liquidity, err := LiquidityForAmounts(uint256.NewInt(4_987), uint256.NewInt(4_987), lower, upper, Q64)
		require.NoError(t, err)
		assert.Equal(t, uint64(999_945), liquidity.Uint64())

		oneSided, err := LiquidityForAmounts(uint256.NewInt(4_987), new(uint256.Int), lower, upper, Q64)
		require.NoError(t, err)
		assert.True(t, oneSided.IsZero())
	})

	t.Run("outside uses a single asset", func(t *testing.T) {
		below, err := LiquidityForAmounts(uint256.NewInt(1_000_000), new(uint256.Int), lower, upper, lower)
		require.NoError(t, err)
		above, err := LiquidityForAmounts(new(uint256.Int), uint256.NewInt(1_000_000), lower, upper, upper)
		require.NoError(t, err)
		assert.Equal(t, uint64(100_004_583), below.Uint64())
		assert.Equal(t, uint64(100_004_583), above.Uint64())
	})

	t.Run("never exceeds what the amounts back", func(t *testing.T) {
		for _, l := range []uint64{1, 17, 1_000, 1_000_000, 123_456_789_012} {
			want := uint256.NewInt(l)
			a, b, err := AmountsForLiquidity(want, lower, upper, Q64, false)
			require.NoError(t, err)
			got, err := LiquidityForAmounts(a, b, lower, upper, Q64)
			require.NoError(t, err)
			assert.False(t, got.Gt(want), "liquidity %d came back as %s", l, got.Dec())
		}
	})
}

func TestAddDelta(t *testing.T) {
	t.Run("adds and subtracts", func(t *testing.T) {
		got, err := AddDelta(uint256.NewInt(10), big.NewInt(5))
		require.NoError(t, err)
		assert.Equal(t, uint64(15), got.Uint64())

		got, err = AddDelta(uint256.NewInt(10), big.NewInt(-10))
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("underflow", func(t *testing.T) {
		_, err := AddDelta(uint256.NewInt(10), big.NewInt(-11))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("exceeds uint128", func(t *testing.T) {
		maxInt := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
		_, err := AddDelta(MaxUint128, maxInt)
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("delta outside int128", func(t *testing.T) {
		_, err := AddDelta(new(uint256.Int), new(big.Int).Lsh(big.NewInt(1), 127))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})
}

func TestMulDiv(t *testing.T) {
	t.Run("rounds up only with a remainder", func(t *testing.T) {
		down, err := MulDiv(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
		require.NoError(t, err)
		up, err := MulDivRoundingUp(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
		require.NoError(t, err)
		exact, err := MulDivRoundingUp(uint256.NewInt(8), uint256.NewInt(3), uint256.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(10), down.Uint64())
		assert.Equal(t, uint64(11), up.Uint64())
		assert.Equal(t, uint64(12), exact.Uint64())
	})

	t.Run("wide intermediate product", func(t *testing.T) {
		got, err := MulDiv(maxUint256, maxUint256, maxUint256)
		require.NoError(t, err)
		assert.True(t, got.Eq(maxUint256))
	})

	t.Run("overflowing result", func(t *testing.T) {
		_, err := MulDiv(maxUint256, uint256.NewInt(2), one)
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("zero divisor", func(t *testing.T) {
		_, err := MulDiv(one, one, new(uint256.Int))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
		_, err = DivRoundingUp(one, new(uint256.Int))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("fee growth wraps", func(t *testing.T) {
		got := WrappingSub(uint256.NewInt(1), uint256.NewInt(2))
		assert.True(t, got.Eq(maxUint256))
	})
}

func TestPriceConversions(t *testing.T) {
	t.Run("integer prices", func(t *testing.T) {
		sqrtPrice, err := SqrtPriceFromPrice(1)
		require.NoError(t, err)
		assert.True(t, sqrtPrice.Eq(Q64))

		sqrtPrice, err = SqrtPriceFromPrice(4)
		require.NoError(t, err)
		assert.Equal(t, "36893488147419103232", sqrtPrice.Dec())

		_, err = SqrtPriceFromPrice(0)
		assert.ErrorIs(t, err, ErrZeroAmount)
	})

	t.Run("decimal prices", func(t *testing.T) {
		sqrtPrice, err := SqrtPriceFromDecimal(decimal.NewFromInt(4))
		require.NoError(t, err)
		assert.Equal(t, "36893488147419103232", sqrtPrice.Dec())

		quarter, err := SqrtPriceFromDecimal(decimal.RequireFromString("0.25"))
		require.NoError(t, err)
		assert.True(t, quarter.Eq(new(uint256.Int).Rsh(Q64, 1)))

		assert.Equal(t, "4", PriceFromSqrtPrice(sqrtPrice).String())
		assert.Equal(t, "0.25", PriceFromSqrtPrice(quarter).String())

		_, err = SqrtPriceFromDecimal(decimal.Zero)
		assert.ErrorIs(t, err, ErrZeroAmount)
		_, err = SqrtPriceFromDecimal(decimal.New(1, 40))
		assert.ErrorIs(t, err, ErrPriceOutOfBounds)
	})

	t.Run("Q64.96 conversion", func(t *testing.T) {
		x96 := new(uint256.Int).Lsh(one, 96)
		assert.True(t, SqrtPriceX64FromX96(x96).Eq(Q64))
		assert.True(t, SqrtPriceX96FromX64(Q64).Eq(x96))
	})
}
