package fixedpoint

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPrice(t *testing.T, tick int32) *uint256.Int {
	t.Helper()
	price, err := SqrtPriceAtTick(tick)
	require.NoError(t, err)
	return price
}

func TestAmountDeltas(t *testing.T) {
	lower, upper := mustPrice(t, -100), mustPrice(t, 100)
	liquidity := uint256.NewInt(1_000_000_000_000_000_000)

	t.Run("asset A rounds in the requested direction", func(t *testing.T) {
		up, err := Amount0Delta(lower, upper, liquidity, true)
		require.NoError(t, err)
		down, err := Amount0Delta(upper, lower, liquidity, false)
		require.NoError(t, err)
		assert.Equal(t, "9999541693800300", up.Dec())
		assert.Equal(t, "9999541693800299", down.Dec())
	})

	t.Run("asset B rounds in the requested direction", func(t *testing.T) {
		up, err := Amount1Delta(lower, upper, liquidity, true)
		require.NoError(t, err)
		down, err := Amount1Delta(lower, upper, liquidity, false)
		require.NoError(t, err)
		assert.Equal(t, "9999541693800300", up.Dec())
		assert.Equal(t, "9999541693800299", down.Dec())
	})

	t.Run("zero liquidity spans nothing", func(t *testing.T) {
		a, err := Amount0Delta(lower, upper, new(uint256.Int), true)
		require.NoError(t, err)
		b, err := Amount1Delta(lower, upper, new(uint256.Int), true)
		require.NoError(t, err)
		assert.True(t, a.IsZero())
		assert.True(t, b.IsZero())
	})

	t.Run("liquidity above uint128 overflows", func(t *testing.T) {
		tooMuch := new(uint256.Int).Add(MaxUint128, one)
		_, err := Amount0Delta(lower, upper, tooMuch, true)
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
		_, err = Amount1Delta(lower, upper, tooMuch, false)
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})
}

func TestNextSqrtPriceFromInput(t *testing.T) {
	liquidity := uint256.NewInt(1_000_000)

	t.Run("selling A lowers the price", func(t *testing.T) {
		next, err := NextSqrtPriceFromInput(Q64, liquidity, uint256.NewInt(1_000), true)
		require.NoError(t, err)
		assert.Equal(t, "18428315757951600016", next.Dec())
	})

	t.Run("selling B raises the price", func(t *testing.T) {
		next, err := NextSqrtPriceFromInput(Q64, liquidity, uint256.NewInt(1_000), false)
		require.NoError(t, err)
		assert.Equal(t, "18465190817783261167", next.Dec())
	})

	t.Run("zero input keeps the price", func(t *testing.T) {
		next, err := NextSqrtPriceFromInput(Q64, liquidity, new(uint256.Int), true)
		require.NoError(t, err)
		assert.True(t, next.Eq(Q64))
	})

	t.Run("zero liquidity fails", func(t *testing.T) {
		_, err := NextSqrtPriceFromInput(Q64, new(uint256.Int), uint256.NewInt(1), true)
		assert.ErrorIs(t, err, ErrLiquidityZero)
	})
}

func TestComputeSwapStep(t *testing.T) {
	liquidity := uint256.NewInt(1_000_000)
	lower, upper := mustPrice(t, -100), mustPrice(t, 100)

	tests := []struct {
		name      string
		target    *uint256.Int
		remaining uint64
		fee       uint32
		next      string
		in        uint64
		out       uint64
		feeAmount uint64
	}{
		{"A in stops inside the range", lower, 1_000, 30, "18428370987834680440", 997, 996, 3},
		{"A in reaches the boundary", lower, 100_000, 30, lower.Dec(), 5_013, 4_987, 16},
		{"B in stops inside the range", upper, 1_000, 30, "18465135477551040038", 997, 996, 3},
		{"B in reaches the boundary", upper, 100_000, 30, upper.Dec(), 5_013, 4_987, 16},
		{"no fee", upper, 1_000, 0, "18465190817783261167", 1_000, 999, 0},
		{"dust is kept as fee", lower, 1, 30, Q64.Dec(), 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := ComputeSwapStep(Q64, tt.target, liquidity, uint256.NewInt(tt.remaining), tt.fee)
			require.NoError(t, err)
			assert.Equal(t, tt.next, step.SqrtPriceNext.Dec())
			assert.Equal(t, tt.in, step.AmountIn.Uint64())
			assert.Equal(t, tt.out, step.AmountOut.Uint64())
			assert.Equal(t, tt.feeAmount, step.FeeAmount.Uint64())
		})
	}

	t.Run("rejects a full fee", func(t *testing.T) {
		_, err := ComputeSwapStep(Q64, lower, liquidity, uint256.NewInt(1), FeeDenominatorBps)
		assert.ErrorIs(t, err, ErrFeeRate)
	})

	t.Run("zero liquidity moves straight to the target", func(t *testing.T) {
		step, err := ComputeSwapStep(Q64, lower, new(uint256.Int), uint256.NewInt(1_000), 30)
		require.NoError(t, err)
		assert.True(t, step.ReachedTarget(lower))
		assert.True(t, step.AmountIn.IsZero())
		assert.True(t, step.AmountOut.IsZero())
	})
}

func TestComputeSwapStep_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	span := int64(MaxTick - MinTick + 1)
	randTick := func() int32 { return MinTick + int32(rng.Int63n(span)) }
	randUint := func(bits int) *uint256.Int {
		v, _ := uint256.FromBig(new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), uint(bits))))
		return v
	}

	for i := 0; i < 1000; i++ {
		current := mustPrice(t, randTick())
		target := mustPrice(t, randTick())
		liquidity := randUint(100)
		remaining := randUint(100)
		if remaining.IsZero() {
			remaining.SetOne()
		}
		fee := uint32(rng.Intn(FeeDenominatorBps))

		step, err := ComputeSwapStep(current, target, liquidity, remaining, fee)
		if err != nil {
			require.ErrorIs(t, err, ErrArithmeticOverflow)
			continue
		}

		spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
		require.False(t, spent.Gt(remaining), "spent %s of %s", spent.Dec(), remaining.Dec())

		aToB := !current.Lt(target)
		if aToB {
			require.False(t, step.SqrtPriceNext.Gt(current))
			require.False(t, step.SqrtPriceNext.Lt(target))
		} else {
			require.False(t, step.SqrtPriceNext.Lt(current))
			require.False(t, step.SqrtPriceNext.Gt(target))
		}

		if !step.ReachedTarget(target) {
			require.True(t, spent.Eq(remaining), "a partial step consumes everything")
		}

		// Output never exceeds the curve for the realized move.
		var bound *uint256.Int
		if aToB {
			bound, err = Amount1Delta(step.SqrtPriceNext, current, liquidity, false)
		} else {
			bound, err = Amount0Delta(current, step.SqrtPriceNext, liquidity, false)
		}
		require.NoError(t, err)
		require.False(t, step.AmountOut.Gt(bound))
	}
}
