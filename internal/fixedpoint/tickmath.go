package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// Resolution is the number of fractional bits of a Q64.64 sqrt price.
	Resolution = 64

	// MinTick is the lowest tick whose sqrt price is distinguishable from its
	// neighbour in Q64.64.
	MinTick int32 = -443636
	// MaxTick is the highest supported tick.
	MaxTick int32 = 443636
)

var (
	one = uint256.NewInt(1)

	// Q64 is 1.0 in Q64.64.
	Q64 = new(uint256.Int).Lsh(one, 64)
	// MaxUint128 bounds liquidity values.
	MaxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(one, 128), one)

	q128       = new(uint256.Int).Lsh(one, 128)
	maxUint256 = new(uint256.Int).Not(new(uint256.Int))
	lowMask64  = new(uint256.Int).Sub(Q64, one)

	// tickRatios[i] is 2^128 / sqrt(1.0001)^(2^i) in Q128.128.
	// Bit 18 is the highest bit set by |MaxTick|.
	tickRatios = [19]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	}

	// MinSqrtPrice is SqrtPriceAtTick(MinTick).
	MinSqrtPrice = mustSqrtPriceAtTick(MinTick)
	// MaxSqrtPrice is SqrtPriceAtTick(MaxTick).
	MaxSqrtPrice = mustSqrtPriceAtTick(MaxTick)
)

// SqrtPriceAtTick returns sqrt(1.0001^tick) as a Q64.64 value, rounded up.
// The result is strictly increasing in tick.
func SqrtPriceAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: tick %d", ErrPriceOutOfBounds, tick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(tickRatios[0])
	} else {
		ratio.Set(q128)
	}
	for i := 1; i < len(tickRatios); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickRatios[i]).Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 -> Q64.64, rounding up so the inverse lands on the same tick.
	rem := new(uint256.Int).And(ratio, lowMask64)
	ratio.Rsh(ratio, 64)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// TickAtSqrtPrice returns the greatest tick t such that SqrtPriceAtTick(t) <= sqrtPrice.
func TickAtSqrtPrice(sqrtPrice *uint256.Int) (int32, error) {
	if err := CheckSqrtPrice(sqrtPrice); err != nil {
		return 0, err
	}

	low, high := MinTick, MaxTick
	for low < high {
		mid := low + (high-low+1)/2
		if mustSqrtPriceAtTick(mid).Cmp(sqrtPrice) <= 0 {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low, nil
}

// CheckSqrtPrice reports whether sqrtPrice lies within [MinSqrtPrice, MaxSqrtPrice].
func CheckSqrtPrice(sqrtPrice *uint256.Int) error {
	if sqrtPrice == nil {
		return fmt.Errorf("%w: missing sqrt price", ErrPriceOutOfBounds)
	}
	if sqrtPrice.Lt(MinSqrtPrice) || sqrtPrice.Gt(MaxSqrtPrice) {
		return fmt.Errorf("%w: sqrt price %s", ErrPriceOutOfBounds, sqrtPrice.Dec())
	}
	return nil
}

// CheckPoolSqrtPrice reports whether sqrtPrice can be a pool's current price,
// which must lie within [MinSqrtPrice, MaxSqrtPrice) so tick+1 stays in range.
func CheckPoolSqrtPrice(sqrtPrice *uint256.Int) error {
	if err := CheckSqrtPrice(sqrtPrice); err != nil {
		return err
	}
	if !sqrtPrice.Lt(MaxSqrtPrice) {
		return fmt.Errorf("%w: sqrt price %s at upper bound", ErrPriceOutOfBounds, sqrtPrice.Dec())
	}
	return nil
}

func mustSqrtPriceAtTick(tick int32) *uint256.Int {
	price, err := SqrtPriceAtTick(tick)
	if err != nil {
		panic(err)
	}
	return price
}
