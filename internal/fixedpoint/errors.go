package fixedpoint

import "errors"

var (
	// ErrArithmeticOverflow is returned whenever a result does not fit its
	// fixed-width representation or a divisor is zero.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrPriceOutOfBounds is returned for ticks or sqrt prices outside the
	// supported range.
	ErrPriceOutOfBounds = errors.New("price out of bounds")
	// ErrZeroAmount is returned when a conversion is asked to work on zero.
	ErrZeroAmount = errors.New("amount must be greater than zero")
	// ErrLiquidityZero is returned when a price move is computed against zero liquidity.
	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	// ErrFeeRate is returned for fee rates at or above 100%.
	ErrFeeRate = errors.New("fee rate must be below 10000 bps")
)
