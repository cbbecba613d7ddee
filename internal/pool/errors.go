package pool

import (
	"context"
	"errors"

	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/position"
	"liquidityEngine/internal/tickledger"
)

var (
	ErrInvalidRange           = position.ErrInvalidRange
	ErrZeroAmount             = fixedpoint.ErrZeroAmount
	ErrArithmeticOverflow     = fixedpoint.ErrArithmeticOverflow
	ErrPriceOutOfBounds       = fixedpoint.ErrPriceOutOfBounds
	ErrLiquidityGrossOverflow = tickledger.ErrLiquidityGrossOverflow
	ErrInsufficientLiquidity  = position.ErrInsufficientLiquidity
	ErrPositionNotFound       = position.ErrPositionNotFound

	ErrZeroLiquidity      = errors.New("liquidity amount must be greater than zero")
	ErrSlippageExceeded   = errors.New("output below minimum")
	ErrAlreadyInitialized = errors.New("pool already initialized")
	ErrTransfer           = errors.New("transfer failed")
	ErrSameAsset          = errors.New("pool assets must differ")
	ErrInvalidConfig      = errors.New("invalid pool config")
	ErrZeroOutput         = errors.New("swap output is zero")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrTransfer, "TransferError"},
	{ErrInvalidRange, "InvalidRange"},
	{ErrZeroAmount, "ZeroAmount"},
	{ErrZeroLiquidity, "ZeroLiquidity"},
	{fixedpoint.ErrLiquidityZero, "ZeroLiquidity"},
	{ErrLiquidityGrossOverflow, "LiquidityGrossOverflow"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
	{ErrPriceOutOfBounds, "PriceOutOfBounds"},
	{ErrInsufficientLiquidity, "InsufficientLiquidity"},
	{ErrPositionNotFound, "PositionNotFound"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrSameAsset, "SameAsset"},
	{ErrInvalidConfig, "InvalidConfig"},
	{fixedpoint.ErrFeeRate, "InvalidConfig"},
	{ErrZeroOutput, "ZeroOutput"},
	{context.Canceled, "Canceled"},
	{context.DeadlineExceeded, "Canceled"},
}

// ErrorKind maps an error returned by this package to a stable kind name for
// journals and metrics. Nil maps to the empty string.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
