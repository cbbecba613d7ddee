package replay

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
)

// Transform converts a decoded V3 pool event into the engine request that
// reproduces it. Burns of zero liquidity only settle fees and become collects.
func Transform(ev *model.PoolEvent) (model.OperationRequest, error) {
	if ev == nil {
		return model.OperationRequest{}, fmt.Errorf("nil event")
	}
	req := model.OperationRequest{Timestamp: ev.Timestamp, Chain: ev.Ref()}

	switch data := ev.Decoded.(type) {
	case model.InitializeEventData:
		sqrtPrice, err := sqrtPriceX64(data.SqrtPriceX96)
		if err != nil {
			return model.OperationRequest{}, err
		}
		req.Op = model.OpInitialize
		req.SqrtPrice = sqrtPrice.Dec()
	case model.MintEventData:
		req.Op = model.OpAdd
		req.Owner = data.Owner
		req.TickLower, req.TickUpper = data.TickLower, data.TickUpper
		req.Liquidity = data.Amount
	case model.BurnEventData:
		req.Op = model.OpRemove
		if data.Amount == "0" {
			req.Op = model.OpCollect
		} else {
			req.Liquidity = data.Amount
		}
		req.Owner = data.Owner
		req.TickLower, req.TickUpper = data.TickLower, data.TickUpper
	case model.CollectEventData:
		req.Op = model.OpCollect
		req.Owner = data.Owner
		req.TickLower, req.TickUpper = data.TickLower, data.TickUpper
	case model.SwapEventData:
		amount0, ok0 := new(big.Int).SetString(data.Amount0, 10)
		amount1, ok1 := new(big.Int).SetString(data.Amount1, 10)
		if !ok0 || !ok1 {
			return model.OperationRequest{}, fmt.Errorf("swap amounts %q/%q", data.Amount0, data.Amount1)
		}
		switch {
		case amount0.Sign() > 0:
			req.Direction = pool.AToB.String()
			req.AmountIn = amount0.String()
		case amount1.Sign() > 0:
			req.Direction = pool.BToA.String()
			req.AmountIn = amount1.String()
		default:
			return model.OperationRequest{}, fmt.Errorf("swap without input: amount0=%s amount1=%s", data.Amount0, data.Amount1)
		}
		limit, err := sqrtPriceX64(data.SqrtPriceX96)
		if err != nil {
			return model.OperationRequest{}, err
		}
		req.Op = model.OpSwap
		req.Owner = data.Sender
		req.SqrtPriceLimit = limit.Dec()
	default:
		return model.OperationRequest{}, fmt.Errorf("unsupported event %s (%T)", ev.EventName, ev.Decoded)
	}
	return req, nil
}

// ConfigFromMeta builds the local pool parameters mirroring an on-chain pool.
// The start price comes from slot0 when the pool is already initialized.
func ConfigFromMeta(meta model.PoolMeta, seed uint64, maxSteps int) (pool.Config, error) {
	fee, err := FeeBpsFromPips(meta.Fee)
	if err != nil {
		return pool.Config{}, err
	}
	cfg := pool.Config{
		Seed:        seed,
		TickSpacing: meta.TickSpacing,
		FeeRateBps:  fee,
		MaxSteps:    maxSteps,
	}
	if cfg.AssetA, err = parseAddress("token0", meta.Token0); err != nil {
		return pool.Config{}, err
	}
	if cfg.AssetB, err = parseAddress("token1", meta.Token1); err != nil {
		return pool.Config{}, err
	}
	if meta.Slot0 != nil && meta.Slot0.SqrtPriceX96 != "" && meta.Slot0.SqrtPriceX96 != "0" {
		if cfg.InitialSqrtPrice, err = sqrtPriceX64(meta.Slot0.SqrtPriceX96); err != nil {
			return pool.Config{}, err
		}
	}
	return cfg, nil
}

// FeeBpsFromPips converts a V3 fee in hundredths of a bip to basis points.
func FeeBpsFromPips(pips uint32) (uint32, error) {
	if pips%100 != 0 {
		return 0, fmt.Errorf("%w: fee %d pips is not a whole number of bps", ErrInvalidRequest, pips)
	}
	return pips / 100, nil
}

func sqrtPriceX64(x96 string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(x96)
	if err != nil {
		return nil, fmt.Errorf("sqrt price %q: %w", x96, err)
	}
	return fixedpoint.SqrtPriceX64FromX96(v), nil
}

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
	}
}

func decodeError(lr model.LogRecord, stage string, err error) model.DecodeError {
	topic0 := ""
	if len(lr.Topics) > 0 {
		topic0 = lr.Topics[0]
	}
	return model.DecodeError{
		ChainID:     lr.ChainID,
		BlockNumber: lr.BlockNumber,
		TxHash:      lr.TxHash,
		LogIndex:    lr.LogIndex,
		Address:     lr.Address,
		Topic0:      topic0,
		Stage:       stage,
		Error:       err.Error(),
	}
}
