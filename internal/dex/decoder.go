// Package dex decodes Uniswap and PancakeSwap V3 pool logs and reads pool
// metadata over eth_call.
package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"

	"liquidityEngine/internal/model"
)

// Event names produced by the decoder.
const (
	EventInitialize = "Initialize"
	EventSwap       = "Swap"
	EventMint       = "Mint"
	EventBurn       = "Burn"
	EventCollect    = "Collect"
)

// Caller performs read-only contract calls. *chain.Client implements it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Decoder turns a raw log into a pool event.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, dc DecodeContext) (*model.PoolEvent, error)
}

// DecodeContext provides shared dependencies for decoders. Chain may be nil
// when every pool is already in PoolMetaCache.
type DecodeContext struct {
	Context        context.Context
	Chain          Caller
	PoolMetaCache  *PoolMetaCache
	TokenMetaCache *TokenMetaCache
	Logger         *zap.Logger
}

func (dc DecodeContext) ctx() context.Context {
	if dc.Context == nil {
		return context.Background()
	}
	return dc.Context
}

func (dc DecodeContext) logger() *zap.Logger {
	if dc.Logger == nil {
		return zap.NewNop()
	}
	return dc.Logger
}
