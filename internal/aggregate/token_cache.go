package aggregate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityEngine/internal/dex"
)

// TokenDecimals resolves the decimals of pool assets. Assets with no known
// decimals and no chain to ask are treated as having none.
type TokenDecimals struct {
	mu     sync.RWMutex
	data   map[common.Address]uint8
	pools  map[string][2]common.Address
	caller dex.Caller
	logger *zap.Logger
}

// NewTokenDecimals creates a resolver. caller may be nil.
func NewTokenDecimals(caller dex.Caller, logger *zap.Logger) *TokenDecimals {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenDecimals{
		data:   make(map[common.Address]uint8),
		pools:  make(map[string][2]common.Address),
		caller: caller,
		logger: logger,
	}
}

func (c *TokenDecimals) Set(asset common.Address, decimals uint8) {
	c.mu.Lock()
	c.data[asset] = decimals
	c.mu.Unlock()
}

// RegisterPool records the assets behind a pool id.
func (c *TokenDecimals) RegisterPool(poolID string, assetA, assetB common.Address) {
	c.mu.Lock()
	c.pools[strings.ToLower(poolID)] = [2]common.Address{assetA, assetB}
	c.mu.Unlock()
}

// Get returns the decimals of asset, fetching them over eth_call on a miss.
func (c *TokenDecimals) Get(ctx context.Context, asset common.Address) (uint8, error) {
	c.mu.RLock()
	decimals, ok := c.data[asset]
	c.mu.RUnlock()
	if ok {
		return decimals, nil
	}
	if c.caller == nil {
		return 0, fmt.Errorf("no decimals for %s", asset.Hex())
	}
	meta, err := dex.FetchTokenMeta(ctx, c.caller, asset, c.logger)
	if err != nil {
		return 0, err
	}
	c.Set(asset, meta.Decimals)
	return meta.Decimals, nil
}

// Pool returns the decimals of both assets of poolID, zero when unknown.
func (c *TokenDecimals) Pool(ctx context.Context, poolID string) (uint8, uint8) {
	c.mu.RLock()
	assets, ok := c.pools[strings.ToLower(poolID)]
	c.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	var out [2]uint8
	for i, asset := range assets {
		decimals, err := c.Get(ctx, asset)
		if err != nil {
			c.logger.Debug("token decimals unavailable", zap.String("token", asset.Hex()), zap.Error(err))
		}
		out[i] = decimals
	}
	return out[0], out[1]
}
