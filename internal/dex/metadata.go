package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityEngine/internal/model"
)

// Cache is a concurrency-safe map keyed by contract address.
type Cache[V any] struct {
	mu   sync.RWMutex
	data map[common.Address]V
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{data: make(map[common.Address]V)}
}

func (c *Cache[V]) Get(address common.Address) (V, bool) {
	c.mu.RLock()
	v, ok := c.data[address]
	c.mu.RUnlock()
	return v, ok
}

func (c *Cache[V]) Set(address common.Address, v V) {
	c.mu.Lock()
	c.data[address] = v
	c.mu.Unlock()
}

type (
	PoolMetaCache  = Cache[model.PoolMeta]
	TokenMetaCache = Cache[model.TokenMeta]
)

func NewPoolMetaCache() *PoolMetaCache   { return NewCache[model.PoolMeta]() }
func NewTokenMetaCache() *TokenMetaCache { return NewCache[model.TokenMeta]() }

// poolMeta returns cached metadata for pool, fetching and caching it on a miss.
func poolMeta(dc DecodeContext, pool common.Address) (model.PoolMeta, error) {
	if dc.PoolMetaCache != nil {
		if meta, ok := dc.PoolMetaCache.Get(pool); ok {
			return meta, nil
		}
	}
	if dc.Chain == nil {
		return model.PoolMeta{}, fmt.Errorf("no metadata for pool %s and no chain client", pool.Hex())
	}
	meta, err := FetchPoolMeta(dc.ctx(), dc.Chain, pool, nil)
	if err != nil {
		return model.PoolMeta{}, err
	}
	if dc.TokenMetaCache != nil {
		for _, token := range []string{meta.Token0, meta.Token1} {
			addr := common.HexToAddress(token)
			if _, ok := dc.TokenMetaCache.Get(addr); ok {
				continue
			}
			tokenMeta, err := FetchTokenMeta(dc.ctx(), dc.Chain, addr, dc.logger())
			if err != nil {
				dc.logger().Warn("token metadata fetch failed", zap.String("token", token), zap.Error(err))
			}
			dc.TokenMetaCache.Set(addr, tokenMeta)
		}
	}
	if dc.PoolMetaCache != nil {
		dc.PoolMetaCache.Set(pool, meta)
	}
	return meta, nil
}

// FetchPoolMeta reads the pair, fee and tick spacing of a V3 pool together
// with slot0 and in-range liquidity at block (nil means latest).
func FetchPoolMeta(ctx context.Context, caller Caller, pool common.Address, block *big.Int) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}
	call := func(method string) ([]interface{}, error) {
		return callMethod(ctx, caller, pool, poolABI, method, block)
	}

	var meta model.PoolMeta
	for _, step := range []struct {
		method string
		apply  func([]interface{}) error
	}{
		{"token0", func(v []interface{}) error {
			addr, err := asAddress(v[0])
			meta.Token0 = addr.Hex()
			return err
		}},
		{"token1", func(v []interface{}) error {
			addr, err := asAddress(v[0])
			meta.Token1 = addr.Hex()
			return err
		}},
		{"fee", func(v []interface{}) error {
			fee, err := asBigInt(v[0])
			if err == nil {
				meta.Fee = uint32(fee.Uint64())
			}
			return err
		}},
		{"tickSpacing", func(v []interface{}) error {
			spacing, err := asBigInt(v[0])
			if err == nil {
				meta.TickSpacing, err = int24FromBig(spacing)
			}
			return err
		}},
		{"liquidity", func(v []interface{}) error {
			liquidity, err := asBigInt(v[0])
			if err == nil {
				meta.Liquidity = liquidity.String()
			}
			return err
		}},
		{"slot0", func(v []interface{}) error {
			if len(v) < 2 {
				return fmt.Errorf("short slot0: %d values", len(v))
			}
			sqrtPrice, err := asBigInt(v[0])
			if err != nil {
				return err
			}
			tickInt, err := asBigInt(v[1])
			if err != nil {
				return err
			}
			tick, err := int24FromBig(tickInt)
			if err != nil {
				return err
			}
			meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: sqrtPrice.String(), Tick: tick}
			return nil
		}},
	} {
		values, err := call(step.method)
		if err != nil {
			return model.PoolMeta{}, err
		}
		if len(values) == 0 {
			return model.PoolMeta{}, fmt.Errorf("%s: empty result", step.method)
		}
		if err := step.apply(values); err != nil {
			return model.PoolMeta{}, fmt.Errorf("%s: %w", step.method, err)
		}
	}
	return meta, nil
}

// FetchTokenMeta loads ERC20 decimals, symbol and name. Symbol and name fall
// back to the bytes32 flavour and are left empty when both fail.
func FetchTokenMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20ABIString.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	if meta.Decimals, err = asUint8(values[0]); err != nil {
		return meta, err
	}

	text := func(method string) string {
		if values, err := callMethod(ctx, caller, token, stringABI, method, nil); err == nil {
			if s, ok := values[0].(string); ok {
				return s
			}
		}
		values, err := callMethod(ctx, caller, token, bytes32ABI, method, nil)
		if err != nil {
			logger.Debug("token text call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
			return ""
		}
		s, _ := bytes32ToString(values[0])
		return s
	}
	meta.Symbol = text("symbol")
	meta.Name = text("name")
	return meta, nil
}

func callMethod(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	v, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("uint8 overflow: %s", v)
	}
	return uint8(v.Uint64()), nil
}

var (
	minInt24 = big.NewInt(-1 << 23)
	maxInt24 = big.NewInt(1<<23 - 1)
)

func int24FromBig(value *big.Int) (int32, error) {
	if value.Cmp(minInt24) < 0 || value.Cmp(maxInt24) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
