// Package config loads command settings from defaults, an optional config
// file, CLMM_-prefixed environment variables and command-line flags.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/pool"
)

const envPrefix = "CLMM"

// newViper layers defaults, the config file, the environment and flags.
// Without cfgFile, a config.* in the working directory is read when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}
	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// PoolConfig describes the pool a command creates. Price is asset B per asset
// A as a decimal; SqrtPrice, a Q64.64 integer, takes precedence when set.
type PoolConfig struct {
	AssetA              string
	AssetB              string
	Seed                uint64
	Price               string
	SqrtPrice           string
	TickSpacing         int32
	FeeBps              uint32
	MaxLiquidityPerTick string
}

var poolDefaults = map[string]any{
	"seed":         uint64(0),
	"tick-spacing": 10,
	"fee-bps":      30,
	"price":        "1",
}

func loadPool(v *viper.Viper) PoolConfig {
	return PoolConfig{
		AssetA:              v.GetString("asset-a"),
		AssetB:              v.GetString("asset-b"),
		Seed:                v.GetUint64("seed"),
		Price:               v.GetString("price"),
		SqrtPrice:           v.GetString("sqrt-price"),
		TickSpacing:         v.GetInt32("tick-spacing"),
		FeeBps:              v.GetUint32("fee-bps"),
		MaxLiquidityPerTick: v.GetString("max-liquidity-per-tick"),
	}
}

// Build validates the pool parameters and converts them into a pool.Config.
func (c PoolConfig) Build(maxSteps int) (pool.Config, error) {
	assetA, err := parseAddress("asset-a", c.AssetA)
	if err != nil {
		return pool.Config{}, err
	}
	assetB, err := parseAddress("asset-b", c.AssetB)
	if err != nil {
		return pool.Config{}, err
	}

	cfg := pool.Config{
		AssetA:      assetA,
		AssetB:      assetB,
		Seed:        c.Seed,
		TickSpacing: c.TickSpacing,
		FeeRateBps:  c.FeeBps,
		MaxSteps:    maxSteps,
	}

	switch {
	case strings.TrimSpace(c.SqrtPrice) != "":
		if cfg.InitialSqrtPrice, err = uint256.FromDecimal(strings.TrimSpace(c.SqrtPrice)); err != nil {
			return pool.Config{}, fmt.Errorf("parse sqrt-price: %w", err)
		}
	case strings.TrimSpace(c.Price) != "":
		price, err := decimal.NewFromString(strings.TrimSpace(c.Price))
		if err != nil {
			return pool.Config{}, fmt.Errorf("parse price: %w", err)
		}
		if cfg.InitialSqrtPrice, err = fixedpoint.SqrtPriceFromDecimal(price); err != nil {
			return pool.Config{}, fmt.Errorf("price %s: %w", price, err)
		}
	default:
		return pool.Config{}, fmt.Errorf("price or sqrt-price is required")
	}

	if s := strings.TrimSpace(c.MaxLiquidityPerTick); s != "" {
		if cfg.MaxLiquidityPerTick, err = uint256.FromDecimal(s); err != nil {
			return pool.Config{}, fmt.Errorf("parse max-liquidity-per-tick: %w", err)
		}
	}
	return cfg, nil
}

func parseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", field, input)
	}
	return common.HexToAddress(input), nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if val, err := strconv.ParseUint(input, 10, 64); err == nil {
		return val, nil
	}
	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither unix seconds nor RFC3339", input)
	}
	return uint64(tm.Unix()), nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}
	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

// getStringMap reads a map from a config file table or from a
// "key=value,key=value" flag or environment value.
func getStringMap(v *viper.Viper, key string) map[string]string {
	out := make(map[string]string)
	if !v.IsSet(key) {
		return out
	}
	switch typed := v.Get(key).(type) {
	case map[string]string:
		for k, val := range typed {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range typed {
			out[k] = fmt.Sprintf("%v", val)
		}
	case string:
		for _, pair := range strings.Split(typed, ",") {
			k, val, ok := strings.Cut(pair, "=")
			k, val = strings.TrimSpace(k), strings.TrimSpace(val)
			if !ok || k == "" || val == "" {
				continue
			}
			out[k] = val
		}
	}
	return out
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
