package config

import "github.com/spf13/pflag"

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	RPCURL        string
	Input         string
	Window        string
	PGDSN         string
	BatchSize     int
	StateFile     string
	RecomputeFrom string
	// Snapshots name the pools whose asset decimals are resolved.
	Snapshots []string
	// TokenDecimals pins decimals per asset address, ahead of any RPC lookup.
	TokenDecimals map[string]string
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"batch-size": 1000,
		"log-level":  "info",
		"window":     "5m",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	return AggregateConfig{
		RPCURL:        v.GetString("rpc"),
		Input:         v.GetString("in"),
		Window:        v.GetString("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: v.GetString("recompute-from"),
		Snapshots:     getStringSlice(v, "snapshot"),
		TokenDecimals: getStringMap(v, "token-decimals"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}
