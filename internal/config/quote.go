package config

import "github.com/spf13/pflag"

// QuoteConfig holds configuration for a read-only swap quote.
type QuoteConfig struct {
	Snapshot       string
	PGDSN          string
	PoolID         string
	AmountIn       string
	Direction      string
	SqrtPriceLimit string
	MaxSteps       int
	LogLevel       string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"snapshot":  "./data/snapshot.json",
		"direction": "a_to_b",
		"log-level": "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		Snapshot:       v.GetString("snapshot"),
		PGDSN:          v.GetString("pg-dsn"),
		PoolID:         v.GetString("pool-id"),
		AmountIn:       v.GetString("amount-in"),
		Direction:      v.GetString("direction"),
		SqrtPriceLimit: v.GetString("sqrt-price-limit"),
		MaxSteps:       v.GetInt("max-steps"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
