package config

import "github.com/spf13/pflag"

// SimulateConfig holds configuration for a scripted run against a fresh pool.
type SimulateConfig struct {
	Pool     PoolConfig
	Scenario string
	Journal  string
	Snapshot string
	PGDSN    string
	MaxSteps int
	AutoFund bool
	LogLevel string
}

// Load merges config file, environment variables, and flags into SimulateConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, merge(poolDefaults, map[string]any{
		"journal":   "./data/journal.jsonl",
		"snapshot":  "./data/snapshot.json",
		"auto-fund": true,
		"log-level": "info",
	}))
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		Pool:     loadPool(v),
		Scenario: v.GetString("scenario"),
		Journal:  v.GetString("journal"),
		Snapshot: v.GetString("snapshot"),
		PGDSN:    v.GetString("pg-dsn"),
		MaxSteps: v.GetInt("max-steps"),
		AutoFund: v.GetBool("auto-fund"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
