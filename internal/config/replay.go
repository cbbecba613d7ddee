package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for replaying an on-chain V3 pool.
type ReplayConfig struct {
	RPCURL            string
	Pool              string
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Seed              uint64
	MaxSteps          int
	Journal           string
	Errors            string
	Snapshot          string
	Checkpoint        string
	CheckpointEnabled bool
	PGDSN             string
	MaxRetries        int
	RetryBackoff      time.Duration
	MetricsAddr       string
	Topic0Map         map[string]string
	LogLevel          string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"batch-size":         uint64(2000),
		"journal":            "./data/replay_journal.jsonl",
		"errors":             "./data/decode_errors.jsonl",
		"snapshot":           "./data/replay_snapshot.json",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"log-level":          "info",
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	return ReplayConfig{
		RPCURL:            v.GetString("rpc"),
		Pool:              v.GetString("pool"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Seed:              v.GetUint64("seed"),
		MaxSteps:          v.GetInt("max-steps"),
		Journal:           v.GetString("journal"),
		Errors:            v.GetString("errors"),
		Snapshot:          v.GetString("snapshot"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		PGDSN:             v.GetString("pg-dsn"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MetricsAddr:       v.GetString("metrics-addr"),
		Topic0Map:         getStringMap(v, "topic0-map"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}
