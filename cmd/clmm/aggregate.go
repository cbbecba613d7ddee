package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/aggregate"
	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/postgres"
)

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate an operation journal into window metrics",
		RunE:  runAggregate,
	}
	cmd.Flags().String("rpc", "", "optional JSON-RPC URL for token decimals")
	cmd.Flags().String("in", "", "input operation journal JSONL")
	cmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	cmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	cmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	cmd.Flags().StringSlice("snapshot", nil, "pool snapshots naming the assets of each pool")
	cmd.Flags().String("token-decimals", "", "asset decimals (comma-separated address=decimals)")
	return cmd
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadAggregate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	windowDuration, err := time.ParseDuration(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	windowSeconds := uint64(windowDuration.Seconds())
	if windowSeconds == 0 {
		return fmt.Errorf("window must be at least 1s")
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	var caller dex.Caller
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		caller = chainClient
	}

	decimals := aggregate.NewTokenDecimals(caller, logger)
	for addr, value := range cfg.TokenDecimals {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid token address: %q", addr)
		}
		d, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid decimals for %s: %w", addr, err)
		}
		decimals.Set(common.HexToAddress(addr), uint8(d))
	}
	for _, path := range cfg.Snapshots {
		snap, ok, err := storage.NewSnapshotFile(path).Load()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("snapshot %s not found", path)
		}
		decimals.RegisterPool(snap.Pool.PoolID, common.HexToAddress(snap.Pool.AssetA), common.HexToAddress(snap.Pool.AssetB))
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	stateName := fmt.Sprintf("aggregate:%d", windowSeconds)
	var stateStore aggregate.StateStore = storage.StateRow{Store: store, Name: stateName}
	if cfg.StateFile != "" {
		stateStore = storage.NewStateFile(cfg.StateFile, stateName)
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    stateStore,
	}, store, decimals, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
		zap.Int("pools", len(cfg.Snapshots)),
	)

	return agg.Run(ctx, cfg.Input)
}
