package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
	"liquidityEngine/internal/replay"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/postgres"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the events of an on-chain V3 pool into a local pool",
		RunE:  runReplay,
	}
	cmd.Flags().String("rpc", "", "JSON-RPC URL")
	cmd.Flags().String("pool", "", "V3 pool contract address")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().Uint64("seed", 0, "local pool seed")
	cmd.Flags().Int("max-steps", 0, "swap step bound, 0 means unbounded")
	cmd.Flags().String("journal", "./data/replay_journal.jsonl", "output operation journal JSONL")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "output JSONL of logs that could not be replayed")
	cmd.Flags().String("snapshot", "./data/replay_snapshot.json", "pool snapshot JSON, saved per batch and read on resume")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for journal, snapshot and checkpoint")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	return cmd
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadReplay(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	poolAddr, err := replay.ParsePoolAddress(cfg.Pool)
	if err != nil {
		return err
	}
	topicMap, err := replay.ParseTopic0Map(cfg.Topic0Map)
	if err != nil {
		return err
	}
	decoder, err := dex.NewV3PoolDecoder(dex.DecoderConfig{Topic0Map: topicMap})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}

	ledger := custody.NewLedger()
	registry := pool.NewRegistry(pool.Deps{
		Custody: ledger,
		Shares:  custody.NewShareRegistry(),
		Logger:  logger,
		Metrics: pool.NewMetrics(reg),
	})
	applier := replay.NewApplier(registry, pool.Config{}, logger, replay.WithAutoFund(ledger))

	journal := storage.MultiJournal{storage.NewJsonlStorage(cfg.Journal)}
	snapshotFile := storage.NewSnapshotFile(cfg.Snapshot)
	snapshots := []replay.SnapshotSink{snapshotFile}
	stateName := "replay:" + poolAddr.Hex()
	var checkpoint replay.Checkpointer
	if cfg.CheckpointEnabled {
		checkpoint = storage.NewStateFile(cfg.Checkpoint, stateName)
	}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		if store, err = postgres.NewStore(ctx, cfg.PGDSN); err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = append(journal, store.Journal(ctx))
		snapshots = append(snapshots, store)
		if cfg.CheckpointEnabled {
			checkpoint = storage.StateRow{Store: store, Name: stateName}
		}
	}

	if checkpoint != nil {
		if err := resumePool(ctx, cfg, poolAddr, checkpoint, snapshotFile, store, chainClient, registry, ledger, logger); err != nil {
			return err
		}
	}

	runner := replay.NewRunner(replay.RunConfig{
		Pool:         poolAddr,
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		BatchSize:    cfg.BatchSize,
		Seed:         cfg.Seed,
		MaxSteps:     cfg.MaxSteps,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, replay.RunnerDeps{
		Chain:        chainClient,
		Decoder:      decoder,
		Applier:      applier,
		Journal:      journal,
		Checkpoint:   checkpoint,
		Snapshots:    snapshots,
		DecodeErrors: storage.NewJsonlStorage(cfg.Errors),
		Metrics:      replay.NewMetrics(reg),
		Logger:       logger,
	})

	logger.Info("replay start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pool", poolAddr.Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("journal", cfg.Journal),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	started := time.Now()
	if err := runner.Run(ctx); err != nil {
		return err
	}
	if p := applier.Pool(); p != nil {
		logger.Info("replay complete", zap.Any("pool", viewStatus(p)), elapsed(started))
	}
	return nil
}

// resumePool restores the local pool from the latest snapshot when a
// checkpoint exists, so replay continues from the checkpointed state.
func resumePool(
	ctx context.Context,
	cfg config.ReplayConfig,
	poolAddr common.Address,
	checkpoint replay.Checkpointer,
	file *storage.SnapshotFile,
	store *postgres.Store,
	chainClient *chain.Client,
	registry *pool.Registry,
	ledger *custody.Ledger,
	logger *zap.Logger,
) error {
	last, ok, err := checkpoint.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return nil
	}

	var snap model.PoolSnapshot
	if store != nil {
		meta, err := dex.FetchPoolMeta(ctx, chainClient, poolAddr, nil)
		if err != nil {
			return fmt.Errorf("fetch pool metadata: %w", err)
		}
		key := pool.Key{AssetA: common.HexToAddress(meta.Token0), AssetB: common.HexToAddress(meta.Token1), Seed: cfg.Seed}
		snap, ok, err = store.LoadSnapshot(ctx, key.ID().Hex())
		if err != nil {
			return err
		}
	} else if snap, ok, err = file.Load(); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checkpoint at block %d has no pool snapshot", last)
	}

	p, err := restorePool(snap, cfg.MaxSteps, registry, ledger)
	if err != nil {
		return err
	}
	logger.Info("pool restored", zap.String("pool", p.ID().Hex()), zap.Uint64("last_processed", last), zap.Int32("tick", p.Status().Tick))
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
