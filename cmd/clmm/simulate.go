package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/config"
	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
	"liquidityEngine/internal/replay"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/postgres"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply a JSONL scenario to a fresh pool",
		RunE:  runSimulate,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("scenario", "", "input scenario JSONL of operation requests")
	cmd.Flags().String("journal", "./data/journal.jsonl", "output operation journal JSONL")
	cmd.Flags().String("snapshot", "./data/snapshot.json", "output pool snapshot JSON")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the journal and snapshot")
	cmd.Flags().Int("max-steps", 0, "swap step bound, 0 means unbounded")
	cmd.Flags().Bool("auto-fund", true, "mint each actor exactly what its request pulls")
	return cmd
}

type simulateSummary struct {
	Applied int            `json:"applied"`
	Failed  int            `json:"failed"`
	Kinds   map[string]int `json:"failures_by_kind,omitempty"`
	Pool    *statusView    `json:"pool,omitempty"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	poolCfg, err := cfg.Pool.Build(cfg.MaxSteps)
	if err != nil {
		return err
	}
	reqs, err := storage.ReadRequests(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	ledger := custody.NewLedger()
	registry := pool.NewRegistry(pool.Deps{
		Custody: ledger,
		Shares:  custody.NewShareRegistry(),
		Logger:  logger,
	})

	var opts []replay.ApplierOption
	if cfg.AutoFund {
		opts = append(opts, replay.WithAutoFund(ledger))
	}
	applier := replay.NewApplier(registry, poolCfg, logger, opts...)

	// Scenarios without an explicit initialize start at the configured price.
	if len(reqs) == 0 || reqs[0].Op != model.OpInitialize {
		if _, err := registry.InitializePool(poolCfg); err != nil {
			return fmt.Errorf("initialize pool: %w", err)
		}
	}

	var journal storage.MultiJournal
	var snapshots []replay.SnapshotSink
	if cfg.Journal != "" {
		journal = append(journal, storage.NewJsonlStorage(cfg.Journal))
	}
	if cfg.Snapshot != "" {
		snapshots = append(snapshots, storage.NewSnapshotFile(cfg.Snapshot))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = append(journal, store.Journal(ctx))
		snapshots = append(snapshots, store)
	}

	logger.Info("simulate start",
		zap.String("pool", poolCfg.Key().ID().Hex()),
		zap.String("scenario", cfg.Scenario),
		zap.Int("requests", len(reqs)),
		zap.String("journal", cfg.Journal),
		zap.String("snapshot", cfg.Snapshot),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("auto_fund", cfg.AutoFund),
	)

	started := time.Now()
	summary, err := replay.RunScript(ctx, applier, reqs, journal, logger)
	if err != nil {
		return err
	}

	out := simulateSummary{Applied: summary.Applied, Failed: summary.Failed, Kinds: summary.Kinds}
	if p := applier.Pool(); p != nil {
		snap := p.Snapshot()
		for _, sink := range snapshots {
			if err := sink.SaveSnapshot(ctx, snap); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
		}
		view := viewStatus(p)
		out.Pool = &view
	}

	logger.Info("simulate complete",
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
		elapsed(started),
	)
	return printJSON(cmd, out)
}
