package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clmm",
		Short:        "Concentrated liquidity pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newSimulateCmd(), newQuoteCmd(), newReplayCmd(), newAggregateCmd(), newTickCmd())
	return root
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("asset-a", "", "asset A address")
	cmd.Flags().String("asset-b", "", "asset B address")
	cmd.Flags().Uint64("seed", 0, "pool seed, distinguishing pools over the same pair")
	cmd.Flags().String("price", "1", "initial price of asset A in asset B")
	cmd.Flags().String("sqrt-price", "", "initial Q64.64 sqrt price, overrides --price")
	cmd.Flags().Int32("tick-spacing", 10, "tick spacing")
	cmd.Flags().Uint32("fee-bps", 30, "swap fee in basis points")
	cmd.Flags().String("max-liquidity-per-tick", "", "liquidity cap per tick (default: even split of uint128)")
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// restorePool rebuilds a pool from snap into registry and credits its
// reserves to the pool account in ledger so later payouts settle.
func restorePool(snap model.PoolSnapshot, maxSteps int, registry *pool.Registry, ledger *custody.Ledger) (*pool.Pool, error) {
	p, err := pool.Restore(snap, maxSteps, registry.Deps())
	if err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	if err := registry.Register(p); err != nil {
		return nil, err
	}
	if ledger != nil {
		status := p.Status()
		key := p.Key()
		if err := ledger.Mint(key.AssetA, p.Account(), status.ReserveA); err != nil {
			return nil, fmt.Errorf("fund reserve a: %w", err)
		}
		if err := ledger.Mint(key.AssetB, p.Account(), status.ReserveB); err != nil {
			return nil, fmt.Errorf("fund reserve b: %w", err)
		}
	}
	return p, nil
}

type statusView struct {
	PoolID           string `json:"pool_id"`
	Price            string `json:"price"`
	SqrtPrice        string `json:"sqrt_price"`
	Tick             int32  `json:"tick"`
	Liquidity        string `json:"liquidity"`
	ReserveA         string `json:"reserve_a"`
	ReserveB         string `json:"reserve_b"`
	FeesA            string `json:"fees_a"`
	FeesB            string `json:"fees_b"`
	InitializedTicks int    `json:"initialized_ticks"`
	Positions        int    `json:"positions"`
}

func viewStatus(p *pool.Pool) statusView {
	s := p.Status()
	return statusView{
		PoolID:           p.ID().Hex(),
		Price:            s.Price().String(),
		SqrtPrice:        s.SqrtPrice.Dec(),
		Tick:             s.Tick,
		Liquidity:        s.Liquidity.Dec(),
		ReserveA:         s.ReserveA.Dec(),
		ReserveB:         s.ReserveB.Dec(),
		FeesA:            s.FeesA.Dec(),
		FeesB:            s.FeesB.Dec(),
		InitializedTicks: s.InitializedTicks,
		Positions:        s.Positions,
	}
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

func elapsed(start time.Time) zap.Field {
	return zap.Duration("elapsed", time.Since(start))
}
