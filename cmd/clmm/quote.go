package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/config"
	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/postgres"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote an exact-input swap against a pool snapshot",
		RunE:  runQuote,
	}
	cmd.Flags().String("snapshot", "./data/snapshot.json", "pool snapshot JSON")
	cmd.Flags().String("pg-dsn", "", "load the snapshot from Postgres instead")
	cmd.Flags().String("pool-id", "", "pool id to load from Postgres")
	cmd.Flags().String("amount-in", "", "input amount, fee included")
	cmd.Flags().String("direction", "a_to_b", "a_to_b or b_to_a")
	cmd.Flags().String("sqrt-price-limit", "", "optional Q64.64 sqrt price limit")
	cmd.Flags().Int("max-steps", 0, "swap step bound, 0 means unbounded")
	return cmd
}

type quoteView struct {
	PoolID             string `json:"pool_id"`
	Direction          string `json:"direction"`
	AmountIn           string `json:"amount_in"`
	AmountOut          string `json:"amount_out"`
	Fee                string `json:"fee"`
	Crossings          int    `json:"crossings"`
	Steps              int    `json:"steps"`
	PriceBefore        string `json:"price_before"`
	PriceAfter         string `json:"price_after"`
	SqrtPriceAfter     string `json:"sqrt_price_after"`
	TickAfter          int32  `json:"tick_after"`
	PriceLimitReached  bool   `json:"price_limit_reached,omitempty"`
	LiquidityExhausted bool   `json:"liquidity_exhausted,omitempty"`
	StepLimitReached   bool   `json:"step_limit_reached,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadQuote(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	direction, err := pool.ParseDirection(cfg.Direction)
	if err != nil {
		return err
	}
	amountIn, err := uint256.FromDecimal(cfg.AmountIn)
	if err != nil {
		return fmt.Errorf("parse amount-in: %w", err)
	}
	var limit *uint256.Int
	if cfg.SqrtPriceLimit != "" {
		if limit, err = uint256.FromDecimal(cfg.SqrtPriceLimit); err != nil {
			return fmt.Errorf("parse sqrt-price-limit: %w", err)
		}
	}

	ctx, stop := signalContext()
	defer stop()

	var (
		snap model.PoolSnapshot
		ok   bool
	)
	if cfg.PGDSN != "" {
		if cfg.PoolID == "" {
			return fmt.Errorf("pool id is required with pg dsn")
		}
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		snap, ok, err = store.LoadSnapshot(ctx, cfg.PoolID)
		if err != nil {
			return err
		}
	} else {
		if snap, ok, err = storage.NewSnapshotFile(cfg.Snapshot).Load(); err != nil {
			return err
		}
	}
	if !ok {
		return fmt.Errorf("no snapshot found")
	}

	p, err := pool.Restore(snap, cfg.MaxSteps, pool.Deps{Logger: logger})
	if err != nil {
		return fmt.Errorf("restore pool: %w", err)
	}
	before := p.Status()

	res, err := p.Quote(pool.SwapRequest{
		AmountIn:       amountIn,
		Direction:      direction,
		SqrtPriceLimit: limit,
	})
	if err != nil {
		logger.Info("quote rejected", zap.String("kind", pool.ErrorKind(err)), zap.Error(err))
		return err
	}

	return printJSON(cmd, quoteView{
		PoolID:             p.ID().Hex(),
		Direction:          direction.String(),
		AmountIn:           res.AmountIn.Dec(),
		AmountOut:          res.AmountOut.Dec(),
		Fee:                res.FeeAmount.Dec(),
		Crossings:          res.Crossings,
		Steps:              len(res.Steps),
		PriceBefore:        before.Price().String(),
		PriceAfter:         fixedpoint.PriceFromSqrtPrice(res.Status.SqrtPrice).String(),
		SqrtPriceAfter:     res.Status.SqrtPrice.Dec(),
		TickAfter:          res.Status.Tick,
		PriceLimitReached:  res.PriceLimitReached,
		LiquidityExhausted: res.LiquidityExhausted,
		StepLimitReached:   res.StepLimitReached,
	})
}
