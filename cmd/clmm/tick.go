package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"liquidityEngine/internal/fixedpoint"
)

func newTickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Convert between tick, Q64.64 sqrt price and price",
		RunE:  runTick,
	}
	cmd.Flags().Int32("tick", 0, "tick index")
	cmd.Flags().String("sqrt-price", "", "Q64.64 sqrt price")
	cmd.Flags().String("sqrt-price-x96", "", "Q64.96 sqrt price, as reported by V3 pools")
	cmd.Flags().String("price", "", "price of asset A in asset B")
	cmd.MarkFlagsMutuallyExclusive("tick", "sqrt-price", "sqrt-price-x96", "price")
	cmd.MarkFlagsOneRequired("tick", "sqrt-price", "sqrt-price-x96", "price")
	return cmd
}

type tickView struct {
	Tick         int32  `json:"tick"`
	SqrtPrice    string `json:"sqrt_price"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Price        string `json:"price"`
	// TickSqrtPrice is the sqrt price at Tick, the floor of the input price.
	TickSqrtPrice string `json:"tick_sqrt_price"`
}

func runTick(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	var (
		sqrtPrice *uint256.Int
		err       error
	)
	switch {
	case flags.Changed("tick"):
		tick, _ := flags.GetInt32("tick")
		if sqrtPrice, err = fixedpoint.SqrtPriceAtTick(tick); err != nil {
			return err
		}
	case flags.Changed("sqrt-price"):
		s, _ := flags.GetString("sqrt-price")
		if sqrtPrice, err = uint256.FromDecimal(s); err != nil {
			return fmt.Errorf("parse sqrt-price: %w", err)
		}
	case flags.Changed("sqrt-price-x96"):
		s, _ := flags.GetString("sqrt-price-x96")
		x96, err := uint256.FromDecimal(s)
		if err != nil {
			return fmt.Errorf("parse sqrt-price-x96: %w", err)
		}
		sqrtPrice = fixedpoint.SqrtPriceX64FromX96(x96)
	default:
		s, _ := flags.GetString("price")
		price, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse price: %w", err)
		}
		if sqrtPrice, err = fixedpoint.SqrtPriceFromDecimal(price); err != nil {
			return err
		}
	}

	tick, err := fixedpoint.TickAtSqrtPrice(sqrtPrice)
	if err != nil {
		return err
	}
	atTick, err := fixedpoint.SqrtPriceAtTick(tick)
	if err != nil {
		return err
	}
	return printJSON(cmd, tickView{
		Tick:          tick,
		SqrtPrice:     sqrtPrice.Dec(),
		SqrtPriceX96:  fixedpoint.SqrtPriceX96FromX64(sqrtPrice).Dec(),
		Price:         fixedpoint.PriceFromSqrtPrice(sqrtPrice).String(),
		TickSqrtPrice: atTick.Dec(),
	})
}
