package main

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"launchpad/internal/config"
	"launchpad/internal/pricing"
)

func newTickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Quote the initial tick for a target market cap",
		RunE:  runTick,
	}
	cmd.Flags().String("market-cap", "", "target market cap in the reference currency")
	cmd.Flags().String("reserve-price", "1", "reference price of one reserve asset")
	cmd.Flags().String("supply", "1000000000", "supply in whole tokens")
	cmd.Flags().Uint32("fee-tier", config.DefaultFeeTier, "pool fee tier in hundredths of a bip")
	addLogLevelFlag(cmd)
	return cmd
}

func runTick(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTick(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	quote, err := quoteTick(cfg.MarketCap, cfg.ReservePrice, cfg.Supply, cfg.FeeTier)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"target_price":        quote.TargetPrice.String(),
		"exact_tick":          quote.ExactTick,
		"tick":                quote.ValidTick,
		"realized_price":      quote.RealizedPrice.String(),
		"realized_market_cap": quote.RealizedMarketCap.StringFixed(2),
	})
}

func quoteTick(marketCap, reservePrice, supply string, feeTier uint32) (pricing.MarketCapQuote, error) {
	mc, err := decimal.NewFromString(marketCap)
	if err != nil {
		return pricing.MarketCapQuote{}, fmt.Errorf("market cap: %w", err)
	}
	price, err := decimal.NewFromString(reservePrice)
	if err != nil {
		return pricing.MarketCapQuote{}, fmt.Errorf("reserve price: %w", err)
	}
	units, err := decimal.NewFromString(supply)
	if err != nil {
		return pricing.MarketCapQuote{}, fmt.Errorf("supply: %w", err)
	}
	spacing, err := pricing.TickSpacing(feeTier)
	if err != nil {
		return pricing.MarketCapQuote{}, err
	}
	return pricing.TickForMarketCap(pricing.MarketCapQuery{
		MarketCap:    mc,
		ReservePrice: price,
		Supply:       units,
		TickSpacing:  spacing,
	})
}
