package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"launchpad/internal/config"
	"launchpad/internal/devnet"
	"launchpad/internal/events"
	"launchpad/internal/feereport"
	"launchpad/internal/indexer"
	"launchpad/internal/launch"
	"launchpad/internal/storage"
)

// reserveDecimals is the decimals of the devnet reserve asset.
const reserveDecimals = 18

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a launch lifecycle on an in-process devnet and index its events",
		RunE:  runSimulate,
	}
	cmd.Flags().Uint64("chain-id", 31337, "devnet chain id")
	cmd.Flags().String("start-time", "1700000000", "devnet genesis time (unix seconds or RFC3339)")
	cmd.Flags().String("creator", "0x00000000000000000000000000000000000c0de1", "launch caller address")
	cmd.Flags().String("name", "Launch Token", "asset name")
	cmd.Flags().String("symbol", "LAUNCH", "asset symbol")
	cmd.Flags().String("supply", "1000000000", "total supply in whole tokens")
	cmd.Flags().String("recipient", "", "creator allocation recipient, defaults to the creator")
	cmd.Flags().String("recipient-amount", "0", "creator allocation in whole tokens")
	cmd.Flags().String("lock-owner", "", "lock owner, defaults to the creator")
	cmd.Flags().Uint32("fee-tier", config.DefaultFeeTier, "pool fee tier in hundredths of a bip")
	cmd.Flags().Int32("tick", -207000, "initial tick, ignored when market-cap is set")
	cmd.Flags().String("market-cap", "", "target market cap; derives the initial tick")
	cmd.Flags().String("reserve-price", "1", "reference price of one reserve asset")
	cmd.Flags().String("launch-fee", "0", "launch fee in reserve")
	cmd.Flags().String("buy", "0", "reserve spent buying the asset at launch")
	cmd.Flags().Duration("lock-duration", 365*24*time.Hour, "position lock duration")
	cmd.Flags().Uint16("fee-cut", 60, "collector fee cut in tenths of a percent")
	cmd.Flags().Int("trades", 0, "round trips the trader makes after launch")
	cmd.Flags().String("trade-size", "1", "reserve per trade")
	cmd.Flags().Duration("advance", 0, "time to advance before collecting and withdrawing")
	cmd.Flags().Bool("collect", false, "collect fees after trading")
	cmd.Flags().Bool("withdraw", false, "withdraw the position after advancing")
	cmd.Flags().Uint64("max-depth", 100_000, "maximum salts to try")
	addSinkFlags(cmd, "./data/devnet_logs.jsonl", "./data/devnet_typed_events.jsonl")
	addLogLevelFlag(cmd)
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scenario, netCfg, err := buildScenario(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	network, err := devnet.New(netCfg, logger)
	if err != nil {
		return err
	}

	outcome, err := network.Run(ctx, scenario)
	if err != nil {
		return err
	}
	res := outcome.Launch
	fields := []zap.Field{
		zap.String("asset", res.Asset.Hex()),
		zap.Uint64("position_id", res.PositionID),
		zap.String("pool", res.Pool.Hex()),
		zap.Int32("tick", res.Tick),
		zap.String("liquidity", res.Liquidity.String()),
		zap.String("unlock_time", formatUnix(res.UnlockTime)),
		zap.String("bought", formatUnits(res.BoughtAmount, launch.AssetDecimals)),
		zap.Int("trades", outcome.Trades),
		zap.Bool("withdrawn", outcome.Withdrawn),
	}
	if outcome.Salt.Attempts > 0 {
		fields = append(fields,
			zap.String("salt", common.Hash(outcome.Salt.Salt).Hex()),
			zap.Uint64("salt_attempts", outcome.Salt.Attempts),
		)
	}
	if res.SwapErr != nil {
		fields = append(fields, zap.NamedError("swap_error", res.SwapErr))
	}
	if c := outcome.Collection; c != nil {
		fields = append(fields,
			zap.String("owner_fees0", c.OwnerShare0.String()),
			zap.String("owner_fees1", c.OwnerShare1.String()),
			zap.String("collector_fees0", c.CollectorShare0.String()),
			zap.String("collector_fees1", c.CollectorShare1.String()),
		)
	}
	logger.Info("simulation complete", fields...)

	if err := indexDevnet(ctx, network, cfg, logger); err != nil {
		if errors.Is(err, storage.ErrNoSink) {
			return nil
		}
		return err
	}

	if cfg.EventsOut == "" || (cfg.PGDSN == "" && cfg.SQLitePath == "") {
		return nil
	}
	store, closeStore, err := openReportStore(ctx, cfg.PGDSN, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer closeStore()

	reporter := feereport.NewReporter(feereport.Config{
		StateStore: &feereport.DBStateStore{Backend: store, Name: fmt.Sprintf("devnet_%d", netCfg.ChainID)},
	}, store, devnet.NewDecimals(network.Ledger), logger)
	_, err = reporter.Run(ctx, cfg.EventsOut)
	return err
}

func buildScenario(cfg config.SimulateConfig) (devnet.Scenario, devnet.Config, error) {
	var (
		s   devnet.Scenario
		net devnet.Config
	)

	startTime, err := config.ParseTimestamp(cfg.StartTime)
	if err != nil {
		return s, net, fmt.Errorf("start-time: %w", err)
	}
	creator, err := indexer.ParseAddress(cfg.Creator)
	if err != nil {
		return s, net, fmt.Errorf("creator: %w", err)
	}
	recipient := creator
	if cfg.Recipient != "" {
		if recipient, err = indexer.ParseAddress(cfg.Recipient); err != nil {
			return s, net, fmt.Errorf("recipient: %w", err)
		}
	}
	var owner common.Address
	if cfg.LockOwner != "" {
		if owner, err = indexer.ParseAddress(cfg.LockOwner); err != nil {
			return s, net, fmt.Errorf("lock-owner: %w", err)
		}
	}

	supply, err := parseUnits(cfg.Supply, launch.AssetDecimals)
	if err != nil {
		return s, net, err
	}
	recipientAmount, err := parseUnits(cfg.RecipientAmount, launch.AssetDecimals)
	if err != nil {
		return s, net, err
	}
	launchFee, err := parseUnits(cfg.LaunchFee, reserveDecimals)
	if err != nil {
		return s, net, err
	}
	buy, err := parseUnits(cfg.Buy, reserveDecimals)
	if err != nil {
		return s, net, err
	}
	tradeSize, err := parseUnits(cfg.TradeSize, reserveDecimals)
	if err != nil {
		return s, net, err
	}

	tick := cfg.Tick
	if cfg.MarketCap != "" {
		quote, err := quoteTick(cfg.MarketCap, cfg.ReservePrice, cfg.Supply, cfg.FeeTier)
		if err != nil {
			return s, net, err
		}
		tick = quote.ValidTick
	}

	net = devnet.Config{
		ChainID:      cfg.ChainID,
		StartTime:    startTime,
		LockDuration: cfg.LockDuration,
		FeeCut:       cfg.FeeCut,
		LaunchFee:    launchFee,
	}
	s = devnet.Scenario{
		Request: launch.Request{
			Caller:          creator,
			Name:            cfg.Name,
			Symbol:          cfg.Symbol,
			Supply:          supply,
			FeeTier:         cfg.FeeTier,
			InitialTick:     tick,
			Recipient:       recipient,
			RecipientAmount: recipientAmount,
			LockOwner:       owner,
			Value:           new(big.Int).Add(launchFee, buy),
		},
		MaxDepth:  cfg.MaxDepth,
		Trades:    cfg.Trades,
		TradeSize: tradeSize,
		Advance:   cfg.Advance,
		Collect:   cfg.Collect,
		Withdraw:  cfg.Withdraw,
	}
	return s, net, nil
}

// indexDevnet runs the indexer over every sealed devnet block. Output files are
// truncated first since each simulation starts a fresh chain.
func indexDevnet(ctx context.Context, network *devnet.Network, cfg config.SimulateConfig, logger *zap.Logger) error {
	for _, path := range []string{cfg.Out, cfg.EventsOut} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset %s: %w", path, err)
		}
	}

	sinks, err := openSinks(ctx, cfg.Out, cfg.EventsOut, cfg.PGDSN, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer sinks.Close()

	decoder, err := events.NewDecoder(events.DecoderConfig{})
	if err != nil {
		return err
	}
	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:  1,
		Addresses:  network.ContractAddresses(),
		Topic0:     decoder.Topic0s(),
		BatchSize:  100,
		MaxRetries: 1,
	}, devnet.NewLogSource(network.Ledger), sinks.sink, decoder, logger)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	stats := runner.Stats()
	logger.Info("devnet indexed",
		zap.Int("logs", stats.Logs),
		zap.Int("decoded", stats.Decoded),
		zap.String("events_out", cfg.EventsOut),
	)
	return nil
}
