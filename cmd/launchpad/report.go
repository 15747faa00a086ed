package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"launchpad/internal/chain"
	"launchpad/internal/config"
	"launchpad/internal/feereport"
	"launchpad/internal/storage/postgres"
	"launchpad/internal/storage/sqlite"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate collected fees per locked position",
		RunE:  runReport,
	}
	cmd.Flags().String("rpc", "", "RPC URL for token decimals (optional)")
	cmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("sqlite-path", "", "SQLite database path")
	cmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	cmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	cmd.Flags().String("state-name", "fee_report", "progress key in the indexer_state table")
	cmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	addLogLevelFlag(cmd)
	return cmd
}

type reportStore interface {
	feereport.TotalsStore
	feereport.StateBackend
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReport(cfgFile, cmd.Flags())
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
	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("recompute-from: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	store, closeStore, err := openReportStore(ctx, cfg.PGDSN, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer closeStore()

	var decimals feereport.DecimalsResolver
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
		decimals = feereport.NewChainDecimals(client, logger)
	}

	var state feereport.StateStore
	if cfg.StateFile != "" {
		state = &feereport.FileStateStore{Path: cfg.StateFile}
	} else {
		state = &feereport.DBStateStore{Backend: store, Name: cfg.StateName}
	}

	logger.Info("report start",
		zap.String("in", cfg.Input),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("sqlite", cfg.SQLitePath),
		zap.String("state_file", cfg.StateFile),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	reporter := feereport.NewReporter(feereport.Config{
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    state,
	}, store, decimals, logger)

	summary, err := reporter.Run(ctx, cfg.Input)
	if err != nil {
		return err
	}
	for _, p := range summary.Positions {
		logger.Info("position fees",
			zap.String("registry", p.Registry),
			zap.Uint64("position_id", p.PositionID),
			zap.Uint64("collections", p.Collections),
			zap.String("amount0", p.Amount0),
			zap.String("amount1", p.Amount1),
			zap.String("collector_share0", p.CollectorShare0),
			zap.String("collector_share1", p.CollectorShare1),
		)
	}
	return nil
}

// openReportStore prefers Postgres when both stores are configured.
func openReportStore(ctx context.Context, pgDSN, sqlitePath string) (reportStore, func(), error) {
	switch {
	case pgDSN != "":
		store, err := postgres.NewStore(ctx, pgDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	case sqlitePath != "":
		store, err := sqlite.Open(sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("pg-dsn or sqlite-path is required")
	}
}
