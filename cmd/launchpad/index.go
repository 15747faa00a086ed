package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"launchpad/internal/chain"
	"launchpad/internal/config"
	"launchpad/internal/events"
	"launchpad/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index launch and lock events from an RPC endpoint",
		RunE:  runIndex,
	}
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().StringSlice("address", nil, "orchestrator and registry addresses (comma-separated)")
	cmd.Flags().StringSlice("topic0", nil, "topic0 filter (comma-separated), defaults to every known event")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	addSinkFlags(cmd, "./data/logs.jsonl", "./data/typed_events.jsonl")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	addLogLevelFlag(cmd)
	return cmd
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadIndex(cfgFile, cmd.Flags())
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

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	decoder, err := events.NewDecoder(events.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}
	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}
	if len(topic0) == 0 {
		topic0 = decoder.Topic0s()
	}

	ctx, stop := signalContext()
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sinks, err := openSinks(ctx, cfg.Out, cfg.EventsOut, cfg.PGDSN, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer sinks.Close()

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sinks.sink, decoder, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("events_out", cfg.EventsOut),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("sqlite", cfg.SQLitePath != ""),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}
	stats := runner.Stats()
	logger.Info("indexer complete",
		zap.Int("batches", stats.Batches),
		zap.Int("logs", stats.Logs),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return nil
}
