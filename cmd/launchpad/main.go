package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"launchpad/internal/storage"
	"launchpad/internal/storage/postgres"
	"launchpad/internal/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "launchpad",
		Short:        "Token launchpad toolkit: salt mining, tick quotes, devnet simulation, indexing and fee reports",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newPredictCmd(),
		newTickCmd(),
		newSimulateCmd(),
		newIndexCmd(),
		newDecodeCmd(),
		newReportCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
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

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func addLogLevelFlag(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addSinkFlags(cmd *cobra.Command, out, eventsOut string) {
	cmd.Flags().String("out", out, "raw logs JSONL path (empty disables)")
	cmd.Flags().String("events-out", eventsOut, "typed events JSONL path (empty disables)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("sqlite-path", "", "SQLite database path")
}

// sinkSet is every output an index or simulate run writes to.
type sinkSet struct {
	sink    storage.Multi
	closers []func()
}

func (s *sinkSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openSinks(ctx context.Context, out, eventsOut, pgDSN, sqlitePath string) (*sinkSet, error) {
	set := &sinkSet{}
	if out != "" || eventsOut != "" {
		set.sink = append(set.sink, storage.NewJSONLStorage(out, eventsOut))
	}
	if pgDSN != "" {
		store, err := postgres.NewStore(ctx, pgDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		set.closers = append(set.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			set.Close()
			return nil, err
		}
		set.sink = append(set.sink, store)
	}
	if sqlitePath != "" {
		store, err := sqlite.Open(sqlitePath)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		set.closers = append(set.closers, func() { _ = store.Close() })
		set.sink = append(set.sink, store)
	}
	if len(set.sink) == 0 {
		return nil, storage.ErrNoSink
	}
	return set, nil
}

// parseUnits converts a whole-token decimal string into raw units.
func parseUnits(value string, decimals int32) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	raw := d.Shift(decimals)
	if !raw.Equal(raw.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	return raw.BigInt(), nil
}

// formatUnits renders raw units as a whole-token decimal string.
func formatUnits(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

func formatUnix(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
