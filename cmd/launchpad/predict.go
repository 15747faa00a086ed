package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"launchpad/internal/chain"
	"launchpad/internal/config"
	"launchpad/internal/indexer"
	"launchpad/internal/launch"
	"launchpad/internal/predict"
)

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Mine a salt whose asset address sorts below the reserve asset",
		RunE:  runPredict,
	}
	cmd.Flags().String("rpc", "", "RPC URL; when set, candidates with deployed code are skipped")
	cmd.Flags().String("creator", "", "launch caller address")
	cmd.Flags().String("name", "", "asset name")
	cmd.Flags().String("symbol", "", "asset symbol")
	cmd.Flags().String("supply", "1000000000", "total supply in whole tokens")
	cmd.Flags().String("factory", config.DefaultOrchestrator, "launch orchestrator address")
	cmd.Flags().String("reserve", config.DefaultReserve, "reserve asset address")
	cmd.Flags().String("asset-init-code", "", "asset creation code (hex); defaults to the devnet code")
	cmd.Flags().Uint64("start-index", 0, "first salt index to try")
	cmd.Flags().Uint64("max-depth", 100_000, "maximum salts to try")
	addLogLevelFlag(cmd)
	return cmd
}

type offlineCodes struct{}

func (offlineCodes) HasCode(context.Context, common.Address) (bool, error) {
	return false, nil
}

func runPredict(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPredict(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Name == "" || cfg.Symbol == "" {
		return fmt.Errorf("name and symbol are required")
	}
	creator, err := indexer.ParseAddress(cfg.Creator)
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	factory, err := indexer.ParseAddress(cfg.Factory)
	if err != nil {
		return fmt.Errorf("factory: %w", err)
	}
	reserve, err := indexer.ParseAddress(cfg.Reserve)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	supply, err := parseUnits(cfg.Supply, launch.AssetDecimals)
	if err != nil {
		return err
	}
	initCode := predict.DefaultAssetInitCode
	if cfg.AssetInitCode != "" {
		if initCode, err = hexutil.Decode(cfg.AssetInitCode); err != nil {
			return fmt.Errorf("asset init code: %w", err)
		}
	}

	ctx, stop := signalContext()
	defer stop()

	var codes predict.CodeChecker = offlineCodes{}
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
		codes = client
	}

	predictor := predict.New(predict.Config{
		Factory:    factory,
		Reserve:    reserve,
		InitCode:   initCode,
		StartIndex: cfg.StartIndex,
		MaxDepth:   cfg.MaxDepth,
	}, codes, logger)

	found, err := predictor.GenerateSalt(ctx, predict.Params{
		Creator: creator,
		Name:    cfg.Name,
		Symbol:  cfg.Symbol,
		Supply:  supply,
	})
	if err != nil {
		return err
	}

	logger.Info("salt found",
		zap.String("address", found.Address.Hex()),
		zap.Uint64("index", found.Index),
		zap.Uint64("attempts", found.Attempts),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"salt":     hexutil.Encode(found.Salt[:]),
		"index":    found.Index,
		"address":  found.Address.Hex(),
		"attempts": found.Attempts,
	})
}
