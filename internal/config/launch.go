package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Launch defaults shared by predict and simulate. The reserve is the canonical wrapped
// native asset address on OP-stack chains.
const (
	DefaultReserve      = "0x4200000000000000000000000000000000000006"
	DefaultOrchestrator = "0x0000000000000000000000000000000000009001"
	DefaultFeeTier      = uint32(10000)
)

// AssetConfig describes the asset a predict or simulate run launches. Amounts are in
// whole tokens.
type AssetConfig struct {
	Creator string
	Name    string
	Symbol  string
	Supply  string
}

// PredictConfig holds configuration for the predict command.
type PredictConfig struct {
	AssetConfig
	RPCURL        string
	Factory       string
	Reserve       string
	AssetInitCode string
	StartIndex    uint64
	MaxDepth      uint64
	LogLevel      string
}

// LoadPredict merges config file, environment variables, and flags into PredictConfig.
func LoadPredict(cfgFile string, flags *pflag.FlagSet) (PredictConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"factory":   DefaultOrchestrator,
		"reserve":   DefaultReserve,
		"max-depth": uint64(100_000),
		"supply":    "1000000000",
	})
	if err != nil {
		return PredictConfig{}, err
	}

	return PredictConfig{
		AssetConfig: AssetConfig{
			Creator: v.GetString("creator"),
			Name:    v.GetString("name"),
			Symbol:  v.GetString("symbol"),
			Supply:  v.GetString("supply"),
		},
		RPCURL:        v.GetString("rpc"),
		Factory:       v.GetString("factory"),
		Reserve:       v.GetString("reserve"),
		AssetInitCode: v.GetString("asset-init-code"),
		StartIndex:    v.GetUint64("start-index"),
		MaxDepth:      v.GetUint64("max-depth"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}

// TickConfig holds configuration for the tick command. Values are decimal strings.
type TickConfig struct {
	MarketCap    string
	ReservePrice string
	Supply       string
	FeeTier      uint32
	LogLevel     string
}

// LoadTick merges config file, environment variables, and flags into TickConfig.
func LoadTick(cfgFile string, flags *pflag.FlagSet) (TickConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"fee-tier":      DefaultFeeTier,
		"reserve-price": "1",
		"supply":        "1000000000",
	})
	if err != nil {
		return TickConfig{}, err
	}

	return TickConfig{
		MarketCap:    v.GetString("market-cap"),
		ReservePrice: v.GetString("reserve-price"),
		Supply:       v.GetString("supply"),
		FeeTier:      v.GetUint32("fee-tier"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

// SimulateConfig holds configuration for the simulate command. Token amounts are
// whole-token decimal strings; the reserve asset uses 18 decimals on the devnet.
type SimulateConfig struct {
	AssetConfig
	ChainID         uint64
	StartTime       string
	Recipient       string
	RecipientAmount string
	LockOwner       string
	FeeTier         uint32
	Tick            int32
	MarketCap       string
	ReservePrice    string
	LaunchFee       string
	Buy             string
	LockDuration    time.Duration
	FeeCut          uint16
	Trades          int
	TradeSize       string
	Advance         time.Duration
	Collect         bool
	Withdraw        bool
	MaxDepth        uint64
	Out             string
	EventsOut       string
	PGDSN           string
	SQLitePath      string
	LogLevel        string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"chain-id":         uint64(31337),
		"start-time":       "1700000000",
		"creator":          "0x00000000000000000000000000000000000c0de1",
		"name":             "Launch Token",
		"symbol":           "LAUNCH",
		"supply":           "1000000000",
		"recipient-amount": "0",
		"fee-tier":         DefaultFeeTier,
		"tick":             -207000,
		"reserve-price":    "1",
		"launch-fee":       "0",
		"buy":              "0",
		"lock-duration":    365 * 24 * time.Hour,
		"fee-cut":          60,
		"trades":           0,
		"trade-size":       "1",
		"max-depth":        uint64(100_000),
		"out":              "./data/devnet_logs.jsonl",
		"events-out":       "./data/devnet_typed_events.jsonl",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		AssetConfig: AssetConfig{
			Creator: v.GetString("creator"),
			Name:    v.GetString("name"),
			Symbol:  v.GetString("symbol"),
			Supply:  v.GetString("supply"),
		},
		ChainID:         v.GetUint64("chain-id"),
		StartTime:       v.GetString("start-time"),
		Recipient:       v.GetString("recipient"),
		RecipientAmount: v.GetString("recipient-amount"),
		LockOwner:       v.GetString("lock-owner"),
		FeeTier:         v.GetUint32("fee-tier"),
		Tick:            v.GetInt32("tick"),
		MarketCap:       v.GetString("market-cap"),
		ReservePrice:    v.GetString("reserve-price"),
		LaunchFee:       v.GetString("launch-fee"),
		Buy:             v.GetString("buy"),
		LockDuration:    v.GetDuration("lock-duration"),
		FeeCut:          v.GetUint16("fee-cut"),
		Trades:          v.GetInt("trades"),
		TradeSize:       v.GetString("trade-size"),
		Advance:         v.GetDuration("advance"),
		Collect:         v.GetBool("collect"),
		Withdraw:        v.GetBool("withdraw"),
		MaxDepth:        v.GetUint64("max-depth"),
		Out:             v.GetString("out"),
		EventsOut:       v.GetString("events-out"),
		PGDSN:           v.GetString("pg-dsn"),
		SQLitePath:      v.GetString("sqlite-path"),
		LogLevel:        v.GetString("log-level"),
	}, nil
}
