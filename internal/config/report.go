package config

import "github.com/spf13/pflag"

// ReportConfig holds configuration for the report command.
type ReportConfig struct {
	RPCURL        string
	Input         string
	PGDSN         string
	SQLitePath    string
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom string
	LogLevel      string
}

// LoadReport merges config file, environment variables, and flags into ReportConfig.
func LoadReport(cfgFile string, flags *pflag.FlagSet) (ReportConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"in":         "./data/typed_events.jsonl",
		"batch-size": 1000,
		"state-name": "fee_report",
	})
	if err != nil {
		return ReportConfig{}, err
	}

	return ReportConfig{
		RPCURL:        v.GetString("rpc"),
		Input:         v.GetString("in"),
		PGDSN:         v.GetString("pg-dsn"),
		SQLitePath:    v.GetString("sqlite-path"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		RecomputeFrom: v.GetString("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}
