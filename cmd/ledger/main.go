package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ledger",
		Short:        "Wallet transaction ledger builder",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw wallet transactions into ledger rows",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "JSON-RPC URL")
	decodeCmd.Flags().String("wallet", "", "wallet address")
	decodeCmd.Flags().Uint64("chain-id", 1, "chain id")
	decodeCmd.Flags().String("in", "", "input raw transactions JSON (explorer txlist shape)")
	decodeCmd.Flags().String("out", "./data/decoded.jsonl", "output decoded ledger JSONL")
	decodeCmd.Flags().String("pg-dsn", "", "Postgres DSN (takes precedence over file paths)")
	decodeCmd.Flags().Int("workers", 4, "concurrent decode workers")
	decodeCmd.Flags().String("timezone", "Europe/Vienna", "display timezone for tx_timestamp")
	decodeCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	decodeCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Attach pool price ratios to decoded ledger rows",
		RunE:  runPrice,
	}

	priceCmd.Flags().String("rpc", "", "JSON-RPC URL")
	priceCmd.Flags().String("pool", "", "AMM pool address")
	priceCmd.Flags().String("in", "./data/decoded.jsonl", "input decoded ledger JSONL")
	priceCmd.Flags().String("out", "./data/prices.jsonl", "output price ledger JSONL")
	priceCmd.Flags().String("pg-dsn", "", "Postgres DSN (takes precedence over file paths)")
	priceCmd.Flags().Int64("bucket", 60, "timestamp bucket size in seconds")
	priceCmd.Flags().Int("probe-limit", 64, "max forward probes from the block hint")
	priceCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	priceCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	priceCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(priceCmd)

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
