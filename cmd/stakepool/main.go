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
		Use:          "stakepool",
		Short:        "Weighted multi-class staking pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a JSONL operations script against an in-memory ledger",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("in", "", "input operations JSONL")
	simulateCmd.Flags().String("audit-out", "./data/audit.jsonl", "audit records JSONL")
	simulateCmd.Flags().String("failures-out", "./data/failures.jsonl", "rejected operations JSONL")
	addStoreFlags(simulateCmd)

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Print per-class redemption values of stored pools",
		RunE:  runQuote,
	}

	quoteCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	quoteCmd.Flags().String("pool-file", "", "read a single pool record file instead of the store")
	quoteCmd.Flags().Uint("decimals", 18, "main asset decimals")
	addStoreFlags(quoteCmd)

	root.AddCommand(quoteCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare recorded vault balances against on-chain balances",
		RunE:  runReconcile,
	}

	reconcileCmd.Flags().String("rpc", "", "RPC URL")
	reconcileCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	reconcileCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	reconcileCmd.Flags().String("pool-file", "", "read a single pool record file instead of the store")
	addStoreFlags(reconcileCmd)

	root.AddCommand(reconcileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool-dir", "./data/pools", "pool record directory")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN, replaces the pool directory and audit file when set")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts for database writes")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
