package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fetch",
		Short:        "Day-partitioned DeFi log fetcher",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Produce the configured output for every day and pool",
		RunE:  runFetch,
	}
	addTargetFlags(runCmd)
	addSourceFlags(runCmd)
	addOutputFlags(runCmd)
	runCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	root.AddCommand(runCmd)

	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Print the node execution order of the configured output",
		RunE:  runOrder,
	}
	addTargetFlags(orderCmd)
	root.AddCommand(orderCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the raw day logs of every pool to a JSONL file",
		RunE:  runDump,
	}
	addTargetFlags(dumpCmd)
	addSourceFlags(dumpCmd)
	dumpCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	dumpCmd.Flags().String("out-dir", "./data", "directory for partition files and the height cache")
	root.AddCommand(dumpCmd)

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load a JSONL log export into the warehouse",
		RunE:  runLoad,
	}
	loadCmd.Flags().String("in", "", "input JSONL log export")
	loadCmd.Flags().String("chain", "ethereum", "chain of records without one")
	loadCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	loadCmd.Flags().Uint64("batch-size", 1000, "rows per insert batch")
	loadCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(loadCmd)

	return root
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("chain", "ethereum", "chain name")
	cmd.Flags().String("from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last day (YYYY-MM-DD), defaults to from")
	cmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	cmd.Flags().String("proxy", "", "position manager address, defaults to the chain deployment")
	cmd.Flags().StringSlice("topic0", nil, "topic0 filter for raw output (comma-separated)")
	cmd.Flags().StringSlice("topic1", nil, "topic1 filter for raw output")
	cmd.Flags().StringSlice("topic2", nil, "topic2 filter for raw output")
	cmd.Flags().StringSlice("topic3", nil, "topic3 filter for raw output")
	cmd.Flags().String("protocol", "uniswap_v3", "protocol of the pools")
	cmd.Flags().Uint32("fee-tier", 0, "pool fee in hundredths of a bip, required for minute output")
	cmd.Flags().String("output", "raw", "output type (raw, tick, minute, position)")
	cmd.Flags().Int64("tolerance", 3, "position match tolerance in raw token units")
	cmd.Flags().Int64("sole-collect-tolerance", 50, "tolerance for a collect that is alone in its transaction")
	cmd.Flags().String("timezone", "UTC", "time zone defining day boundaries")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "rpc", "data source (rpc, warehouse, export)")
	cmd.Flags().String("rpc", "", "JSON-RPC URL")
	cmd.Flags().String("rpc-proxy", "", "HTTP proxy for RPC requests")
	cmd.Flags().String("rpc-auth", "", "Authorization header for RPC requests")
	cmd.Flags().String("explorer-url", "", "block explorer API endpoint, defaults to the chain explorer")
	cmd.Flags().String("api-key", "", "block explorer API key")
	cmd.Flags().Duration("explorer-interval", 0, "minimum spacing between explorer queries")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs request")
	cmd.Flags().Uint64("group-size", 0, "blocks per partition file, 0 keeps one partition per day")
	cmd.Flags().Int("workers", 8, "concurrent eth_getLogs requests")
	cmd.Flags().Int("timestamp-workers", 8, "concurrent block timestamp lookups")
	cmd.Flags().Bool("exhaustive", false, "issue one request per topic combination")
	cmd.Flags().Bool("skip-timestamp", false, "do not resolve block timestamps")
	cmd.Flags().Int("save-every", 0, "flush the height cache after this many lookups, 0 flushes once per partition")
	cmd.Flags().String("height-cache", "auto", "height cache backend (auto, memory, leveldb, sqlite, redis)")
	cmd.Flags().String("redis-addr", "", "redis address for the redis height cache")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN of the log warehouse")
	cmd.Flags().String("export-dir", "", "directory of JSONL log exports")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("out-dir", "./data", "output directory")
	cmd.Flags().String("format", "csv", "output file format (csv, jsonl)")
	cmd.Flags().Bool("skip-existed", true, "skip days whose output already exists")
	cmd.Flags().Bool("keep-raw", false, "keep intermediate artifacts and partition files")
	cmd.Flags().Int("parallel-days", 1, "days processed concurrently by transform nodes")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
