package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "pasanaco",
		Short:        "Rotating savings pool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run pool rounds against an in-memory token",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().Int("players", 5, "number of simulated players")
	simulateCmd.Flags().Int("rounds", 1, "rounds to play")
	simulateCmd.Flags().String("mint", "100", "tokens minted to each player")
	simulateCmd.Flags().String("symbol", "BOB", "token symbol")
	addPoolFlags(simulateCmd.Flags())
	simulateCmd.Flags().String("events", "", "optional JSONL event journal path")
	simulateCmd.Flags().String("state-file", "", "optional pool snapshot path")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pool over HTTP",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("backend", "memory", "asset ledger backend (memory, erc20)")
	serveCmd.Flags().String("rpc", "", "JSON-RPC URL (erc20 backend)")
	serveCmd.Flags().String("operator-key", "", "hex private key of the pool account (erc20 backend)")
	serveCmd.Flags().String("pool-account", "", "pool account address (memory backend)")
	serveCmd.Flags().Duration("poll-interval", 2*time.Second, "receipt poll interval (erc20 backend)")
	serveCmd.Flags().Duration("receipt-timeout", 2*time.Minute, "how long to wait for a sent transaction to be mined (erc20 backend)")
	serveCmd.Flags().Uint64("gas-limit", 0, "fixed gas limit, 0 estimates (erc20 backend)")
	serveCmd.Flags().Bool("faucet", true, "expose mint/approve endpoints (memory backend)")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	addPoolFlags(serveCmd.Flags())
	addStateFlags(serveCmd.Flags())
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index token transfers in and out of the pool account",
		RunE:  runIndex,
	}

	indexCmd.Flags().String("rpc", "", "JSON-RPC URL")
	indexCmd.Flags().StringSlice("token", nil, "token addresses (comma-separated)")
	indexCmd.Flags().String("account", "", "pool account address")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/transfers.jsonl", "output JSONL path")
	indexCmd.Flags().String("pg-dsn", "", "Postgres DSN, replaces the JSONL output when set")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted pool state and reconcile it on chain",
		RunE:  runStatus,
	}

	addStateFlags(statusCmd.Flags())
	statusCmd.Flags().String("rpc", "", "JSON-RPC URL, enables on-chain reconciliation")
	statusCmd.Flags().String("account", "", "pool account address to reconcile")
	statusCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(statusCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(flags *pflag.FlagSet) {
	flags.String("name", "pasanaco", "pool name")
	flags.String("version", "1", "pool version")
	flags.String("asset", "", "token address")
	flags.String("deposit-amount", "10", "deposit per participant per round, in tokens")
	flags.Uint8("decimals", 18, "token decimals used to parse amounts")
	flags.Int("max-participants", 5, "pool capacity")
}

func addStateFlags(flags *pflag.FlagSet) {
	flags.String("events", "", "JSONL event journal path")
	flags.String("state-file", "", "pool snapshot path")
	flags.String("pg-dsn", "", "Postgres DSN, replaces the file journal and snapshot when set")
	flags.String("state-name", "pasanaco", "snapshot key in Postgres")
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
