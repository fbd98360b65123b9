package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pasanaco/internal/chain"
	"pasanaco/internal/config"
	"pasanaco/internal/erc20"
	"pasanaco/internal/indexer"
	"pasanaco/internal/storage"
	"pasanaco/internal/storage/postgres"
)

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

	tokens, err := indexer.ParseAddresses(cfg.Tokens)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("token list is required")
	}
	account, err := indexer.ParseAddress(cfg.Account)
	if err != nil {
		return fmt.Errorf("pool account: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	metaCache := erc20.NewMetaCache()
	for _, token := range tokens {
		meta, err := metaCache.Lookup(ctx, chainClient, token, logger)
		if err != nil {
			logger.Warn("token metadata unavailable", zap.String("token", token.Hex()), zap.Error(err))
			continue
		}
		logger.Info("token", zap.String("address", meta.Address), zap.String("symbol", meta.Symbol), zap.Uint8("decimals", meta.Decimals))
	}

	var sink storage.TransferSink
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		sink = pg
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		Tokens:            tokens,
		Account:           account,
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sink, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("account", account.Hex()),
		zap.Int("tokens", len(tokens)),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}
