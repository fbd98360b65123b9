package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pasanaco/internal/chain"
	"pasanaco/internal/config"
	"pasanaco/internal/erc20"
	"pasanaco/internal/indexer"
	"pasanaco/internal/model"
	"pasanaco/internal/pool"
	"pasanaco/internal/storage"
)

func runStatus(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadStatus(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, config.StateConfig{StateFile: cfg.State.StateFile, PGDSN: cfg.State.PGDSN, StateName: cfg.State.StateName}, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.state == nil {
		return fmt.Errorf("state-file or pg-dsn is required")
	}

	snap, ok, err := st.state.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no pool state found")
	}
	poolCfg, err := pool.ConfigFromSnapshot(snap)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("name", snap.Name),
		zap.String("asset", snap.Asset),
		zap.Int("participants", len(snap.Participants)),
		zap.Int("deposited", len(snap.Deposited)),
		zap.Uint64("turn", snap.CurrentTurn),
		zap.String("held", snap.TotalAssetsHeld),
	}
	if len(snap.Participants) > 0 {
		onTurn := snap.Participants[snap.CurrentTurn%uint64(len(snap.Participants))]
		fields = append(fields, zap.String("participant_on_turn", onTurn))
	}
	logger.Info("pool status", fields...)

	if cfg.State.Events != "" {
		if err := summarizeJournal(cfg.State.Events, logger); err != nil {
			return err
		}
	}

	if cfg.RPCURL == "" {
		return nil
	}
	return reconcile(ctx, cfg, snap, poolCfg, logger)
}

// reconcile compares the recorded pot with the on-chain balance of the pool account.
func reconcile(ctx context.Context, cfg config.StatusConfig, snap model.PoolSnapshot, poolCfg pool.Config, logger *zap.Logger) error {
	account, err := indexer.ParseAddress(cfg.Account)
	if err != nil {
		return fmt.Errorf("pool account: %w", err)
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	meta, err := erc20.FetchTokenMeta(ctx, client, poolCfg.Asset, logger)
	if err != nil {
		return err
	}
	balance, err := erc20.BalanceOf(ctx, client, poolCfg.Asset, account, nil)
	if err != nil {
		return fmt.Errorf("balance of pool account: %w", err)
	}
	held, ok := new(big.Int).SetString(snap.TotalAssetsHeld, 10)
	if !ok {
		return fmt.Errorf("invalid total assets held %q", snap.TotalAssetsHeld)
	}

	fields := []zap.Field{
		zap.String("account", account.Hex()),
		zap.String("symbol", meta.Symbol),
		zap.String("recorded", erc20.FormatAmount(held, meta.Decimals)),
		zap.String("on_chain", erc20.FormatAmount(balance, meta.Decimals)),
	}
	switch balance.Cmp(held) {
	case -1:
		logger.Error("pool account underfunded", fields...)
		return fmt.Errorf("pool account holds %s, recorded %s", balance, held)
	case 1:
		logger.Warn("pool account holds more than recorded", fields...)
	default:
		logger.Info("pool account reconciled", fields...)
	}
	return nil
}

func summarizeJournal(path string, logger *zap.Logger) error {
	events, err := storage.ReadEvents(path)
	if err != nil {
		return err
	}
	counts := make(map[model.EventKind]int)
	for _, event := range events {
		counts[event.Kind]++
	}
	fields := []zap.Field{
		zap.Int("events", len(events)),
		zap.Int("registered", counts[model.EventRegistered]),
		zap.Int("deposited", counts[model.EventDeposited]),
		zap.Int("redeemed", counts[model.EventRedeemed]),
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		fields = append(fields, zap.String("last_kind", string(last.Kind)), zap.String("last_at", last.Timestamp))
	}
	logger.Info("event journal", fields...)
	return nil
}
