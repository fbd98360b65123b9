package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pasanaco/internal/config"
	"pasanaco/internal/erc20"
	"pasanaco/internal/ledger"
	"pasanaco/internal/pool"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Players <= 0 {
		return fmt.Errorf("players must be positive")
	}
	if cfg.Rounds < 0 {
		return fmt.Errorf("rounds must not be negative")
	}
	decimals := cfg.Pool.Decimals
	mint, err := erc20.ParseAmount(cfg.Mint, decimals)
	if err != nil {
		return fmt.Errorf("parse mint: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Addresses follow contract deployment order from a throwaway deployer.
	deployerKey, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate deployer key: %w", err)
	}
	deployer := crypto.PubkeyToAddress(deployerKey.PublicKey)
	token := ledger.NewToken(crypto.CreateAddress(deployer, 0), "Boliviano", cfg.Symbol, decimals)
	account := token.Account(crypto.CreateAddress(deployer, 1))

	poolCfg, err := buildPoolConfig(cfg.Pool, token.Address(), decimals)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, config.StateConfig{Events: cfg.State.Events, StateFile: cfg.State.StateFile}, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []pool.Option{pool.WithLogger(logger), pool.WithJournal(st.journal)}
	if st.state != nil {
		opts = append(opts, pool.WithStateStore(st.state))
	}
	p, err := pool.New(poolCfg, account, opts...)
	if err != nil {
		return err
	}

	logger.Info("pool deployed",
		zap.String("token", token.Address().Hex()),
		zap.String("symbol", cfg.Symbol),
		zap.String("pool_account", account.Address().Hex()),
		zap.String("deposit_amount", erc20.FormatAmount(poolCfg.DepositAmount, decimals)),
		zap.Int("max_participants", poolCfg.MaxParticipants),
	)

	players := make([]common.Address, 0, cfg.Players)
	for i := 0; i < cfg.Players; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate player key: %w", err)
		}
		player := crypto.PubkeyToAddress(key.PublicKey)
		if err := account.Mint(ctx, player, mint); err != nil {
			return fmt.Errorf("mint to %s: %w", player.Hex(), err)
		}
		if err := p.Register(ctx, player); err != nil {
			if errors.Is(err, pool.ErrCapacityExceeded) {
				logger.Warn("player left out, pool is full", zap.String("player", player.Hex()))
				continue
			}
			return err
		}
		players = append(players, player)
	}

	for round := 0; round < cfg.Rounds; round++ {
		for _, player := range players {
			if err := account.Approve(ctx, player, poolCfg.DepositAmount); err != nil {
				return err
			}
			if err := p.Deposit(ctx, player); err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
		}

		recipient, err := p.ParticipantOnTurn()
		if err != nil {
			return err
		}
		before := token.BalanceOf(recipient)
		payout, err := p.Redeem(ctx)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		after := token.BalanceOf(recipient)

		logger.Info("round paid",
			zap.Int("round", round),
			zap.Uint64("turn", payout.Turn),
			zap.String("recipient", payout.Recipient.Hex()),
			zap.String("payout", erc20.FormatAmount(payout.Amount, decimals)),
			zap.String("balance_before", erc20.FormatAmount(before, decimals)),
			zap.String("balance_after", erc20.FormatAmount(after, decimals)),
		)
	}

	for i, player := range players {
		logger.Info("final balance",
			zap.Int("position", i),
			zap.String("player", player.Hex()),
			zap.String("balance", erc20.FormatAmount(token.BalanceOf(player), decimals)),
		)
	}
	logger.Info("simulation complete",
		zap.Int("rounds", cfg.Rounds),
		zap.Uint64("current_turn", p.CurrentTurn()),
		zap.String("total_supply", erc20.FormatAmount(token.TotalSupply(), decimals)),
	)
	return nil
}
