package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pasanaco/internal/config"
	"pasanaco/internal/erc20"
	"pasanaco/internal/pool"
	"pasanaco/internal/storage"
	"pasanaco/internal/storage/postgres"
)

// stores bundles the optional journal and snapshot store of a command.
type stores struct {
	journal storage.Journal
	state   pool.StateStore
	pg      *postgres.Store
}

func (s *stores) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
}

// openStores prefers Postgres when a DSN is configured and falls back to local files.
func openStores(ctx context.Context, cfg config.StateConfig, logger *zap.Logger) (*stores, error) {
	out := &stores{}
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		out.pg = pg
		out.journal = pg
		out.state = &pool.DBStateStore{Store: pg, Name: cfg.StateName}
		logger.Info("postgres storage enabled", zap.String("state_name", cfg.StateName))
		return out, nil
	}

	if cfg.Events != "" {
		out.journal = storage.NewJsonlStorage(cfg.Events)
		logger.Info("event journal enabled", zap.String("events", cfg.Events))
	}
	if cfg.StateFile != "" {
		out.state = &pool.FileStateStore{Path: cfg.StateFile}
		logger.Info("state file enabled", zap.String("state_file", cfg.StateFile))
	}
	return out, nil
}

func buildPoolConfig(cfg config.PoolConfig, asset common.Address, decimals uint8) (pool.Config, error) {
	amount, err := erc20.ParseAmount(cfg.DepositAmount, decimals)
	if err != nil {
		return pool.Config{}, fmt.Errorf("parse deposit amount: %w", err)
	}
	return pool.Config{
		Asset:           asset,
		DepositAmount:   amount,
		MaxParticipants: cfg.MaxParticipants,
		Name:            cfg.Name,
		Version:         cfg.Version,
	}, nil
}
