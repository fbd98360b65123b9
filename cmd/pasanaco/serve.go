package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pasanaco/internal/api"
	"pasanaco/internal/chain"
	"pasanaco/internal/config"
	"pasanaco/internal/erc20"
	"pasanaco/internal/indexer"
	"pasanaco/internal/ledger"
	"pasanaco/internal/metrics"
	"pasanaco/internal/pool"
)

var devPoolAccount = common.HexToAddress("0x0000000000000000000000000000000000005a5a")

// backend is the asset ledger a served pool moves funds through.
type backend struct {
	ledger   ledger.AssetLedger
	faucet   ledger.Faucet
	asset    common.Address
	decimals uint8
	// seed credits the pool account on a memory ledger after a restore.
	seed     func(held *big.Int) error
	close    func()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
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

	var be backend
	switch cfg.Backend {
	case "memory":
		be, err = memoryBackend(cfg)
	case "erc20":
		be, err = erc20Backend(ctx, cfg, logger)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return err
	}
	if be.close != nil {
		defer be.close()
	}

	poolCfg, err := buildPoolConfig(cfg.Pool, be.asset, be.decimals)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg.State, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, restored, err := pool.Open(ctx, poolCfg, st.state, be.ledger,
		pool.WithLogger(logger),
		pool.WithMetrics(metrics.New(reg)),
		pool.WithJournal(st.journal),
	)
	if err != nil {
		return err
	}
	if restored {
		held := p.TotalAssetsHeld()
		logger.Info("pool state restored",
			zap.Int("participants", len(p.Participants())),
			zap.Uint64("turn", p.CurrentTurn()),
			zap.String("held", held.String()),
		)
		if be.seed != nil && held.Sign() > 0 {
			if err := be.seed(held); err != nil {
				return fmt.Errorf("seed memory ledger: %w", err)
			}
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Router(api.New(p, be.faucet, logger), reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server start",
			zap.String("listen", cfg.Listen),
			zap.String("backend", cfg.Backend),
			zap.String("asset", be.asset.Hex()),
			zap.Bool("faucet", be.faucet != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("http server shutdown")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func memoryBackend(cfg config.ServeConfig) (backend, error) {
	poolAccount := devPoolAccount
	if cfg.PoolAccount != "" {
		addr, err := indexer.ParseAddress(cfg.PoolAccount)
		if err != nil {
			return backend{}, fmt.Errorf("pool account: %w", err)
		}
		poolAccount = addr
	}
	asset := crypto.CreateAddress(poolAccount, 0)
	if cfg.Pool.Asset != "" {
		addr, err := indexer.ParseAddress(cfg.Pool.Asset)
		if err != nil {
			return backend{}, fmt.Errorf("asset: %w", err)
		}
		asset = addr
	}

	token := ledger.NewToken(asset, "Boliviano", "BOB", cfg.Pool.Decimals)
	account := token.Account(poolAccount)
	be := backend{
		ledger:   account,
		asset:    asset,
		decimals: cfg.Pool.Decimals,
		seed: func(held *big.Int) error {
			return token.Mint(poolAccount, held)
		},
	}
	if cfg.Faucet {
		be.faucet = account
	}
	return be, nil
}

func erc20Backend(ctx context.Context, cfg config.ServeConfig, logger *zap.Logger) (backend, error) {
	if cfg.RPCURL == "" {
		return backend{}, fmt.Errorf("rpc url is required")
	}
	if cfg.OperatorKey == "" {
		return backend{}, fmt.Errorf("operator key is required")
	}
	asset, err := indexer.ParseAddress(cfg.Pool.Asset)
	if err != nil {
		return backend{}, fmt.Errorf("asset: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return backend{}, fmt.Errorf("parse operator key: %w", err)
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return backend{}, fmt.Errorf("connect rpc: %w", err)
	}
	chainID, err := client.GetChainID(ctx)
	if err != nil {
		client.Close()
		return backend{}, fmt.Errorf("get chain id: %w", err)
	}
	meta, err := erc20.FetchTokenMeta(ctx, client, asset, logger)
	if err != nil {
		client.Close()
		return backend{}, err
	}

	l, err := ledger.NewERC20(ledger.ERC20Config{
		Token:          asset,
		PrivateKey:     key,
		ChainID:        chainID,
		PollInterval:   cfg.PollInterval,
		ReceiptTimeout: cfg.ReceiptTimeout,
		GasLimit:       cfg.GasLimit,
	}, client, logger)
	if err != nil {
		client.Close()
		return backend{}, err
	}

	logger.Info("erc20 ledger ready",
		zap.String("token", asset.Hex()),
		zap.String("symbol", meta.Symbol),
		zap.Uint8("decimals", meta.Decimals),
		zap.String("pool_account", l.Address().Hex()),
		zap.String("chain_id", chainID.String()),
	)
	return backend{
		ledger:   l,
		asset:    asset,
		decimals: meta.Decimals,
		close:    client.Close,
	}, nil
}
