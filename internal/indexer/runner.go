package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"pasanaco/internal/chain"
	"pasanaco/internal/erc20"
	"pasanaco/internal/model"
	"pasanaco/internal/storage"
)

// Source is the subset of chain.Client the runner reads from.
type Source interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	Tokens            []common.Address
	Account           common.Address
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner follows ERC20 Transfer logs into and out of the pool account and
// writes them to a transfer sink.
type Runner struct {
	cfg        RunConfig
	source     Source
	sink       storage.TransferSink
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source Source, sink storage.TransferSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		sink:       sink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}
	if r.cfg.Account == (common.Address{}) {
		return fmt.Errorf("pool account is required")
	}

	transferTopic, err := erc20.TransferTopic()
	if err != nil {
		return err
	}

	chainID, err := r.source.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	switch {
	case ok && cp.Account != r.cfg.Account.Hex():
		r.logger.Warn("checkpoint belongs to another account, ignoring", zap.String("checkpoint_account", cp.Account))
	case ok && cp.LastProcessedBlock >= from:
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	accountTopic := erc20.AddressTopic(r.cfg.Account)
	queries := [][][]common.Hash{
		{{transferTopic}, {accountTopic}},
		{{transferTopic}, nil, {accountTopic}},
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch transfers", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Uint64("blocks", blockRange.Blocks()))

		var logs []types.Log
		for _, token := range r.cfg.Tokens {
			for _, topics := range queries {
				found, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, token, topics)
				if err != nil {
					return fmt.Errorf("filter logs: %w", err)
				}
				logs = append(logs, found...)
			}
		}
		sort.Slice(logs, func(i, j int) bool {
			if logs[i].BlockNumber != logs[j].BlockNumber {
				return logs[i].BlockNumber < logs[j].BlockNumber
			}
			return logs[i].Index < logs[j].Index
		})

		ingestedAt := time.Now().UTC()
		records := make([]model.TransferRecord, 0, len(logs))
		for _, log := range logs {
			if r.isDuplicate(log) {
				continue
			}
			transfer, err := erc20.DecodeTransfer(log)
			if err != nil {
				r.logger.Warn("skip undecodable log", zap.String("tx_hash", log.TxHash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, buildTransferRecord(chainIDValue, r.cfg.Account, log, transfer, ts, ingestedAt))
		}

		if err := r.sink.PutTransfers(ctx, records); err != nil {
			return fmt.Errorf("store transfers: %w", err)
		}

		if err := r.checkpoint.Save(r.cfg.Account.Hex(), blockRange.To); err != nil {
			return err
		}

		r.logger.Info("batch complete", zap.Int("transfers", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, token common.Address, topics [][]common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := chain.Retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, fromBlock, toBlock, token, topics)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.String("token", token.Hex()), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := chain.Retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

// isDuplicate drops a self-transfer of the pool account, which both queries return.
func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
