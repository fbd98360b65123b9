package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"pasanaco/internal/chain"
	"pasanaco/internal/erc20"
)

const (
	defaultReceiptTimeout = 2 * time.Minute
	receiptRetries        = 3
)

// Backend is the subset of chain.Client the ERC20 ledger uses.
type Backend interface {
	erc20.Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitReceipt(ctx context.Context, txHash common.Hash, pollInterval time.Duration) (*types.Receipt, error)
}

// ERC20Config configures an on-chain token ledger.
type ERC20Config struct {
	Token        common.Address
	PrivateKey   *ecdsa.PrivateKey
	ChainID      *big.Int
	PollInterval time.Duration
	// ReceiptTimeout bounds the wait for a sent transaction to be mined.
	ReceiptTimeout time.Duration
	// GasLimit overrides estimation when non-zero.
	GasLimit uint64
}

// ERC20 moves a deployed ERC20 token, signing as the pool operator account.
// Holders approve the operator account before depositing.
type ERC20 struct {
	cfg     ERC20Config
	backend Backend
	account common.Address
	signer  types.Signer
	logger  *zap.Logger
}

// NewERC20 builds an ERC20 ledger.
func NewERC20(cfg ERC20Config, backend Backend, logger *zap.Logger) (*ERC20, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("operator key is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	if cfg.Token == (common.Address{}) {
		return nil, fmt.Errorf("token address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ERC20{
		cfg:     cfg,
		backend: backend,
		account: crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		signer:  types.LatestSignerForChainID(cfg.ChainID),
		logger:  logger,
	}, nil
}

// Address returns the pool operator account that holds pooled funds.
func (l *ERC20) Address() common.Address { return l.account }

// TransferFrom pulls amount from holder into the operator account.
func (l *ERC20) TransferFrom(ctx context.Context, holder common.Address, amount *big.Int) error {
	balance, err := erc20.BalanceOf(ctx, l.backend, l.cfg.Token, holder, nil)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%s holds %s, needs %s: %w", holder.Hex(), balance, amount, ErrInsufficientBalance)
	}
	allowance, err := erc20.Allowance(ctx, l.backend, l.cfg.Token, holder, l.account, nil)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%s approved %s, needs %s: %w", holder.Hex(), allowance, amount, ErrNotAuthorized)
	}

	data, err := erc20.PackTransferFrom(holder, l.account, amount)
	if err != nil {
		return err
	}
	return l.send(ctx, "transferFrom", data)
}

// TransferTo pushes amount from the operator account to recipient.
func (l *ERC20) TransferTo(ctx context.Context, recipient common.Address, amount *big.Int) error {
	balance, err := erc20.BalanceOf(ctx, l.backend, l.cfg.Token, l.account, nil)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("pool account holds %s, needs %s: %w", balance, amount, ErrTransferRejected)
	}

	data, err := erc20.PackTransfer(recipient, amount)
	if err != nil {
		return err
	}
	return l.send(ctx, "transfer", data)
}

// BalanceOf returns the latest token balance of holder.
func (l *ERC20) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return erc20.BalanceOf(ctx, l.backend, l.cfg.Token, holder, nil)
}

func (l *ERC20) send(ctx context.Context, method string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	nonce, err := l.backend.PendingNonceAt(ctx, l.account)
	if err != nil {
		return fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}

	token := l.cfg.Token
	gasLimit := l.cfg.GasLimit
	if gasLimit == 0 {
		gasLimit, err = l.backend.EstimateGas(ctx, ethereum.CallMsg{From: l.account, To: &token, Data: data})
		if err != nil {
			return fmt.Errorf("estimate %s: %v: %w", method, err, ErrTransferRejected)
		}
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &token,
		Data:     data,
	}), l.signer, l.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("sign %s: %w", method, err)
	}

	if err := l.backend.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	l.logger.Debug("transaction sent", zap.String("method", method), zap.String("tx_hash", tx.Hash().Hex()), zap.Uint64("nonce", nonce))

	// Once sent the transfer may be mined, so the wait outlives the caller.
	timeout := l.cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = defaultReceiptTimeout
	}
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var receipt *types.Receipt
	err = chain.Retry(waitCtx, receiptRetries, l.cfg.PollInterval, func(ctx context.Context) error {
		var err error
		receipt, err = l.backend.WaitReceipt(ctx, tx.Hash(), l.cfg.PollInterval)
		return err
	})
	if err != nil {
		l.logger.Warn("transaction unconfirmed",
			zap.String("method", method),
			zap.String("tx_hash", tx.Hash().Hex()),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return fmt.Errorf("wait %s tx %s: %v: %w", method, tx.Hash().Hex(), err, ErrTransferPending)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s reverted in tx %s: %w", method, tx.Hash().Hex(), ErrTransferRejected)
	}

	l.logger.Info("transaction mined",
		zap.String("method", method),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}
