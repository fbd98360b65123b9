// Package ledger moves the pooled asset in and out of the pool account.
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotAuthorized       = errors.New("transfer not authorized")
	ErrTransferRejected    = errors.New("transfer rejected")
	// ErrTransferPending means the transfer was broadcast but its receipt
	// could not be confirmed. The transfer may still be mined.
	ErrTransferPending = errors.New("transfer pending confirmation")
)

// AssetLedger is the capability set the pool needs from the external asset.
// TransferFrom pulls amount from holder into the pool account, TransferTo
// pushes amount from the pool account to recipient.
type AssetLedger interface {
	TransferFrom(ctx context.Context, holder common.Address, amount *big.Int) error
	TransferTo(ctx context.Context, recipient common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
}

// Faucet is implemented by development ledgers that can mint funds and
// record approvals on behalf of a holder.
type Faucet interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner common.Address, amount *big.Int) error
}
