package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrCapacityExceeded          = errors.New("pool is full")
	ErrAlreadyRegistered         = errors.New("participant already registered")
	ErrNotRegistered             = errors.New("participant not registered")
	ErrAlreadyDepositedThisRound = errors.New("participant already deposited this round")
	ErrRoundIncomplete           = errors.New("round incomplete")
	ErrEmptyPool                 = errors.New("pool has no participants")
	ErrTransferFailed            = errors.New("asset transfer failed")
	ErrInvalidParticipant        = errors.New("invalid participant")
	ErrInvalidSnapshot           = errors.New("invalid pool snapshot")
)

// TransferError wraps a ledger failure raised while moving pool funds.
// It matches ErrTransferFailed and unwraps to the ledger error.
type TransferError struct {
	Op      string
	Account common.Address
	Amount  *big.Int
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s for %s: %v", e.Op, e.Amount, e.Account.Hex(), e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }

// reason maps an operation error to a short metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrAlreadyDepositedThisRound):
		return "already_deposited"
	case errors.Is(err, ErrRoundIncomplete):
		return "round_incomplete"
	case errors.Is(err, ErrEmptyPool):
		return "empty_pool"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrInvalidParticipant):
		return "invalid_participant"
	default:
		return "other"
	}
}
