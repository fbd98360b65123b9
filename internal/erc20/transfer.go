package erc20

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transfer is a decoded ERC20 Transfer event.
type Transfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// TransferTopic returns topic0 of the Transfer event.
func TransferTopic() (common.Hash, error) {
	parsed, err := ABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return parsed.Events["Transfer"].ID, nil
}

// DecodeTransfer decodes a Transfer log. Both addresses are indexed topics.
func DecodeTransfer(log types.Log) (Transfer, error) {
	parsed, err := ABI()
	if err != nil {
		return Transfer{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	event := parsed.Events["Transfer"]
	if len(log.Topics) != 3 {
		return Transfer{}, fmt.Errorf("transfer log has %d topics", len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return Transfer{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	values, err := parsed.Unpack("Transfer", log.Data)
	if err != nil {
		return Transfer{}, fmt.Errorf("unpack transfer: %w", err)
	}
	value, err := singleBigInt("Transfer", values)
	if err != nil {
		return Transfer{}, err
	}

	return Transfer{
		Token: log.Address,
		From:  common.BytesToAddress(log.Topics[1].Bytes()),
		To:    common.BytesToAddress(log.Topics[2].Bytes()),
		Value: value,
	}, nil
}

// AddressTopic left-pads an address into an indexed topic.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
