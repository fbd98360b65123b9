package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"pasanaco/internal/erc20"
	"pasanaco/internal/model"
)

func buildTransferRecord(chainID uint64, account common.Address, log types.Log, transfer erc20.Transfer, timestamp uint64, ingestedAt time.Time) model.TransferRecord {
	direction := model.TransferIn
	if transfer.From == account {
		direction = model.TransferOut
	}

	return model.TransferRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Token:       transfer.Token.Hex(),
		From:        transfer.From.Hex(),
		To:          transfer.To.Hex(),
		Amount:      transfer.Value.String(),
		Direction:   direction,
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}
