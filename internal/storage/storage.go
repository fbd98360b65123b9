package storage

import (
	"context"

	"pasanaco/internal/model"
)

// Journal records pool events after they are committed.
type Journal interface {
	PutEvents(ctx context.Context, events []model.PoolEvent) error
}

// TransferSink stores indexed on-chain transfers of the pool account.
type TransferSink interface {
	PutTransfers(ctx context.Context, transfers []model.TransferRecord) error
}
