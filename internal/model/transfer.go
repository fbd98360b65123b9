package model

// TransferDirection tells whether a transfer moved funds into or out of the pool account.
type TransferDirection string

const (
	TransferIn  TransferDirection = "in"
	TransferOut TransferDirection = "out"
)

// TransferRecord is a decoded ERC20 Transfer log touching the pool account.
type TransferRecord struct {
	ChainID     uint64            `json:"chain_id"`
	BlockNumber uint64            `json:"block_number"`
	BlockHash   string            `json:"block_hash"`
	TxHash      string            `json:"tx_hash"`
	LogIndex    uint64            `json:"log_index"`
	Token       string            `json:"token"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Amount      string            `json:"amount"`
	Direction   TransferDirection `json:"direction"`
	Removed     bool              `json:"removed"`
	Timestamp   uint64            `json:"timestamp"`
	IngestedAt  string            `json:"ingested_at"`
}
