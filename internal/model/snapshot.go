package model

// PoolSnapshot is the persisted form of a pool's full state.
type PoolSnapshot struct {
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	Asset           string   `json:"asset"`
	DepositAmount   string   `json:"deposit_amount"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
	Deposited       []string `json:"deposited"`
	CurrentTurn     uint64   `json:"current_turn"`
	TotalAssetsHeld string   `json:"total_assets_held"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}
