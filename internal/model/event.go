package model

// EventKind names a pool state transition.
type EventKind string

const (
	EventRegistered EventKind = "registered"
	EventDeposited  EventKind = "deposited"
	EventRedeemed   EventKind = "redeemed"
)

// PoolEvent is a journal entry emitted after a successful pool mutation.
// Amounts are decimal strings in token base units.
type PoolEvent struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	Pool        string    `json:"pool"`
	Asset       string    `json:"asset"`
	Participant string    `json:"participant"`
	Amount      string    `json:"amount,omitempty"`
	Turn        uint64    `json:"turn"`
	Timestamp   string    `json:"timestamp"`
}
