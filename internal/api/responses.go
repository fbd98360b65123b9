package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"pasanaco/internal/ledger"
	"pasanaco/internal/model"
	"pasanaco/internal/pool"
)

type poolResponse struct {
	model.PoolSnapshot
	MaxDepositAmount  string `json:"max_deposit_amount"`
	ParticipantOnTurn string `json:"participant_on_turn,omitempty"`
	RoundComplete     bool   `json:"round_complete"`
}

type participantResponse struct {
	Address string `json:"address"`
}

type depositResponse struct {
	Address         string `json:"address"`
	Turn            uint64 `json:"turn"`
	TotalAssetsHeld string `json:"total_assets_held"`
}

type payoutResponse struct {
	Turn      uint64 `json:"turn"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type amountResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classify maps a service error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, pool.ErrInvalidParticipant):
		return http.StatusBadRequest, "invalid_participant"
	case errors.Is(err, pool.ErrNotRegistered):
		return http.StatusNotFound, "not_registered"
	case errors.Is(err, pool.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, pool.ErrAlreadyRegistered):
		return http.StatusConflict, "already_registered"
	case errors.Is(err, pool.ErrAlreadyDepositedThisRound):
		return http.StatusConflict, "already_deposited"
	case errors.Is(err, pool.ErrRoundIncomplete):
		return http.StatusConflict, "round_incomplete"
	case errors.Is(err, pool.ErrEmptyPool):
		return http.StatusConflict, "empty_pool"
	case errors.Is(err, pool.ErrTransferFailed),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrNotAuthorized),
		errors.Is(err, ledger.ErrTransferRejected):
		return http.StatusUnprocessableEntity, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}
