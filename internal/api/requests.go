package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"pasanaco/internal/erc20"
)

const maxBodyBytes = 1 << 16

type addressRequest struct {
	Address string `json:"address"`
}

// amountRequest carries an amount in base units.
type amountRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func decodeAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req addressRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return common.Address{}, false
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, err.Error())
		return common.Address{}, false
	}
	return addr, true
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, bool) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return common.Address{}, nil, false
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, err.Error())
		return common.Address{}, nil, false
	}
	amount, err := erc20.ParseBaseUnits(req.Amount)
	if err != nil {
		writeBadRequest(w, err.Error())
		return common.Address{}, nil, false
	}
	return addr, amount, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}
