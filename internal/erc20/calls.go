package erc20

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BalanceOf returns the token balance of owner. A nil block means latest.
func BalanceOf(ctx context.Context, caller Caller, token, owner common.Address, block *big.Int) (*big.Int, error) {
	values, err := call(ctx, caller, token, "balanceOf", block, owner)
	if err != nil {
		return nil, err
	}
	return singleBigInt("balanceOf", values)
}

// Allowance returns how much spender may pull from owner.
func Allowance(ctx context.Context, caller Caller, token, owner, spender common.Address, block *big.Int) (*big.Int, error) {
	values, err := call(ctx, caller, token, "allowance", block, owner, spender)
	if err != nil {
		return nil, err
	}
	return singleBigInt("allowance", values)
}

// TotalSupply returns the token's total supply.
func TotalSupply(ctx context.Context, caller Caller, token common.Address) (*big.Int, error) {
	values, err := call(ctx, caller, token, "totalSupply", nil)
	if err != nil {
		return nil, err
	}
	return singleBigInt("totalSupply", values)
}

// PackTransfer encodes transfer(to, amount) calldata.
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return pack("transfer", to, amount)
}

// PackTransferFrom encodes transferFrom(from, to, amount) calldata.
func PackTransferFrom(from, to common.Address, amount *big.Int) ([]byte, error) {
	return pack("transferFrom", from, to, amount)
}

func pack(method string, args ...interface{}) ([]byte, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func call(ctx context.Context, caller Caller, token common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return callWith(ctx, caller, token, parsed, method, block, args...)
}

func callWith(ctx context.Context, caller Caller, token common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func singleBigInt(method string, values []interface{}) (*big.Int, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	val, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	return val, nil
}
