package erc20

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCaller answers eth_call by method selector.
type fakeCaller struct {
	results map[string][]interface{}
	calls   []string
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)
	out, ok := f.results[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return method.Outputs.Pack(out...)
}

var (
	token   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	holder  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	spender = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestBalanceAndAllowance(t *testing.T) {
	caller := &fakeCaller{results: map[string][]interface{}{
		"balanceOf": {big.NewInt(700)},
		"allowance": {big.NewInt(10)},
	}}

	bal, err := BalanceOf(context.Background(), caller, token, holder, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(700), bal.Int64())

	allowance, err := Allowance(context.Background(), caller, token, holder, spender, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), allowance.Int64())
}

func TestBalanceOfNilCaller(t *testing.T) {
	_, err := BalanceOf(context.Background(), nil, token, holder, nil)
	require.Error(t, err)
}

func TestFetchTokenMeta(t *testing.T) {
	caller := &fakeCaller{results: map[string][]interface{}{
		"decimals":    {uint8(18)},
		"symbol":      {"BOB"},
		"name":        {"Boliviano"},
		"totalSupply": {big.NewInt(1000)},
	}}

	meta, err := FetchTokenMeta(context.Background(), caller, token, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, uint8(18), meta.Decimals)
	assert.Equal(t, "BOB", meta.Symbol)
	assert.Equal(t, "Boliviano", meta.Name)
	assert.Equal(t, "1000", meta.TotalSupply)
	assert.Equal(t, token.Hex(), meta.Address)
}

func TestMetaCacheLookupCaches(t *testing.T) {
	caller := &fakeCaller{results: map[string][]interface{}{
		"decimals": {uint8(6)},
	}}
	cache := NewMetaCache()

	first, err := cache.Lookup(context.Background(), caller, token, nil)
	require.NoError(t, err)
	calls := len(caller.calls)

	second, err := cache.Lookup(context.Background(), caller, token, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, len(caller.calls))
}

func TestDecodeTransfer(t *testing.T) {
	parsed, err := ABI()
	require.NoError(t, err)
	event := parsed.Events["Transfer"]

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(50))
	require.NoError(t, err)

	log := types.Log{
		Address: token,
		Topics:  []common.Hash{event.ID, AddressTopic(holder), AddressTopic(spender)},
		Data:    data,
	}

	transfer, err := DecodeTransfer(log)
	require.NoError(t, err)
	assert.Equal(t, token, transfer.Token)
	assert.Equal(t, holder, transfer.From)
	assert.Equal(t, spender, transfer.To)
	assert.Equal(t, int64(50), transfer.Value.Int64())

	topic, err := TransferTopic()
	require.NoError(t, err)
	assert.Equal(t, event.ID, topic)
}

func TestDecodeTransferRejectsOtherEvents(t *testing.T) {
	parsed, err := ABI()
	require.NoError(t, err)

	log := types.Log{
		Address: token,
		Topics:  []common.Hash{parsed.Events["Approval"].ID, AddressTopic(holder), AddressTopic(spender)},
	}
	_, err = DecodeTransfer(log)
	require.Error(t, err)

	_, err = DecodeTransfer(types.Log{Topics: []common.Hash{parsed.Events["Transfer"].ID}})
	require.Error(t, err)
}

func TestPackTransferFrom(t *testing.T) {
	data, err := PackTransferFrom(holder, spender, big.NewInt(5))
	require.NoError(t, err)

	parsed, err := ABI()
	require.NoError(t, err)
	method, err := parsed.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "transferFrom", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, holder, args[0])
	assert.Equal(t, spender, args[1])
	assert.Equal(t, int64(5), args[2].(*big.Int).Int64())
}
