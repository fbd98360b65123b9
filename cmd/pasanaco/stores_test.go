package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pasanaco/internal/config"
	"pasanaco/internal/pool"
	"pasanaco/internal/storage"
)

func TestBuildPoolConfig(t *testing.T) {
	asset := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	cfg, err := buildPoolConfig(config.PoolConfig{
		Name:            "vault",
		DepositAmount:   "2.5",
		MaxParticipants: 5,
	}, asset, 6)
	require.NoError(t, err)
	assert.Equal(t, "2500000", cfg.DepositAmount.String())
	assert.Equal(t, asset, cfg.Asset)

	_, err = buildPoolConfig(config.PoolConfig{DepositAmount: "0.0000001"}, asset, 6)
	assert.Error(t, err)
}

func TestOpenStoresFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := openStores(context.Background(), config.StateConfig{
		Events:    filepath.Join(dir, "events.jsonl"),
		StateFile: filepath.Join(dir, "state.json"),
	}, zap.NewNop())
	require.NoError(t, err)
	defer st.Close()

	assert.IsType(t, &storage.JsonlStorage{}, st.journal)
	assert.IsType(t, &pool.FileStateStore{}, st.state)
}

func TestOpenStoresNone(t *testing.T) {
	st, err := openStores(context.Background(), config.StateConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, st.journal)
	assert.Nil(t, st.state)
}
