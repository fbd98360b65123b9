package pool

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasanaco/internal/ledger"
	"pasanaco/internal/model"
)

func midRoundPool(t *testing.T) (*Pool, *ledger.Token, []common.Address) {
	t.Helper()
	ctx := context.Background()
	token := ledger.NewToken(assetAddr, "Test Token", "TST", 18)
	account := token.Account(poolAddr)
	amount := big.NewInt(10)
	players := testPlayers(3)

	p, err := New(Config{Asset: assetAddr, DepositAmount: amount, MaxParticipants: 3, Name: "vault"}, account)
	require.NoError(t, err)
	for _, player := range players {
		require.NoError(t, p.Register(ctx, player))
		require.NoError(t, token.Mint(player, big.NewInt(100)))
		require.NoError(t, token.Approve(player, poolAddr, big.NewInt(100)))
	}
	for _, player := range players {
		require.NoError(t, p.Deposit(ctx, player))
	}
	_, err = p.Redeem(ctx)
	require.NoError(t, err)
	// deposits out of payout order
	require.NoError(t, p.Deposit(ctx, players[2]))
	require.NoError(t, p.Deposit(ctx, players[0]))
	return p, token, players
}

func TestSnapshotRoundTrip(t *testing.T) {
	p, token, players := midRoundPool(t)

	snap := p.Snapshot()
	assert.Equal(t, uint64(1), snap.CurrentTurn)
	assert.Equal(t, "20", snap.TotalAssetsHeld)
	assert.Equal(t, []string{players[0].Hex(), players[2].Hex()}, snap.Deposited)

	restored, err := Restore(snap, token.Account(poolAddr))
	require.NoError(t, err)
	assert.Equal(t, p.Participants(), restored.Participants())
	assert.Equal(t, p.CurrentTurn(), restored.CurrentTurn())
	assert.Equal(t, p.TotalAssetsHeld().String(), restored.TotalAssetsHeld().String())
	assert.True(t, restored.HasDeposited(players[0]))
	assert.False(t, restored.HasDeposited(players[1]))

	onTurn, err := restored.ParticipantOnTurn()
	require.NoError(t, err)
	assert.Equal(t, players[1], onTurn)

	ctx := context.Background()
	require.NoError(t, restored.Deposit(ctx, players[1]))
	payout, err := restored.Redeem(ctx)
	require.NoError(t, err)
	assert.Equal(t, players[1], payout.Recipient)
	assert.Equal(t, int64(30), payout.Amount.Int64())
}

func TestRestoreRejectsInvalidSnapshots(t *testing.T) {
	p, token, players := midRoundPool(t)
	valid := p.Snapshot()

	cases := []struct {
		name   string
		mutate func(*model.PoolSnapshot)
	}{
		{"bad asset", func(s *model.PoolSnapshot) { s.Asset = "not-an-address" }},
		{"bad amount", func(s *model.PoolSnapshot) { s.DepositAmount = "ten" }},
		{"zero capacity", func(s *model.PoolSnapshot) { s.MaxParticipants = 0 }},
		{"over capacity", func(s *model.PoolSnapshot) {
			s.Participants = append(s.Participants, common.HexToAddress("0x99").Hex())
		}},
		{"duplicate participant", func(s *model.PoolSnapshot) {
			s.Participants = []string{players[0].Hex(), players[0].Hex()}
			s.Deposited = nil
			s.TotalAssetsHeld = "0"
		}},
		{"zero participant", func(s *model.PoolSnapshot) { s.Participants[1] = common.Address{}.Hex() }},
		{"unregistered deposit", func(s *model.PoolSnapshot) {
			s.Deposited = []string{outsider.Hex()}
			s.TotalAssetsHeld = "10"
		}},
		{"held mismatch", func(s *model.PoolSnapshot) { s.TotalAssetsHeld = "25" }},
		{"held not a number", func(s *model.PoolSnapshot) { s.TotalAssetsHeld = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := valid
			snap.Participants = append([]string(nil), valid.Participants...)
			snap.Deposited = append([]string(nil), valid.Deposited...)
			tc.mutate(&snap)

			_, err := Restore(snap, token.Account(poolAddr))
			require.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestCheckConfig(t *testing.T) {
	p, _, _ := midRoundPool(t)
	snap := p.Snapshot()

	cfg := Config{Asset: assetAddr, DepositAmount: big.NewInt(10), MaxParticipants: 3, Name: "renamed"}
	require.NoError(t, CheckConfig(cfg, snap))

	cfg.DepositAmount = big.NewInt(11)
	require.Error(t, CheckConfig(cfg, snap))

	cfg.DepositAmount = big.NewInt(10)
	cfg.MaxParticipants = 4
	require.Error(t, CheckConfig(cfg, snap))

	cfg.MaxParticipants = 3
	cfg.Asset = outsider
	require.Error(t, CheckConfig(cfg, snap))
}

func TestOpenWithFileStateStore(t *testing.T) {
	ctx := context.Background()
	token := ledger.NewToken(assetAddr, "Test Token", "TST", 18)
	account := token.Account(poolAddr)
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "pool.json")}
	cfg := Config{Asset: assetAddr, DepositAmount: big.NewInt(10), MaxParticipants: 2, Name: "vault"}
	players := testPlayers(2)

	p, restored, err := Open(ctx, cfg, store, account)
	require.NoError(t, err)
	assert.False(t, restored)

	for _, player := range players {
		require.NoError(t, p.Register(ctx, player))
	}
	require.NoError(t, token.Mint(players[1], big.NewInt(10)))
	require.NoError(t, token.Approve(players[1], poolAddr, big.NewInt(10)))
	require.NoError(t, p.Deposit(ctx, players[1]))

	saved, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{players[1].Hex()}, saved.Deposited)

	reopened, restored, err := Open(ctx, cfg, store, account)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, players, reopened.Participants())
	assert.True(t, reopened.HasDeposited(players[1]))
	assert.Equal(t, int64(10), reopened.TotalAssetsHeld().Int64())

	cfg.DepositAmount = big.NewInt(20)
	_, _, err = Open(ctx, cfg, store, account)
	require.Error(t, err)
}

func TestFileStateStoreMissingFile(t *testing.T) {
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "missing.json")}
	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
