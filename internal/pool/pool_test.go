package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"pasanaco/internal/ledger"
	"pasanaco/internal/metrics"
	"pasanaco/internal/model"
)

var (
	assetAddr = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	poolAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	outsider  = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func testPlayers(n int) []common.Address {
	players := make([]common.Address, n)
	for i := range players {
		players[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	return players
}

type PoolSuite struct {
	suite.Suite
	ctx     context.Context
	token   *ledger.Token
	account *ledger.Account
	amount  *big.Int
	players []common.Address
	pool    *Pool
}

func TestPoolSuite(t *testing.T) {
	suite.Run(t, new(PoolSuite))
}

func (s *PoolSuite) SetupTest() {
	s.ctx = context.Background()
	s.token = ledger.NewToken(assetAddr, "Test Token", "TST", 18)
	s.account = s.token.Account(poolAddr)
	s.amount = big.NewInt(10)
	s.players = testPlayers(DefaultMaxParticipants)
	s.pool = s.newPool(DefaultMaxParticipants)
}

func (s *PoolSuite) newPool(max int, opts ...Option) *Pool {
	p, err := New(Config{
		Asset:           assetAddr,
		DepositAmount:   s.amount,
		MaxParticipants: max,
		Name:            "vault",
		Version:         "v0.1",
	}, s.account, opts...)
	s.Require().NoError(err)
	return p
}

// fund mints one deposit to player and approves the pool account to pull it.
func (s *PoolSuite) fund(player common.Address) {
	s.Require().NoError(s.token.Mint(player, s.amount))
	s.Require().NoError(s.token.Approve(player, poolAddr, s.amount))
}

func (s *PoolSuite) registerAll(p *Pool, players []common.Address) {
	for _, player := range players {
		s.Require().NoError(p.Register(s.ctx, player))
	}
}

func (s *PoolSuite) depositAll(p *Pool, players []common.Address) {
	for _, player := range players {
		s.fund(player)
		s.Require().NoError(p.Deposit(s.ctx, player))
	}
}

func (s *PoolSuite) TestInitialState() {
	s.Equal(assetAddr, s.pool.Asset())
	s.Equal(DefaultMaxParticipants, s.pool.MaxParticipants())
	s.Equal(int64(10), s.pool.DepositAmount().Int64())
	s.Equal(int64(50), s.pool.MaxDepositAmount().Int64())
	s.Equal(uint64(0), s.pool.CurrentTurn())
	s.Zero(s.pool.TotalAssetsHeld().Sign())
	s.Equal("vault", s.pool.Name())
	s.Equal("v0.1", s.pool.Version())

	_, err := s.pool.ParticipantOnTurn()
	s.ErrorIs(err, ErrEmptyPool)
}

func (s *PoolSuite) TestNewValidatesConfig() {
	_, err := New(Config{Asset: assetAddr, DepositAmount: big.NewInt(0), MaxParticipants: 5}, s.account)
	s.Error(err)
	_, err = New(Config{Asset: assetAddr, DepositAmount: big.NewInt(10), MaxParticipants: 0}, s.account)
	s.Error(err)
	_, err = New(Config{Asset: assetAddr, DepositAmount: big.NewInt(10), MaxParticipants: 5}, nil)
	s.Error(err)
}

func (s *PoolSuite) TestDepositAmountIsImmutable() {
	s.pool.DepositAmount().SetInt64(999)
	s.amount.SetInt64(999)
	s.Equal(int64(10), s.pool.DepositAmount().Int64())
}

func (s *PoolSuite) TestRegistration() {
	s.Run("all players enter in order", func() {
		s.registerAll(s.pool, s.players)
		s.Equal(s.players, s.pool.Participants())
		for _, player := range s.players {
			s.True(s.pool.IsRegistered(player))
		}
	})

	s.Run("extra player is rejected", func() {
		err := s.pool.Register(s.ctx, outsider)
		s.ErrorIs(err, ErrCapacityExceeded)
		s.Len(s.pool.Participants(), DefaultMaxParticipants)
		s.False(s.pool.IsRegistered(outsider))
	})

	s.Run("duplicate is rejected", func() {
		err := s.pool.Register(s.ctx, s.players[0])
		s.ErrorIs(err, ErrAlreadyRegistered)
		s.Equal(s.players, s.pool.Participants())
	})
}

func (s *PoolSuite) TestDuplicateRegistrationLeavesStateUnchanged() {
	s.Require().NoError(s.pool.Register(s.ctx, s.players[0]))
	before := s.pool.Snapshot()

	err := s.pool.Register(s.ctx, s.players[0])
	s.ErrorIs(err, ErrAlreadyRegistered)

	after := s.pool.Snapshot()
	s.Equal(before.Participants, after.Participants)
	s.Equal(before.CurrentTurn, after.CurrentTurn)
}

func (s *PoolSuite) TestZeroAddressCannotRegister() {
	err := s.pool.Register(s.ctx, common.Address{})
	s.ErrorIs(err, ErrInvalidParticipant)
	s.Empty(s.pool.Participants())
}

func (s *PoolSuite) TestDepositRequiresRegistration() {
	s.fund(outsider)
	err := s.pool.Deposit(s.ctx, outsider)
	s.ErrorIs(err, ErrNotRegistered)
	s.Zero(s.pool.TotalAssetsHeld().Sign())
	s.Equal(int64(10), s.token.BalanceOf(outsider).Int64())
}

func (s *PoolSuite) TestHeldTracksDeposits() {
	s.registerAll(s.pool, s.players)
	for i, player := range s.players {
		s.fund(player)
		s.Require().NoError(s.pool.Deposit(s.ctx, player))

		want := new(big.Int).Mul(s.amount, big.NewInt(int64(i+1)))
		s.Equal(want.String(), s.pool.TotalAssetsHeld().String())
		s.Equal(want.String(), s.token.BalanceOf(poolAddr).String())
		s.True(s.pool.HasDeposited(player))
	}
}

func (s *PoolSuite) TestDoubleDepositRejected() {
	s.registerAll(s.pool, s.players)
	s.fund(s.players[0])
	s.Require().NoError(s.pool.Deposit(s.ctx, s.players[0]))

	s.fund(s.players[0])
	err := s.pool.Deposit(s.ctx, s.players[0])
	s.ErrorIs(err, ErrAlreadyDepositedThisRound)
	s.Equal(int64(10), s.pool.TotalAssetsHeld().Int64())
	s.Equal(int64(10), s.token.BalanceOf(poolAddr).Int64())
	s.Equal(int64(10), s.token.BalanceOf(s.players[0]).Int64())
}

func (s *PoolSuite) TestDepositTransferFailure() {
	player := s.players[0]
	s.Require().NoError(s.pool.Register(s.ctx, player))

	s.Run("missing approval", func() {
		s.Require().NoError(s.token.Mint(player, s.amount))
		err := s.pool.Deposit(s.ctx, player)
		s.ErrorIs(err, ErrTransferFailed)
		s.ErrorIs(err, ledger.ErrNotAuthorized)

		var transferErr *TransferError
		s.Require().ErrorAs(err, &transferErr)
		s.Equal(player, transferErr.Account)
		s.Equal("deposit", transferErr.Op)
	})

	s.Run("insufficient balance", func() {
		s.Require().NoError(s.token.Approve(player, poolAddr, big.NewInt(100)))
		s.Require().NoError(s.token.Transfer(player, outsider, big.NewInt(5)))
		err := s.pool.Deposit(s.ctx, player)
		s.ErrorIs(err, ErrTransferFailed)
		s.ErrorIs(err, ledger.ErrInsufficientBalance)
	})

	s.Run("state untouched", func() {
		s.False(s.pool.HasDeposited(player))
		s.Zero(s.pool.TotalAssetsHeld().Sign())
		s.Zero(s.token.BalanceOf(poolAddr).Sign())
	})

	s.Run("retry after funding succeeds", func() {
		s.Require().NoError(s.token.Mint(player, big.NewInt(5)))
		s.Require().NoError(s.pool.Deposit(s.ctx, player))
		s.True(s.pool.HasDeposited(player))
	})
}

func (s *PoolSuite) TestRedeemEmptyPool() {
	_, err := s.pool.Redeem(s.ctx)
	s.ErrorIs(err, ErrEmptyPool)
	s.Equal(uint64(0), s.pool.CurrentTurn())
}

func (s *PoolSuite) TestPlayerCannotRedeemIncompleteRound() {
	s.registerAll(s.pool, s.players[:2])

	_, err := s.pool.Redeem(s.ctx)
	s.ErrorIs(err, ErrRoundIncomplete)

	s.depositAll(s.pool, s.players[:1])
	_, err = s.pool.Redeem(s.ctx)
	s.ErrorIs(err, ErrRoundIncomplete)
	s.Equal(uint64(0), s.pool.CurrentTurn())
	s.Equal(int64(10), s.pool.TotalAssetsHeld().Int64())
}

func (s *PoolSuite) TestLateRegistrationReopensCompleteness() {
	s.registerAll(s.pool, s.players[:2])
	s.depositAll(s.pool, s.players[:2])
	s.Require().NoError(s.pool.Register(s.ctx, s.players[2]))

	_, err := s.pool.Redeem(s.ctx)
	s.ErrorIs(err, ErrRoundIncomplete)
}

func (s *PoolSuite) TestFullCycleScenario() {
	s.registerAll(s.pool, s.players)
	initial := s.token.BalanceOf(s.players[0])

	s.depositAll(s.pool, s.players)
	s.Equal(int64(50), s.pool.TotalAssetsHeld().Int64())

	onTurn, err := s.pool.ParticipantOnTurn()
	s.Require().NoError(err)
	s.Equal(s.players[0], onTurn)

	payout, err := s.pool.Redeem(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), payout.Turn)
	s.Equal(s.players[0], payout.Recipient)
	s.Equal(int64(50), payout.Amount.Int64())

	final := s.token.BalanceOf(s.players[0])
	s.Equal(new(big.Int).Add(initial, big.NewInt(50)).String(), final.String())
	s.Equal(uint64(1), s.pool.CurrentTurn())
	s.Zero(s.pool.TotalAssetsHeld().Sign())
	s.Zero(s.token.BalanceOf(poolAddr).Sign())
	for _, player := range s.players {
		s.False(s.pool.HasDeposited(player))
	}

	s.depositAll(s.pool, s.players)
	payout, err = s.pool.Redeem(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.players[1], payout.Recipient)
	s.Equal(uint64(2), s.pool.CurrentTurn())
}

func (s *PoolSuite) TestRotationIgnoresDepositOrder() {
	players := s.players[:3]
	p := s.newPool(3)
	s.registerAll(p, players)

	orders := [][]int{{2, 1, 0}, {0, 2, 1}, {1, 0, 2}, {2, 0, 1}, {0, 1, 2}, {1, 2, 0}, {2, 1, 0}}
	for round, order := range orders {
		for _, i := range order {
			s.fund(players[i])
			s.Require().NoError(p.Deposit(s.ctx, players[i]))
		}
		payout, err := p.Redeem(s.ctx)
		s.Require().NoError(err)
		s.Equal(players[round%len(players)], payout.Recipient, "round %d", round)
		s.Equal(int64(30), payout.Amount.Int64())
	}
	s.Equal(uint64(len(orders)), p.CurrentTurn())
}

func (s *PoolSuite) TestConcurrentDepositsAreSerialized() {
	s.registerAll(s.pool, s.players)
	for _, player := range s.players {
		s.fund(player)
	}

	var g errgroup.Group
	for _, player := range s.players {
		player := player
		g.Go(func() error { return s.pool.Deposit(s.ctx, player) })
		g.Go(func() error {
			_ = s.pool.TotalAssetsHeld()
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int64(50), s.pool.TotalAssetsHeld().Int64())
	s.Equal(int64(50), s.token.BalanceOf(poolAddr).Int64())
}

func (s *PoolSuite) TestConcurrentDoubleDepositOnlyOneWins() {
	s.registerAll(s.pool, s.players[:1])
	s.Require().NoError(s.token.Mint(s.players[0], big.NewInt(100)))
	s.Require().NoError(s.token.Approve(s.players[0], poolAddr, big.NewInt(100)))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.pool.Deposit(s.ctx, s.players[0]); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(int64(10), s.pool.TotalAssetsHeld().Int64())
}

func (s *PoolSuite) TestMetricsAndJournal() {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	journal := &memoryJournal{}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := s.newPool(2, WithMetrics(m), WithJournal(journal), WithClock(func() time.Time { return fixed }))
	players := s.players[:2]

	s.registerAll(p, players)
	s.depositAll(p, players)
	_, err := p.Redeem(s.ctx)
	s.Require().NoError(err)
	_, err = p.Redeem(s.ctx)
	s.Require().ErrorIs(err, ErrRoundIncomplete)

	kinds := make([]model.EventKind, 0, len(journal.events))
	for _, event := range journal.events {
		kinds = append(kinds, event.Kind)
	}
	s.Equal([]model.EventKind{
		model.EventRegistered, model.EventRegistered,
		model.EventDeposited, model.EventDeposited,
		model.EventRedeemed,
	}, kinds)
	redeemed := journal.events[4]
	s.Equal("20", redeemed.Amount)
	s.Equal(uint64(0), redeemed.Turn)
	s.Equal(players[0].Hex(), redeemed.Participant)
	s.Equal("2024-01-02T03:04:05Z", redeemed.Timestamp)
	s.Equal("vault", redeemed.Pool)

	s.Equal(2.0, testutil.ToFloat64(m.Registrations))
	s.Equal(2.0, testutil.ToFloat64(m.Deposits))
	s.Equal(1.0, testutil.ToFloat64(m.Redemptions))
	s.Equal(1.0, testutil.ToFloat64(m.CurrentTurn))
	s.Equal(1.0, testutil.ToFloat64(m.Failures.WithLabelValues("redeem", "round_incomplete")))
}

func (s *PoolSuite) TestJournalFailureDoesNotUndoOperation() {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := s.newPool(2, WithMetrics(m), WithJournal(&memoryJournal{err: errors.New("disk full")}))

	s.Require().NoError(p.Register(s.ctx, s.players[0]))
	s.True(p.IsRegistered(s.players[0]))
	s.Equal(1.0, testutil.ToFloat64(m.PersistFailures))
}

func TestRedeemTransferFailureLeavesState(t *testing.T) {
	ctx := context.Background()
	players := testPlayers(2)
	amount := big.NewInt(10)
	assets := &mockLedger{}
	assets.On("TransferFrom", mock.Anything, mock.Anything, amount).Return(nil)
	assets.On("TransferTo", mock.Anything, players[0], big.NewInt(20)).Return(ledger.ErrTransferRejected).Once()
	assets.On("TransferTo", mock.Anything, players[0], big.NewInt(20)).Return(nil).Once()

	p, err := New(Config{Asset: assetAddr, DepositAmount: amount, MaxParticipants: 2}, assets)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	for _, player := range players {
		if err := p.Register(ctx, player); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := p.Deposit(ctx, player); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	_, err = p.Redeem(ctx)
	if !errors.Is(err, ErrTransferFailed) || !errors.Is(err, ledger.ErrTransferRejected) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if p.CurrentTurn() != 0 {
		t.Fatalf("turn advanced after failed payout: %d", p.CurrentTurn())
	}
	if p.TotalAssetsHeld().Int64() != 20 {
		t.Fatalf("held changed after failed payout: %s", p.TotalAssetsHeld())
	}
	for _, player := range players {
		if !p.HasDeposited(player) {
			t.Fatalf("deposit record of %s cleared after failed payout", player.Hex())
		}
	}

	payout, err := p.Redeem(ctx)
	if err != nil {
		t.Fatalf("retry redeem: %v", err)
	}
	if payout.Recipient != players[0] || p.CurrentTurn() != 1 {
		t.Fatalf("unexpected payout %+v turn %d", payout, p.CurrentTurn())
	}
	assets.AssertExpectations(t)
}

func TestUnconfirmedTransfersAreCommitted(t *testing.T) {
	ctx := context.Background()
	players := testPlayers(2)
	amount := big.NewInt(10)
	pending := fmt.Errorf("wait transfer: deadline exceeded: %w", ledger.ErrTransferPending)
	assets := &mockLedger{}
	assets.On("TransferFrom", mock.Anything, players[0], amount).Return(pending).Once()
	assets.On("TransferFrom", mock.Anything, players[1], amount).Return(nil).Once()
	assets.On("TransferTo", mock.Anything, players[0], big.NewInt(20)).Return(pending).Once()

	reg := prometheus.NewRegistry()
	p, err := New(Config{Asset: assetAddr, DepositAmount: amount, MaxParticipants: 2}, assets,
		WithMetrics(metrics.New(reg)))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	for _, player := range players {
		if err := p.Register(ctx, player); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := p.Deposit(ctx, player); err != nil {
			t.Fatalf("deposit of %s: %v", player.Hex(), err)
		}
	}
	if !p.HasDeposited(players[0]) || p.TotalAssetsHeld().Int64() != 20 {
		t.Fatalf("unconfirmed deposit not counted: held %s", p.TotalAssetsHeld())
	}

	payout, err := p.Redeem(ctx)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if payout.Recipient != players[0] || p.CurrentTurn() != 1 || p.TotalAssetsHeld().Sign() != 0 {
		t.Fatalf("unconfirmed payout not committed: %+v turn %d", payout, p.CurrentTurn())
	}

	unconfirmed := testutil.ToFloat64(p.metrics.Unconfirmed.WithLabelValues(opDeposit)) +
		testutil.ToFloat64(p.metrics.Unconfirmed.WithLabelValues(opRedeem))
	if unconfirmed != 2 {
		t.Fatalf("unconfirmed transfers = %v, want 2", unconfirmed)
	}
	assets.AssertExpectations(t)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) TransferFrom(ctx context.Context, holder common.Address, amount *big.Int) error {
	return m.Called(ctx, holder, amount).Error(0)
}

func (m *mockLedger) TransferTo(ctx context.Context, recipient common.Address, amount *big.Int) error {
	return m.Called(ctx, recipient, amount).Error(0)
}

func (m *mockLedger) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	args := m.Called(ctx, holder)
	bal, _ := args.Get(0).(*big.Int)
	return bal, args.Error(1)
}

type memoryJournal struct {
	mu     sync.Mutex
	events []model.PoolEvent
	err    error
}

func (j *memoryJournal) PutEvents(_ context.Context, events []model.PoolEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, events...)
	return nil
}
