// Package pool implements the rotating savings pool: a fixed group deposits a
// fixed amount each round and the whole pot goes to one participant per round,
// in registration order, cycling forever.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pasanaco/internal/ledger"
	"pasanaco/internal/metrics"
	"pasanaco/internal/model"
	"pasanaco/internal/storage"
)

// DefaultMaxParticipants is the group size of the original deployment.
const DefaultMaxParticipants = 5

const (
	opRegister = "register"
	opDeposit  = "deposit"
	opRedeem   = "redeem"
)

// Config is the immutable configuration of a pool.
type Config struct {
	Asset           common.Address
	DepositAmount   *big.Int
	MaxParticipants int
	Name            string
	Version         string
}

func (c Config) validate() error {
	if c.DepositAmount == nil || c.DepositAmount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}
	if c.MaxParticipants <= 0 {
		return fmt.Errorf("max participants must be positive")
	}
	return nil
}

// Payout describes a completed redemption.
type Payout struct {
	Turn      uint64
	Recipient common.Address
	Amount    *big.Int
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithJournal sends an event for every committed mutation to j.
func WithJournal(j storage.Journal) Option {
	return func(p *Pool) { p.journal = j }
}

// WithStateStore saves a snapshot after every committed mutation.
func WithStateStore(s StateStore) Option {
	return func(p *Pool) { p.state = s }
}

// WithClock overrides the time source used for event timestamps.
// Operation latency metrics always use the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// Pool is the rotating savings pool. Mutations are serialized by a single
// lock held across the ledger transfer, so no partial state is observable.
type Pool struct {
	cfg     Config
	ledger  ledger.AssetLedger
	logger  *zap.Logger
	metrics *metrics.Metrics
	journal storage.Journal
	state   StateStore
	now     func() time.Time

	mu           sync.RWMutex
	participants []common.Address
	index        map[common.Address]int
	deposited    map[common.Address]struct{}
	currentTurn  uint64
	held         *big.Int
}

// New creates an empty pool in its initial open round.
func New(cfg Config, assets ledger.AssetLedger, opts ...Option) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if assets == nil {
		return nil, fmt.Errorf("asset ledger is nil")
	}

	cfg.DepositAmount = new(big.Int).Set(cfg.DepositAmount)
	p := &Pool{
		cfg:          cfg,
		ledger:       assets,
		logger:       zap.NewNop(),
		now:          time.Now,
		participants: make([]common.Address, 0, cfg.MaxParticipants),
		index:        make(map[common.Address]int, cfg.MaxParticipants),
		deposited:    make(map[common.Address]struct{}, cfg.MaxParticipants),
		held:         new(big.Int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Register appends participant to the payout rotation.
func (p *Pool) Register(ctx context.Context, participant common.Address) error {
	defer p.metrics.ObserveOperation(opRegister, time.Now())

	p.mu.Lock()
	defer p.mu.Unlock()

	if participant == (common.Address{}) {
		return p.reject(opRegister, participant, ErrInvalidParticipant)
	}
	if _, ok := p.index[participant]; ok {
		return p.reject(opRegister, participant, ErrAlreadyRegistered)
	}
	if len(p.participants) >= p.cfg.MaxParticipants {
		return p.reject(opRegister, participant, ErrCapacityExceeded)
	}

	p.index[participant] = len(p.participants)
	p.participants = append(p.participants, participant)

	p.logger.Info("participant registered",
		zap.String("participant", participant.Hex()),
		zap.Int("position", len(p.participants)-1),
		zap.Int("participants", len(p.participants)),
	)
	p.metrics.RecordRegistration(len(p.participants))
	p.commit(ctx, p.newEvent(model.EventRegistered, participant, nil))
	return nil
}

// Deposit pulls the round contribution from participant into the pool. The
// participant must have authorized the transfer on the ledger beforehand.
func (p *Pool) Deposit(ctx context.Context, participant common.Address) error {
	defer p.metrics.ObserveOperation(opDeposit, time.Now())

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[participant]; !ok {
		return p.reject(opDeposit, participant, ErrNotRegistered)
	}
	if _, ok := p.deposited[participant]; ok {
		return p.reject(opDeposit, participant, ErrAlreadyDepositedThisRound)
	}

	amount := new(big.Int).Set(p.cfg.DepositAmount)
	if err := p.ledger.TransferFrom(ctx, participant, amount); err != nil {
		if !errors.Is(err, ledger.ErrTransferPending) {
			return p.reject(opDeposit, participant, &TransferError{Op: opDeposit, Account: participant, Amount: amount, Err: err})
		}
		p.unconfirmed(opDeposit, participant, amount, err)
	}

	p.deposited[participant] = struct{}{}
	p.held.Add(p.held, amount)

	p.logger.Info("deposit received",
		zap.String("participant", participant.Hex()),
		zap.String("amount", amount.String()),
		zap.Int("deposited", len(p.deposited)),
		zap.Int("participants", len(p.participants)),
		zap.Uint64("turn", p.currentTurn),
	)
	p.metrics.RecordDeposit(p.held)
	p.commit(ctx, p.newEvent(model.EventDeposited, participant, amount))
	return nil
}

// Redeem pays the whole pot to the participant on turn, then reopens the
// round. Anyone may call it once every participant has deposited.
func (p *Pool) Redeem(ctx context.Context) (Payout, error) {
	defer p.metrics.ObserveOperation(opRedeem, time.Now())

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.participants) == 0 {
		return Payout{}, p.reject(opRedeem, common.Address{}, ErrEmptyPool)
	}
	if len(p.deposited) != len(p.participants) {
		return Payout{}, p.reject(opRedeem, common.Address{},
			fmt.Errorf("%w: %d of %d deposited", ErrRoundIncomplete, len(p.deposited), len(p.participants)))
	}

	recipient := p.onTurnLocked()
	amount := new(big.Int).Set(p.held)
	if err := p.ledger.TransferTo(ctx, recipient, amount); err != nil {
		if !errors.Is(err, ledger.ErrTransferPending) {
			return Payout{}, p.reject(opRedeem, recipient, &TransferError{Op: opRedeem, Account: recipient, Amount: amount, Err: err})
		}
		p.unconfirmed(opRedeem, recipient, amount, err)
	}

	payout := Payout{Turn: p.currentTurn, Recipient: recipient, Amount: amount}
	p.held.SetInt64(0)
	p.deposited = make(map[common.Address]struct{}, p.cfg.MaxParticipants)
	p.currentTurn++

	p.logger.Info("round redeemed",
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("paid_turn", payout.Turn),
		zap.Uint64("next_turn", p.currentTurn),
	)
	p.metrics.RecordRedemption(amount, p.currentTurn)
	event := p.newEvent(model.EventRedeemed, recipient, amount)
	event.Turn = payout.Turn
	p.commit(ctx, event)
	return payout, nil
}

// Asset returns the pooled asset reference.
func (p *Pool) Asset() common.Address { return p.cfg.Asset }

// Name returns the descriptive pool name.
func (p *Pool) Name() string { return p.cfg.Name }

// Version returns the descriptive pool version.
func (p *Pool) Version() string { return p.cfg.Version }

// DepositAmount returns the fixed per-round contribution.
func (p *Pool) DepositAmount() *big.Int { return new(big.Int).Set(p.cfg.DepositAmount) }

// MaxParticipants returns the pool capacity.
func (p *Pool) MaxParticipants() int { return p.cfg.MaxParticipants }

// MaxDepositAmount is DepositAmount * MaxParticipants, the pot of a full pool.
func (p *Pool) MaxDepositAmount() *big.Int {
	return new(big.Int).Mul(p.cfg.DepositAmount, big.NewInt(int64(p.cfg.MaxParticipants)))
}

// CurrentTurn returns the number of completed payouts.
func (p *Pool) CurrentTurn() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentTurn
}

// TotalAssetsHeld returns the funds deposited in the open round.
func (p *Pool) TotalAssetsHeld() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.held)
}

// ParticipantOnTurn returns the recipient of the open round.
func (p *Pool) ParticipantOnTurn() (common.Address, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.participants) == 0 {
		return common.Address{}, ErrEmptyPool
	}
	return p.onTurnLocked(), nil
}

// Participants returns the registered participants in payout order.
func (p *Pool) Participants() []common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]common.Address, len(p.participants))
	copy(out, p.participants)
	return out
}

// IsRegistered reports whether participant is in the rotation.
func (p *Pool) IsRegistered(participant common.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[participant]
	return ok
}

// HasDeposited reports whether participant deposited in the open round.
func (p *Pool) HasDeposited(participant common.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.deposited[participant]
	return ok
}

// BalanceOf queries the ledger balance of holder. It does not touch pool state.
func (p *Pool) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return p.ledger.BalanceOf(ctx, holder)
}

func (p *Pool) onTurnLocked() common.Address {
	return p.participants[p.currentTurn%uint64(len(p.participants))]
}

func (p *Pool) reject(op string, participant common.Address, err error) error {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	if participant != (common.Address{}) {
		fields = append(fields, zap.String("participant", participant.Hex()))
	}
	p.logger.Warn("operation rejected", fields...)
	p.metrics.IncrementFailure(op, reason(err))
	return err
}

// unconfirmed records a transfer that was sent but not confirmed. The pool
// commits it: the transfer passed the ledger's checks and may already be mined.
func (p *Pool) unconfirmed(op string, account common.Address, amount *big.Int, err error) {
	p.logger.Warn("transfer unconfirmed, committing",
		zap.String("op", op),
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
		zap.Error(err),
	)
	p.metrics.IncrementUnconfirmed(op)
}

func (p *Pool) newEvent(kind model.EventKind, participant common.Address, amount *big.Int) model.PoolEvent {
	event := model.PoolEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		Pool:        p.cfg.Name,
		Asset:       p.cfg.Asset.Hex(),
		Participant: participant.Hex(),
		Turn:        p.currentTurn,
		Timestamp:   p.now().UTC().Format(time.RFC3339Nano),
	}
	if amount != nil {
		event.Amount = amount.String()
	}
	return event
}

// commit records a committed mutation. The ledger side effect already
// happened, so persistence failures are logged rather than returned.
func (p *Pool) commit(ctx context.Context, event model.PoolEvent) {
	if p.journal != nil {
		if err := p.journal.PutEvents(ctx, []model.PoolEvent{event}); err != nil {
			p.logger.Error("journal write failed", zap.String("event_id", event.ID), zap.String("kind", string(event.Kind)), zap.Error(err))
			p.metrics.IncrementPersistFailure()
		}
	}
	if p.state != nil {
		if err := p.state.Save(ctx, p.snapshotLocked()); err != nil {
			p.logger.Error("state save failed", zap.Uint64("turn", p.currentTurn), zap.Error(err))
			p.metrics.IncrementPersistFailure()
		}
	}
}
