package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pasanaco/internal/ledger"
	"pasanaco/internal/model"
)

// Snapshot returns the full pool state in persistable form. Deposited
// participants are listed in payout order.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() model.PoolSnapshot {
	participants := make([]string, 0, len(p.participants))
	deposited := make([]string, 0, len(p.deposited))
	for _, participant := range p.participants {
		participants = append(participants, participant.Hex())
		if _, ok := p.deposited[participant]; ok {
			deposited = append(deposited, participant.Hex())
		}
	}
	return model.PoolSnapshot{
		Name:            p.cfg.Name,
		Version:         p.cfg.Version,
		Asset:           p.cfg.Asset.Hex(),
		DepositAmount:   p.cfg.DepositAmount.String(),
		MaxParticipants: p.cfg.MaxParticipants,
		Participants:    participants,
		Deposited:       deposited,
		CurrentTurn:     p.currentTurn,
		TotalAssetsHeld: p.held.String(),
		UpdatedAt:       p.now().UTC().Format(time.RFC3339Nano),
	}
}

// ConfigFromSnapshot extracts the immutable configuration recorded in snap.
func ConfigFromSnapshot(snap model.PoolSnapshot) (Config, error) {
	if !common.IsHexAddress(snap.Asset) {
		return Config{}, fmt.Errorf("%w: asset %q", ErrInvalidSnapshot, snap.Asset)
	}
	amount, ok := new(big.Int).SetString(snap.DepositAmount, 10)
	if !ok {
		return Config{}, fmt.Errorf("%w: deposit amount %q", ErrInvalidSnapshot, snap.DepositAmount)
	}
	cfg := Config{
		Asset:           common.HexToAddress(snap.Asset),
		DepositAmount:   amount,
		MaxParticipants: snap.MaxParticipants,
		Name:            snap.Name,
		Version:         snap.Version,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return cfg, nil
}

// CheckConfig reports whether snap was taken from a pool configured as cfg.
// Name and version are descriptive and not compared.
func CheckConfig(cfg Config, snap model.PoolSnapshot) error {
	stored, err := ConfigFromSnapshot(snap)
	if err != nil {
		return err
	}
	if stored.Asset != cfg.Asset {
		return fmt.Errorf("stored pool uses asset %s, configured %s", stored.Asset.Hex(), cfg.Asset.Hex())
	}
	if cfg.DepositAmount == nil || stored.DepositAmount.Cmp(cfg.DepositAmount) != 0 {
		return fmt.Errorf("stored pool deposit amount %s, configured %v", stored.DepositAmount, cfg.DepositAmount)
	}
	if stored.MaxParticipants != cfg.MaxParticipants {
		return fmt.Errorf("stored pool capacity %d, configured %d", stored.MaxParticipants, cfg.MaxParticipants)
	}
	return nil
}

// Restore rebuilds a pool from snap, rejecting any snapshot that breaks the
// pool invariants.
func Restore(snap model.PoolSnapshot, assets ledger.AssetLedger, opts ...Option) (*Pool, error) {
	cfg, err := ConfigFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	p, err := New(cfg, assets, opts...)
	if err != nil {
		return nil, err
	}

	if len(snap.Participants) > cfg.MaxParticipants {
		return nil, fmt.Errorf("%w: %d participants exceed capacity %d", ErrInvalidSnapshot, len(snap.Participants), cfg.MaxParticipants)
	}
	for _, raw := range snap.Participants {
		participant, err := parseParticipant(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := p.index[participant]; ok {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidSnapshot, participant.Hex())
		}
		p.index[participant] = len(p.participants)
		p.participants = append(p.participants, participant)
	}

	for _, raw := range snap.Deposited {
		participant, err := parseParticipant(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := p.index[participant]; !ok {
			return nil, fmt.Errorf("%w: deposit from unregistered %s", ErrInvalidSnapshot, participant.Hex())
		}
		if _, ok := p.deposited[participant]; ok {
			return nil, fmt.Errorf("%w: duplicate deposit from %s", ErrInvalidSnapshot, participant.Hex())
		}
		p.deposited[participant] = struct{}{}
	}

	held, ok := new(big.Int).SetString(snap.TotalAssetsHeld, 10)
	if !ok {
		return nil, fmt.Errorf("%w: total assets held %q", ErrInvalidSnapshot, snap.TotalAssetsHeld)
	}
	expected := new(big.Int).Mul(cfg.DepositAmount, big.NewInt(int64(len(p.deposited))))
	if held.Cmp(expected) != 0 {
		return nil, fmt.Errorf("%w: held %s, expected %s for %d deposits", ErrInvalidSnapshot, held, expected, len(p.deposited))
	}
	p.held = held
	p.currentTurn = snap.CurrentTurn

	p.metrics.SetState(len(p.participants), p.currentTurn, p.held)
	return p, nil
}

func parseParticipant(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: participant %q", ErrInvalidSnapshot, raw)
	}
	participant := common.HexToAddress(raw)
	if participant == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero participant", ErrInvalidSnapshot)
	}
	return participant, nil
}
