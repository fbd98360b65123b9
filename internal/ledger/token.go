package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"pasanaco/internal/model"
)

// Token is an in-memory fungible token with ERC20 balance and allowance rules.
type Token struct {
	address  common.Address
	name     string
	symbol   string
	decimals uint8

	mu         sync.RWMutex
	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewToken creates an empty token.
func NewToken(address common.Address, name, symbol string, decimals uint8) *Token {
	return &Token{
		address:    address,
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		supply:     new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Address returns the token identifier.
func (t *Token) Address() common.Address { return t.address }

// Meta returns token metadata.
func (t *Token) Meta() model.TokenMeta {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return model.TokenMeta{
		Address:     t.address.Hex(),
		Decimals:    t.decimals,
		Symbol:      t.symbol,
		Name:        t.name,
		TotalSupply: t.supply.String(),
	}
}

// Mint creates amount new units owned by to.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("mint to zero address: %w", ErrTransferRejected)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amount)
	t.supply.Add(t.supply, amount)
	return nil
}

// Approve sets the amount spender may pull from owner, replacing any previous value.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		t.allowances[owner] = byOwner
	}
	byOwner[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the remaining amount spender may pull from owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if allowed, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(allowed)
	}
	return new(big.Int)
}

// BalanceOf returns the balance of holder.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.supply)
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to zero address: %w", ErrTransferRejected)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balanceLocked(from).Cmp(amount) < 0 {
		return fmt.Errorf("%s holds less than %s: %w", from.Hex(), amount, ErrInsufficientBalance)
	}
	t.debit(from, amount)
	t.credit(to, amount)
	return nil
}

// TransferFrom moves amount from from to to, spending spender's allowance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to zero address: %w", ErrTransferRejected)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := t.allowances[from][spender]
	if allowed == nil || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%s allowance for %s below %s: %w", from.Hex(), spender.Hex(), amount, ErrNotAuthorized)
	}
	if t.balanceLocked(from).Cmp(amount) < 0 {
		return fmt.Errorf("%s holds less than %s: %w", from.Hex(), amount, ErrInsufficientBalance)
	}
	allowed.Sub(allowed, amount)
	t.debit(from, amount)
	t.credit(to, amount)
	return nil
}

// Account binds the token to the pool account, yielding an AssetLedger.
func (t *Token) Account(pool common.Address) *Account {
	return &Account{token: t, pool: pool}
}

func (t *Token) balanceLocked(holder common.Address) *big.Int {
	if bal, ok := t.balances[holder]; ok {
		return bal
	}
	return new(big.Int)
}

func (t *Token) credit(holder common.Address, amount *big.Int) {
	bal, ok := t.balances[holder]
	if !ok {
		bal = new(big.Int)
		t.balances[holder] = bal
	}
	bal.Add(bal, amount)
}

func (t *Token) debit(holder common.Address, amount *big.Int) {
	bal := t.balanceLocked(holder)
	t.balances[holder] = bal.Sub(bal, amount)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid amount %v: %w", amount, ErrTransferRejected)
	}
	return nil
}

// Account is a Token viewed from the pool account. It implements AssetLedger
// and Faucet.
type Account struct {
	token *Token
	pool  common.Address
}

// Address returns the pool account.
func (a *Account) Address() common.Address { return a.pool }

// Token returns the underlying token.
func (a *Account) Token() *Token { return a.token }

func (a *Account) TransferFrom(ctx context.Context, holder common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.token.TransferFrom(a.pool, holder, a.pool, amount)
}

func (a *Account) TransferTo(ctx context.Context, recipient common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.token.Transfer(a.pool, recipient, amount)
}

func (a *Account) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	return a.token.BalanceOf(holder), nil
}

// Mint credits to with freshly minted units.
func (a *Account) Mint(_ context.Context, to common.Address, amount *big.Int) error {
	return a.token.Mint(to, amount)
}

// Approve lets the pool account pull amount from owner.
func (a *Account) Approve(_ context.Context, owner common.Address, amount *big.Int) error {
	return a.token.Approve(owner, a.pool, amount)
}
