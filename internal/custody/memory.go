package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryCustodian is an in-memory token ledger with approve/transferFrom
// semantics. Used for testing and development.
type MemoryCustodian struct {
	mu         sync.Mutex
	account    string
	balances   map[string]decimal.Decimal
	allowances map[string]decimal.Decimal // owner → amount approved for custody
}

// NewMemoryCustodian creates a custodian whose custody account is named
// account. An empty name falls back to DefaultAccount.
func NewMemoryCustodian(account string) *MemoryCustodian {
	if account == "" {
		account = DefaultAccount
	}
	return &MemoryCustodian{
		account:    account,
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]decimal.Decimal),
	}
}

// Account returns the custody account name.
func (c *MemoryCustodian) Account() string { return c.account }

func (c *MemoryCustodian) TransferIn(_ context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.allowances[owner].LessThan(amount) {
		return fmt.Errorf("transfer in %s from %s: %w", amount, owner, ErrInsufficientAllowance)
	}
	if c.balances[owner].LessThan(amount) {
		return fmt.Errorf("transfer in %s from %s: %w", amount, owner, ErrInsufficientBalance)
	}

	c.allowances[owner] = c.allowances[owner].Sub(amount)
	c.balances[owner] = c.balances[owner].Sub(amount)
	c.balances[c.account] = c.balances[c.account].Add(amount)
	return nil
}

func (c *MemoryCustodian) TransferOut(_ context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balances[c.account].LessThan(amount) {
		return fmt.Errorf("transfer out %s to %s: %w", amount, owner, ErrInsufficientBalance)
	}

	c.balances[c.account] = c.balances[c.account].Sub(amount)
	c.balances[owner] = c.balances[owner].Add(amount)
	return nil
}

func (c *MemoryCustodian) Reclaim(_ context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balances[owner].LessThan(amount) {
		return fmt.Errorf("reclaim %s from %s: %w", amount, owner, ErrInsufficientBalance)
	}

	c.balances[owner] = c.balances[owner].Sub(amount)
	c.balances[c.account] = c.balances[c.account].Add(amount)
	return nil
}

func (c *MemoryCustodian) BalanceOf(_ context.Context, account string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[account], nil
}

// Mint credits account with newly created collateral.
func (c *MemoryCustodian) Mint(_ context.Context, account string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] = c.balances[account].Add(amount)
	return nil
}

// Approve sets the amount the custody account may pull from owner.
// It replaces any previous approval.
func (c *MemoryCustodian) Approve(_ context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowances[owner] = amount
	return nil
}

func (c *MemoryCustodian) Allowance(_ context.Context, owner string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowances[owner], nil
}
