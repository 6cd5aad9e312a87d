// Package custody defines the Collateral Custodian contract the position
// ledger consumes, plus reference implementations backed by memory and
// PostgreSQL.
//
// The custodian owns the fungible collateral balances. The ledger never
// moves value itself; it only asks the custodian to pull collateral from an
// owner into the custody account (TransferIn) or to push it back out
// (TransferOut). Both calls are all-or-nothing.
package custody

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when the debited account holds
	// less than the requested amount.
	ErrInsufficientBalance = errors.New("custody: insufficient balance")

	// ErrInsufficientAllowance is returned when the owner has not approved
	// the custody account for at least the requested amount.
	ErrInsufficientAllowance = errors.New("custody: insufficient allowance")

	// ErrInvalidAmount is returned for negative or fractional amounts.
	ErrInvalidAmount = errors.New("custody: invalid amount")
)

// DefaultAccount is the custody account name used when none is configured.
const DefaultAccount = "ledger"

// Custodian moves collateral between owners and the ledger's custody account.
type Custodian interface {
	// TransferIn moves amount from owner into custody.
	TransferIn(ctx context.Context, owner string, amount decimal.Decimal) error

	// TransferOut moves amount from custody to owner.
	TransferOut(ctx context.Context, owner string, amount decimal.Decimal) error

	// Reclaim moves amount from owner back into custody without consuming
	// an allowance. It only reverses a TransferOut the ledger could not
	// commit.
	Reclaim(ctx context.Context, owner string, amount decimal.Decimal) error

	// BalanceOf returns the balance held by account.
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
}

// Faucet is implemented by custodians that can create balances and record
// approvals directly. Only development deployments expose it.
type Faucet interface {
	Mint(ctx context.Context, account string, amount decimal.Decimal) error
	Approve(ctx context.Context, owner string, amount decimal.Decimal) error
	Allowance(ctx context.Context, owner string) (decimal.Decimal, error)
}

func validAmount(amount decimal.Decimal) bool {
	return !amount.IsNegative() && amount.IsInteger()
}
