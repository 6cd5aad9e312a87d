// Package model defines the core domain types shared across the ledger.
// All amounts use shopspring/decimal — never float64 for money. Amounts are
// whole units of the collateral token; fractional values are rejected.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one owner's exposure record. The zero value is a closed
// position and is what absent owners read as.
type Position struct {
	Owner            string          `json:"owner"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	PositionSize     decimal.Decimal `json:"position_size"`
	IsLong           bool            `json:"is_long"` // meaningful only while PositionSize > 0
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsOpen reports whether the position carries exposure.
func (p Position) IsOpen() bool {
	return p.PositionSize.IsPositive()
}

// Closed returns the zero position for owner.
func Closed(owner string) Position {
	return Position{
		Owner:            owner,
		CollateralAmount: decimal.Zero,
		PositionSize:     decimal.Zero,
	}
}

// Operation names, used in events, logs and metric labels.
const (
	OpDeposit  = "deposit"
	OpIncrease = "increase"
	OpReduce   = "reduce"
	OpWithdraw = "withdraw"
	OpSetPrice = "set_price"
)

// PositionEvent is an immutable journal record of one successful ledger
// mutation. Once created, these are never modified or deleted.
type PositionEvent struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"` // caller for set_price
	Op        string          `json:"op"`
	Amount    decimal.Decimal `json:"amount"` // op argument; payout for withdraw
	Size      decimal.Decimal `json:"size"`   // deposit only
	Position  Position        `json:"position"`
	Price     decimal.Decimal `json:"price"`    // synthetic asset price at the time
	Retained  decimal.Decimal `json:"retained"` // collateral kept in custody on withdraw
	Timestamp time.Time       `json:"timestamp"`
}

// IsWholeAmount reports whether d is a non-negative integer.
func IsWholeAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.IsInteger()
}
