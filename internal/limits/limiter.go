// Package limits implements optional exposure caps for positions.
//
// Collateral is a one-time lock sized independently of later notional
// adjustments, so nothing in the ledger itself bounds how far a position can
// be levered. A Limiter lets a deployment cap the notional size of any single
// position and the ratio of notional size to locked collateral. Both caps are
// disabled when zero.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrSizeLimitExceeded is returned when a change would push a position's
	// notional size beyond MaxPositionSize.
	ErrSizeLimitExceeded = errors.New("limits: position size limit exceeded")

	// ErrLeverageLimitExceeded is returned when a change would push
	// size/collateral beyond MaxLeverage.
	ErrLeverageLimitExceeded = errors.New("limits: leverage limit exceeded")
)

// Limiter enforces per-position exposure caps.
type Limiter struct {
	// MaxPositionSize is the largest notional size any position may hold.
	MaxPositionSize decimal.Decimal

	// MaxLeverage is the largest allowed positionSize / collateralAmount.
	// A position with zero collateral has unbounded leverage once its
	// size is positive.
	MaxLeverage decimal.Decimal
}

// NewLimiter creates a limiter. Negative caps are treated as disabled.
func NewLimiter(maxPositionSize, maxLeverage decimal.Decimal) *Limiter {
	if maxPositionSize.IsNegative() {
		maxPositionSize = decimal.Zero
	}
	if maxLeverage.IsNegative() {
		maxLeverage = decimal.Zero
	}
	return &Limiter{
		MaxPositionSize: maxPositionSize,
		MaxLeverage:     maxLeverage,
	}
}

// Enabled reports whether any cap is active.
func (l *Limiter) Enabled() bool {
	return l != nil && (l.MaxPositionSize.IsPositive() || l.MaxLeverage.IsPositive())
}

// CheckLimit validates a prospective position state.
//
// Parameters:
//   - collateral: collateral locked after the change
//   - newSize: notional size after the change
//
// Returns nil if the state is within limits. A nil Limiter permits everything.
func (l *Limiter) CheckLimit(collateral, newSize decimal.Decimal) error {
	if !l.Enabled() {
		return nil
	}

	// 1. Absolute size cap.
	if l.MaxPositionSize.IsPositive() && newSize.GreaterThan(l.MaxPositionSize) {
		return ErrSizeLimitExceeded
	}

	// 2. Leverage cap: newSize <= collateral * MaxLeverage.
	if l.MaxLeverage.IsPositive() && newSize.IsPositive() {
		if newSize.GreaterThan(collateral.Mul(l.MaxLeverage)) {
			return ErrLeverageLimitExceeded
		}
	}

	return nil
}
