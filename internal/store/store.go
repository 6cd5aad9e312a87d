// Package store defines the persistence interface for the position ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/model"
)

// ErrNotFound is returned when a record does not exist. GetPosition never
// returns it; absent owners read as the closed position.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Positions ---

	// GetPosition returns the owner's position, or the closed position if
	// the owner has never deposited.
	GetPosition(ctx context.Context, owner string) (model.Position, error)

	// GetPositionForUpdate is GetPosition read from the source of truth,
	// bypassing any cache. Read-modify-write paths must use it.
	GetPositionForUpdate(ctx context.Context, owner string) (model.Position, error)

	// PutPosition replaces the owner's position record.
	PutPosition(ctx context.Context, p model.Position) error

	// ListPositions returns every stored position, open or closed.
	ListPositions(ctx context.Context) ([]model.Position, error)

	// --- Global price ---

	// GetPrice returns the synthetic asset price (zero if never set).
	GetPrice(ctx context.Context) (decimal.Decimal, error)

	// SetPrice replaces the synthetic asset price.
	SetPrice(ctx context.Context, price decimal.Decimal) error

	// --- Immutable journal ---

	// AppendEvent appends an immutable position event.
	AppendEvent(ctx context.Context, e *model.PositionEvent) error

	// ListEvents returns an owner's events in append order.
	ListEvents(ctx context.Context, owner string) ([]model.PositionEvent, error)
}
