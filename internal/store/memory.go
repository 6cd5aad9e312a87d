package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]model.Position
	price     decimal.Decimal
	events    []model.PositionEvent
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]model.Position),
		price:     decimal.Zero,
	}
}

func (s *MemoryStore) GetPosition(_ context.Context, owner string) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[owner]
	if !ok {
		return model.Closed(owner), nil
	}
	return p, nil
}

func (s *MemoryStore) GetPositionForUpdate(ctx context.Context, owner string) (model.Position, error) {
	return s.GetPosition(ctx, owner)
}

func (s *MemoryStore) PutPosition(_ context.Context, p model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[p.Owner] = p
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Owner < positions[j].Owner })
	return positions, nil
}

func (s *MemoryStore) GetPrice(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price, nil
}

func (s *MemoryStore) SetPrice(_ context.Context, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *model.PositionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, owner string) ([]model.PositionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PositionEvent
	for _, e := range s.events {
		if e.Owner == owner {
			result = append(result, e)
		}
	}
	return result, nil
}
