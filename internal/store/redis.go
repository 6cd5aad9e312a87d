package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) PutPosition(ctx context.Context, p model.Position) error {
	if err := s.primary.PutPosition(ctx, p); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.invalidate(ctx, positionKey(p.Owner))
	return nil
}

func (s *CachedStore) SetPrice(ctx context.Context, price decimal.Decimal) error {
	if err := s.primary.SetPrice(ctx, price); err != nil {
		return err
	}
	s.invalidate(ctx, priceKey)
	return nil
}

func (s *CachedStore) AppendEvent(ctx context.Context, e *model.PositionEvent) error {
	return s.primary.AppendEvent(ctx, e)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPosition(ctx context.Context, owner string) (model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(owner)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPosition(ctx, owner)
	if err != nil {
		return model.Position{}, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(owner), data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) GetPrice(ctx context.Context) (decimal.Decimal, error) {
	if v, err := s.rdb.Get(ctx, priceKey).Result(); err == nil {
		if price, err := decimal.NewFromString(v); err == nil {
			return price, nil
		}
	}

	price, err := s.primary.GetPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	s.rdb.Set(ctx, priceKey, price.String(), s.ttl)
	return price, nil
}

// --- Passthrough (not cached) ---

// GetPositionForUpdate always reads the primary. A cached copy may lag a
// committed write by up to the TTL, so it must never feed a mutation.
func (s *CachedStore) GetPositionForUpdate(ctx context.Context, owner string) (model.Position, error) {
	return s.primary.GetPositionForUpdate(ctx, owner)
}

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListPositions(ctx)
}

func (s *CachedStore) ListEvents(ctx context.Context, owner string) ([]model.PositionEvent, error) {
	return s.primary.ListEvents(ctx, owner)
}

// --- Cache helpers ---

// invalidate drops key. The primary write has already committed, so a
// failure is logged rather than returned; the entry expires with its TTL.
func (s *CachedStore) invalidate(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		slog.Warn("cache invalidation failed", "key", key, "ttl", s.ttl.String(), "err", err)
	}
}

const priceKey = "ledger:synthetic_asset_price"

func positionKey(owner string) string { return fmt.Sprintf("position:%s", owner) }
