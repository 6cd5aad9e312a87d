package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/model"
)

func newCachedStore(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })

	primary := NewMemoryStore()
	return NewCachedStore(primary, rdb, time.Minute), primary, mr
}

func openPosition(owner string) model.Position {
	return model.Position{
		Owner:            owner,
		CollateralAmount: decimal.NewFromInt(1000),
		PositionSize:     decimal.NewFromInt(600),
		IsLong:           true,
	}
}

func TestCachedStore_PutInvalidates(t *testing.T) {
	cs, _, mr := newCachedStore(t)
	ctx := context.Background()

	cs.PutPosition(ctx, openPosition("alice"))
	if _, err := cs.GetPosition(ctx, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists(positionKey("alice")) {
		t.Fatal("expected read to populate the cache")
	}

	if err := cs.PutPosition(ctx, model.Closed("alice")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists(positionKey("alice")) {
		t.Error("expected write to drop the cached position")
	}

	p, _ := cs.GetPosition(ctx, "alice")
	if p.IsOpen() {
		t.Errorf("expected closed position after invalidation, got %+v", p)
	}
}

func TestCachedStore_ForUpdateBypassesStaleCache(t *testing.T) {
	cs, primary, _ := newCachedStore(t)
	ctx := context.Background()

	cs.PutPosition(ctx, openPosition("alice"))
	cs.GetPosition(ctx, "alice")

	// A reader that re-caches after the closing write leaves a stale entry.
	primary.PutPosition(ctx, model.Closed("alice"))

	cached, _ := cs.GetPosition(ctx, "alice")
	if !cached.IsOpen() {
		t.Fatalf("expected the cached read to still be stale, got %+v", cached)
	}

	p, err := cs.GetPositionForUpdate(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsOpen() || !p.CollateralAmount.IsZero() {
		t.Errorf("expected the primary's closed position, got %+v", p)
	}
}

func TestCachedStore_InvalidationFailureDoesNotFailWrite(t *testing.T) {
	cs, primary, mr := newCachedStore(t)
	ctx := context.Background()
	mr.Close()

	if err := cs.PutPosition(ctx, openPosition("alice")); err != nil {
		t.Fatalf("committed write must not fail on cache errors, got %v", err)
	}
	p, _ := primary.GetPosition(ctx, "alice")
	if !p.IsOpen() {
		t.Errorf("expected primary to hold the write, got %+v", p)
	}
}

func TestCachedStore_Price(t *testing.T) {
	cs, _, mr := newCachedStore(t)
	ctx := context.Background()

	cs.SetPrice(ctx, decimal.NewFromInt(1200))
	price, err := cs.GetPrice(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("expected 1200, got %s", price)
	}
	if v, _ := mr.Get(priceKey); v != "1200" {
		t.Errorf("expected cached price 1200, got %q", v)
	}

	cs.SetPrice(ctx, decimal.NewFromInt(1300))
	if mr.Exists(priceKey) {
		t.Error("expected price write to drop the cached price")
	}
	price, _ = cs.GetPrice(ctx)
	if !price.Equal(decimal.NewFromInt(1300)) {
		t.Errorf("expected 1300, got %s", price)
	}
}
