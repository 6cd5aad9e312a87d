package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/model"
)

func TestMemoryStore_AbsentOwnerIsClosed(t *testing.T) {
	s := NewMemoryStore()

	p, err := s.GetPosition(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Owner != "nobody" {
		t.Errorf("expected owner=nobody, got %q", p.Owner)
	}
	if p.IsOpen() || !p.CollateralAmount.IsZero() || p.IsLong {
		t.Errorf("expected closed position, got %+v", p)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.PutPosition(ctx, model.Position{Owner: "alice", CollateralAmount: decimal.NewFromInt(10), PositionSize: decimal.NewFromInt(5), IsLong: true})
	s.PutPosition(ctx, model.Position{Owner: "alice", CollateralAmount: decimal.NewFromInt(3), PositionSize: decimal.NewFromInt(1)})

	p, _ := s.GetPosition(ctx, "alice")
	if !p.CollateralAmount.Equal(decimal.NewFromInt(3)) || p.IsLong {
		t.Errorf("expected last write to win, got %+v", p)
	}

	all, _ := s.ListPositions(ctx)
	if len(all) != 1 {
		t.Errorf("expected 1 stored position, got %d", len(all))
	}
}

func TestMemoryStore_Price(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	price, _ := s.GetPrice(ctx)
	if !price.IsZero() {
		t.Errorf("expected unset price to be 0, got %s", price)
	}

	s.SetPrice(ctx, decimal.NewFromInt(1200))
	price, _ = s.GetPrice(ctx)
	if !price.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("expected 1200, got %s", price)
	}
}

func TestMemoryStore_EventsFilteredByOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	s.AppendEvent(ctx, &model.PositionEvent{ID: "1", Owner: "alice", Op: model.OpDeposit, Timestamp: now})
	s.AppendEvent(ctx, &model.PositionEvent{ID: "2", Owner: "bob", Op: model.OpDeposit, Timestamp: now})
	s.AppendEvent(ctx, &model.PositionEvent{ID: "3", Owner: "alice", Op: model.OpWithdraw, Timestamp: now})

	events, err := s.ListEvents(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "1" || events[1].ID != "3" {
		t.Errorf("expected append order [1 3], got [%s %s]", events[0].ID, events[1].ID)
	}
}
