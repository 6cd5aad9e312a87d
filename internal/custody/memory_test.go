package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func n(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

func TestTransferIn_RequiresAllowance(t *testing.T) {
	c := NewMemoryCustodian("")
	ctx := context.Background()
	c.Mint(ctx, "alice", n(1000))

	err := c.TransferIn(ctx, "alice", n(100))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	bal, _ := c.BalanceOf(ctx, "alice")
	if !bal.Equal(n(1000)) {
		t.Errorf("failed transfer must not move funds, balance=%s", bal)
	}
}

func TestTransferIn_RequiresBalance(t *testing.T) {
	c := NewMemoryCustodian("")
	ctx := context.Background()
	c.Mint(ctx, "alice", n(50))
	c.Approve(ctx, "alice", n(100))

	err := c.TransferIn(ctx, "alice", n(100))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	allowance, _ := c.Allowance(ctx, "alice")
	if !allowance.Equal(n(100)) {
		t.Errorf("failed transfer must not consume allowance, got %s", allowance)
	}
}

func TestTransferIn_MovesToCustody(t *testing.T) {
	c := NewMemoryCustodian("vault")
	ctx := context.Background()
	c.Mint(ctx, "alice", n(1000))
	c.Approve(ctx, "alice", n(1000))

	if err := c.TransferIn(ctx, "alice", n(400)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alice, _ := c.BalanceOf(ctx, "alice")
	vault, _ := c.BalanceOf(ctx, "vault")
	allowance, _ := c.Allowance(ctx, "alice")

	if !alice.Equal(n(600)) {
		t.Errorf("expected alice=600, got %s", alice)
	}
	if !vault.Equal(n(400)) {
		t.Errorf("expected vault=400, got %s", vault)
	}
	if !allowance.Equal(n(600)) {
		t.Errorf("expected remaining allowance=600, got %s", allowance)
	}
}

func TestTransferOut_LimitedByCustodyBalance(t *testing.T) {
	c := NewMemoryCustodian("")
	ctx := context.Background()
	c.Mint(ctx, c.Account(), n(10))

	if err := c.TransferOut(ctx, "bob", n(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := c.TransferOut(ctx, "bob", n(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bob, _ := c.BalanceOf(ctx, "bob")
	if !bob.Equal(n(10)) {
		t.Errorf("expected bob=10, got %s", bob)
	}
}

func TestTransfer_RejectsFractionalAndNegative(t *testing.T) {
	c := NewMemoryCustodian("")
	ctx := context.Background()

	if err := c.TransferOut(ctx, "bob", decimal.NewFromFloat(1.5)); err != ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for fractional amount, got %v", err)
	}
	if err := c.Mint(ctx, "bob", n(-1)); err != ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
}

func TestReclaim_IgnoresAllowance(t *testing.T) {
	c := NewMemoryCustodian("vault")
	ctx := context.Background()
	c.Mint(ctx, "alice", n(1000))
	c.Approve(ctx, "alice", n(1000))
	c.TransferIn(ctx, "alice", n(1000))
	c.TransferOut(ctx, "alice", n(600))

	// The deposit consumed the whole approval; reclaim must still work.
	if err := c.Reclaim(ctx, "alice", n(600)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alice, _ := c.BalanceOf(ctx, "alice")
	vault, _ := c.BalanceOf(ctx, "vault")
	if !alice.IsZero() {
		t.Errorf("expected alice=0, got %s", alice)
	}
	if !vault.Equal(n(1000)) {
		t.Errorf("expected vault=1000, got %s", vault)
	}

	if err := c.Reclaim(ctx, "alice", n(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}
