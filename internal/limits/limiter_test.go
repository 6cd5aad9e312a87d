package limits

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckLimit_DisabledByDefault(t *testing.T) {
	limiter := NewLimiter(decimal.Zero, decimal.Zero)

	if limiter.Enabled() {
		t.Error("zero caps should leave the limiter disabled")
	}
	if err := limiter.CheckLimit(d(1), d(1e12)); err != nil {
		t.Errorf("disabled limiter should permit everything, got %v", err)
	}
}

func TestCheckLimit_NilLimiter(t *testing.T) {
	var limiter *Limiter

	if err := limiter.CheckLimit(d(0), d(500)); err != nil {
		t.Errorf("nil limiter should permit everything, got %v", err)
	}
}

func TestCheckLimit_SizeExceeded(t *testing.T) {
	limiter := NewLimiter(d(1000), decimal.Zero)

	if err := limiter.CheckLimit(d(1000), d(1000)); err != nil {
		t.Errorf("size at the cap should be allowed, got %v", err)
	}
	if err := limiter.CheckLimit(d(1000), d(1001)); err != ErrSizeLimitExceeded {
		t.Errorf("expected ErrSizeLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_LeverageExceeded(t *testing.T) {
	// 5x leverage on 1000 collateral allows up to 5000 notional.
	limiter := NewLimiter(decimal.Zero, d(5))

	if err := limiter.CheckLimit(d(1000), d(5000)); err != nil {
		t.Errorf("5000 on 1000 collateral at 5x should be allowed, got %v", err)
	}
	if err := limiter.CheckLimit(d(1000), d(5001)); err != ErrLeverageLimitExceeded {
		t.Errorf("expected ErrLeverageLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ZeroSizeAlwaysWithinLeverage(t *testing.T) {
	limiter := NewLimiter(decimal.Zero, d(2))

	// Reducing to zero must never be blocked, even with no collateral.
	if err := limiter.CheckLimit(decimal.Zero, decimal.Zero); err != nil {
		t.Errorf("zero size should be allowed, got %v", err)
	}
	if err := limiter.CheckLimit(decimal.Zero, d(1)); err != ErrLeverageLimitExceeded {
		t.Errorf("positive size on zero collateral should exceed leverage, got %v", err)
	}
}

func TestNewLimiter_NegativeCapsDisabled(t *testing.T) {
	limiter := NewLimiter(d(-1), d(-3))

	if limiter.Enabled() {
		t.Error("negative caps should be treated as disabled")
	}
}
