package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/position"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("expected default TTL 30s, got %s", cfg.CacheTTL)
	}
	if cfg.Redeposit != position.RedepositOverwrite {
		t.Errorf("expected overwrite policy by default, got %s", cfg.Redeposit)
	}
	if cfg.CustodyAccount != "ledger" {
		t.Errorf("expected custody account ledger, got %s", cfg.CustodyAccount)
	}
	if !cfg.MaxPositionSize.IsZero() || !cfg.MaxLeverage.IsZero() {
		t.Error("limits should be disabled by default")
	}
	if !cfg.EnableFaucet {
		t.Error("faucet should default on without a database")
	}
	if len(cfg.AdminIDs) != 0 {
		t.Errorf("expected no admins, got %v", cfg.AdminIDs)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":              "9090",
		"DATABASE_URL":      "postgres://localhost/ledger",
		"CACHE_TTL":         "5s",
		"ADMIN_IDS":         " admin , ops ,,",
		"REDEPOSIT_POLICY":  "reject-open",
		"MAX_POSITION_SIZE": "100000",
		"MAX_LEVERAGE":      "10",
		"INITIAL_PRICE":     "1000",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9090" || cfg.CacheTTL != 5*time.Second {
		t.Errorf("unexpected port/ttl %s/%s", cfg.Port, cfg.CacheTTL)
	}
	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != "admin" || cfg.AdminIDs[1] != "ops" {
		t.Errorf("unexpected admins %v", cfg.AdminIDs)
	}
	if cfg.Redeposit != position.RedepositRejectOpen {
		t.Errorf("expected reject-open policy, got %s", cfg.Redeposit)
	}
	if !cfg.MaxLeverage.Equal(decimal.NewFromInt(10)) || !cfg.InitialPrice.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("unexpected leverage/price %s/%s", cfg.MaxLeverage, cfg.InitialPrice)
	}
	if cfg.EnableFaucet {
		t.Error("faucet should default off with a database")
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"REDEPOSIT_POLICY":  "merge",
		"CACHE_TTL":         "soon",
		"MAX_LEVERAGE":      "-2",
		"MAX_POSITION_SIZE": "lots",
		"INITIAL_PRICE":     "12.5",
	}
	for k, v := range cases {
		if _, err := FromEnv(env(map[string]string{k: v})); err == nil {
			t.Errorf("expected error for %s=%q", k, v)
		}
	}
}
