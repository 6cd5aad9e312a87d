// Package config loads service configuration from the environment, after
// merging an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/custody"
	"github.com/atmx/synthetic-ledger/internal/position"
)

// Config holds everything cmd/server needs to wire the service.
type Config struct {
	Port            string
	DatabaseURL     string // empty → in-memory store and custodian
	RedisURL        string // empty → no cache
	CacheTTL        time.Duration
	AdminIDs        []string // callers allowed to set the synthetic asset price
	Redeposit       position.RedepositPolicy
	MaxPositionSize decimal.Decimal
	MaxLeverage     decimal.Decimal
	InitialPrice    decimal.Decimal // applied at startup when positive and no price is stored
	CustodyAccount  string
	EnableFaucet    bool
}

// Load reads .env (if present) and then the process environment. Variables
// already set in the environment take precedence over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a getenv function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           valueOr(getenv("PORT"), "8080"),
		DatabaseURL:    getenv("DATABASE_URL"),
		RedisURL:       getenv("REDIS_URL"),
		CacheTTL:       30 * time.Second,
		AdminIDs:       splitList(getenv("ADMIN_IDS")),
		CustodyAccount: valueOr(getenv("CUSTODY_ACCOUNT"), custody.DefaultAccount),
	}

	if v := getenv("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("config: invalid CACHE_TTL %q", v)
		}
		cfg.CacheTTL = ttl
	}

	policy, err := position.ParseRedepositPolicy(getenv("REDEPOSIT_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("config: REDEPOSIT_POLICY: %w", err)
	}
	cfg.Redeposit = policy

	if cfg.MaxPositionSize, err = decimalOr(getenv("MAX_POSITION_SIZE"), "MAX_POSITION_SIZE"); err != nil {
		return nil, err
	}
	if cfg.MaxLeverage, err = decimalOr(getenv("MAX_LEVERAGE"), "MAX_LEVERAGE"); err != nil {
		return nil, err
	}
	if cfg.InitialPrice, err = decimalOr(getenv("INITIAL_PRICE"), "INITIAL_PRICE"); err != nil {
		return nil, err
	}
	if !cfg.InitialPrice.IsInteger() {
		return nil, fmt.Errorf("config: INITIAL_PRICE must be a whole number, got %s", cfg.InitialPrice)
	}

	// The faucet defaults on for the in-memory custodian only.
	cfg.EnableFaucet = cfg.DatabaseURL == ""
	if v := getenv("ENABLE_FAUCET"); v != "" {
		cfg.EnableFaucet = v == "1" || strings.EqualFold(v, "true")
	}

	return cfg, nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func decimalOr(v, name string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: invalid %s %q", name, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
