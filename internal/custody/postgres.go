package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Schema is the DDL for the custody tables.
const Schema = `
CREATE TABLE IF NOT EXISTS custody_balances (
	account  TEXT PRIMARY KEY,
	balance  NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS custody_allowances (
	owner    TEXT PRIMARY KEY,
	amount   NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (amount >= 0)
);
`

// PostgresCustodian keeps collateral balances in PostgreSQL. Each transfer
// runs in one transaction with row locks on the accounts it touches.
type PostgresCustodian struct {
	pool    *pgxpool.Pool
	account string
}

// NewPostgresCustodian creates a PostgreSQL-backed custodian.
func NewPostgresCustodian(pool *pgxpool.Pool, account string) *PostgresCustodian {
	if account == "" {
		account = DefaultAccount
	}
	return &PostgresCustodian{pool: pool, account: account}
}

// EnsureSchema creates the custody tables if they do not exist.
func (c *PostgresCustodian) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure custody schema: %w", err)
	}
	return nil
}

func (c *PostgresCustodian) TransferIn(ctx context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		allowance, err := lockedAmount(ctx, tx,
			`SELECT amount::TEXT FROM custody_allowances WHERE owner = $1 FOR UPDATE`, owner)
		if err != nil {
			return err
		}
		if allowance.LessThan(amount) {
			return fmt.Errorf("transfer in %s from %s: %w", amount, owner, ErrInsufficientAllowance)
		}
		if err := debit(ctx, tx, owner, amount); err != nil {
			return fmt.Errorf("transfer in %s from %s: %w", amount, owner, err)
		}
		if err := credit(ctx, tx, c.account, amount); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE custody_allowances SET amount = amount - $2::NUMERIC WHERE owner = $1`,
			owner, amount.String())
		return err
	})
}

func (c *PostgresCustodian) TransferOut(ctx context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		if err := debit(ctx, tx, c.account, amount); err != nil {
			return fmt.Errorf("transfer out %s to %s: %w", amount, owner, err)
		}
		return credit(ctx, tx, owner, amount)
	})
}

func (c *PostgresCustodian) Reclaim(ctx context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		if err := debit(ctx, tx, owner, amount); err != nil {
			return fmt.Errorf("reclaim %s from %s: %w", amount, owner, err)
		}
		return credit(ctx, tx, c.account, amount)
	})
}

func (c *PostgresCustodian) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	var balance string
	err := c.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM custody_balances WHERE account = $1`, account).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", account, err)
	}
	return decimal.NewFromString(balance)
}

// Mint credits account with newly created collateral.
func (c *PostgresCustodian) Mint(ctx context.Context, account string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		return credit(ctx, tx, account, amount)
	})
}

// Approve sets the amount the custody account may pull from owner.
func (c *PostgresCustodian) Approve(ctx context.Context, owner string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	_, err := c.pool.Exec(ctx,
		`INSERT INTO custody_allowances (owner, amount) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (owner) DO UPDATE SET amount = EXCLUDED.amount`,
		owner, amount.String())
	return err
}

func (c *PostgresCustodian) Allowance(ctx context.Context, owner string) (decimal.Decimal, error) {
	var amount string
	err := c.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM custody_allowances WHERE owner = $1`, owner).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

// lockedAmount reads a single NUMERIC under FOR UPDATE; missing rows read as 0.
func lockedAmount(ctx context.Context, tx pgx.Tx, query, key string) (decimal.Decimal, error) {
	var v string
	err := tx.QueryRow(ctx, query, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(v)
}

func debit(ctx context.Context, tx pgx.Tx, account string, amount decimal.Decimal) error {
	balance, err := lockedAmount(ctx, tx,
		`SELECT balance::TEXT FROM custody_balances WHERE account = $1 FOR UPDATE`, account)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	_, err = tx.Exec(ctx,
		`UPDATE custody_balances SET balance = balance - $2::NUMERIC WHERE account = $1`,
		account, amount.String())
	return err
}

func credit(ctx context.Context, tx pgx.Tx, account string, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO custody_balances (account, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (account) DO UPDATE SET balance = custody_balances.balance + EXCLUDED.balance`,
		account, amount.String())
	return err
}
