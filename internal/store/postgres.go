package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/model"
)

// Schema is the DDL for the ledger tables. NUMERIC(78,0) holds any 256-bit
// unsigned amount.
const Schema = `
CREATE TABLE IF NOT EXISTS positions (
	owner              TEXT PRIMARY KEY,
	collateral_amount  NUMERIC(78,0) NOT NULL DEFAULT 0,
	position_size      NUMERIC(78,0) NOT NULL DEFAULT 0,
	is_long            BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_state (
	id                     SMALLINT PRIMARY KEY CHECK (id = 1),
	synthetic_asset_price  NUMERIC(78,0) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS position_events (
	seq                BIGSERIAL PRIMARY KEY,
	id                 UUID NOT NULL UNIQUE,
	owner              TEXT NOT NULL,
	op                 TEXT NOT NULL,
	amount             NUMERIC(78,0) NOT NULL,
	size               NUMERIC(78,0) NOT NULL,
	collateral_amount  NUMERIC(78,0) NOT NULL,
	position_size      NUMERIC(78,0) NOT NULL,
	is_long            BOOLEAN NOT NULL,
	price              NUMERIC(78,0) NOT NULL,
	retained           NUMERIC(78,0) NOT NULL,
	timestamp          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS position_events_owner_idx ON position_events (owner, seq);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC for exact precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, owner string) (model.Position, error) {
	p := model.Position{Owner: owner}
	var collateral, size string

	err := s.pool.QueryRow(ctx,
		`SELECT collateral_amount::TEXT, position_size::TEXT, is_long, updated_at
		 FROM positions WHERE owner = $1`, owner).
		Scan(&collateral, &size, &p.IsLong, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Closed(owner), nil
	}
	if err != nil {
		return model.Position{}, fmt.Errorf("get position %s: %w", owner, err)
	}

	p.CollateralAmount, _ = decimal.NewFromString(collateral)
	p.PositionSize, _ = decimal.NewFromString(size)
	return p, nil
}

// GetPositionForUpdate reads the same row as GetPosition; PostgreSQL is
// already the source of truth.
func (s *PostgresStore) GetPositionForUpdate(ctx context.Context, owner string) (model.Position, error) {
	return s.GetPosition(ctx, owner)
}

func (s *PostgresStore) PutPosition(ctx context.Context, p model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (owner, collateral_amount, position_size, is_long, updated_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5)
		 ON CONFLICT (owner) DO UPDATE
		 SET collateral_amount = EXCLUDED.collateral_amount,
		     position_size = EXCLUDED.position_size,
		     is_long = EXCLUDED.is_long,
		     updated_at = EXCLUDED.updated_at`,
		p.Owner, p.CollateralAmount.String(), p.PositionSize.String(), p.IsLong, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put position %s: %w", p.Owner, err)
	}
	return nil
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT owner, collateral_amount::TEXT, position_size::TEXT, is_long, updated_at
		 FROM positions ORDER BY owner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var collateral, size string
		if err := rows.Scan(&p.Owner, &collateral, &size, &p.IsLong, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CollateralAmount, _ = decimal.NewFromString(collateral)
		p.PositionSize, _ = decimal.NewFromString(size)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) GetPrice(ctx context.Context) (decimal.Decimal, error) {
	var price string
	err := s.pool.QueryRow(ctx,
		`SELECT synthetic_asset_price::TEXT FROM ledger_state WHERE id = 1`).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get price: %w", err)
	}
	return decimal.NewFromString(price)
}

func (s *PostgresStore) SetPrice(ctx context.Context, price decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_state (id, synthetic_asset_price) VALUES (1, $1::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET synthetic_asset_price = EXCLUDED.synthetic_asset_price`,
		price.String(),
	)
	if err != nil {
		return fmt.Errorf("set price: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.PositionEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO position_events
		   (id, owner, op, amount, size, collateral_amount, position_size, is_long, price, retained, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9::NUMERIC, $10::NUMERIC, $11)`,
		e.ID, e.Owner, e.Op,
		e.Amount.String(), e.Size.String(),
		e.Position.CollateralAmount.String(), e.Position.PositionSize.String(), e.Position.IsLong,
		e.Price.String(), e.Retained.String(),
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, owner string) ([]model.PositionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, owner, op, amount::TEXT, size::TEXT,
		        collateral_amount::TEXT, position_size::TEXT, is_long,
		        price::TEXT, retained::TEXT, timestamp
		 FROM position_events WHERE owner = $1 ORDER BY seq`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents reads pgx rows into PositionEvent slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows pgxRows) ([]model.PositionEvent, error) {
	var events []model.PositionEvent
	for rows.Next() {
		var e model.PositionEvent
		var amountS, sizeS, collateralS, posSizeS, priceS, retainedS string

		if err := rows.Scan(&e.ID, &e.Owner, &e.Op, &amountS, &sizeS,
			&collateralS, &posSizeS, &e.Position.IsLong,
			&priceS, &retainedS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Amount, _ = decimal.NewFromString(amountS)
		e.Size, _ = decimal.NewFromString(sizeS)
		e.Position.Owner = e.Owner
		e.Position.CollateralAmount, _ = decimal.NewFromString(collateralS)
		e.Position.PositionSize, _ = decimal.NewFromString(posSizeS)
		e.Position.UpdatedAt = e.Timestamp
		e.Price, _ = decimal.NewFromString(priceS)
		e.Retained, _ = decimal.NewFromString(retainedS)

		events = append(events, e)
	}
	return events, rows.Err()
}
