package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stonks-go/src/models"
)

// PostgresStore persists trailing-stop state and the closed-trade log.
// Trailing state must outlive the process: the peak price cannot be
// re-derived from a single position snapshot after a restart.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool and ensures the
// schema exists
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trail_state (
			symbol     TEXT PRIMARY KEY,
			activated  BOOLEAN NOT NULL,
			peak_price DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS trade_log (
			id          BIGSERIAL PRIMARY KEY,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			quantity    DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price  DOUBLE PRECISION NOT NULL,
			reason      TEXT NOT NULL,
			closed_at   TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

// Get loads the trailing state for a symbol; found is false when the
// position was never activated
func (s *PostgresStore) Get(ctx context.Context, symbol string) (models.TrailState, bool, error) {
	var state models.TrailState
	err := s.pool.QueryRow(ctx,
		`SELECT activated, peak_price FROM trail_state WHERE symbol = $1`,
		symbol,
	).Scan(&state.Activated, &state.PeakPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TrailState{}, false, nil
	}
	if err != nil {
		return models.TrailState{}, false, fmt.Errorf("load trail state for %s: %w", symbol, err)
	}
	return state, true, nil
}

// Put upserts the trailing state for a symbol
func (s *PostgresStore) Put(ctx context.Context, symbol string, state models.TrailState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trail_state (symbol, activated, peak_price, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (symbol) DO UPDATE
		SET activated = EXCLUDED.activated,
		    peak_price = EXCLUDED.peak_price,
		    updated_at = now()`,
		symbol, state.Activated, state.PeakPrice,
	)
	if err != nil {
		return fmt.Errorf("save trail state for %s: %w", symbol, err)
	}
	return nil
}

// Delete removes the trailing state once a position is closed
func (s *PostgresStore) Delete(ctx context.Context, symbol string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM trail_state WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("delete trail state for %s: %w", symbol, err)
	}
	return nil
}

// LogClosedTrade appends one row to the closed-trade log
func (s *PostgresStore) LogClosedTrade(ctx context.Context, pos models.Position, reason string, closedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_log (symbol, side, quantity, entry_price, exit_price, reason, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pos.Ticker, pos.Side.String(), pos.Quantity, pos.EntryPrice, pos.CurrentPrice, reason, closedAt,
	)
	if err != nil {
		return fmt.Errorf("log closed trade for %s: %w", pos.Ticker, err)
	}
	return nil
}

// Close releases the underlying pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
