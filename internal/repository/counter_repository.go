package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// CounterRepository implements service.CounterStore on the counters table.
// Values are stored as text; anything that does not parse as a
// non-negative integer is reported as model.ErrCorruptCounter rather than
// silently restarted.
type CounterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository creates a new counter repository.
func NewCounterRepository(pool *pgxpool.Pool) *CounterRepository {
	return &CounterRepository{pool: pool}
}

// Next increments key and returns the new value. The first call returns 1.
//
//  1. INSERT the row with '0' if missing (ON CONFLICT DO NOTHING).
//  2. SELECT ... FOR UPDATE to serialize concurrent callers.
//  3. Parse, increment, UPDATE, COMMIT.
func (r *CounterRepository) Next(ctx context.Context, key string) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("counter %s: begin tx: %w", key, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO counters (id, current_id) VALUES ($1, '0')
		ON CONFLICT (id) DO NOTHING
	`, key)
	if err != nil {
		return 0, fmt.Errorf("counter %s: ensure row: %w", key, err)
	}

	var raw string
	err = tx.QueryRow(ctx, `SELECT current_id FROM counters WHERE id = $1 FOR UPDATE`, key).Scan(&raw)
	if err != nil {
		return 0, fmt.Errorf("counter %s: lock: %w", key, err)
	}

	current, err := parseCounter(key, raw)
	if err != nil {
		return 0, err
	}
	next := current + 1

	if _, err := tx.Exec(ctx, `UPDATE counters SET current_id = $2 WHERE id = $1`, key, strconv.FormatInt(next, 10)); err != nil {
		return 0, fmt.Errorf("counter %s: update: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("counter %s: commit: %w", key, err)
	}
	return next, nil
}

func parseCounter(key, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, raw, model.ErrCorruptCounter)
	}
	return v, nil
}
