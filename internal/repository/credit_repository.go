package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// CreditRepository implements service.CreditStore on credit_accounts.
type CreditRepository struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new credit repository.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{pool: pool}
}

// Get fetches a passenger's account.
func (r *CreditRepository) Get(ctx context.Context, passengerID string) (*model.CreditAccount, error) {
	a := &model.CreditAccount{}
	err := r.pool.QueryRow(ctx, `
		SELECT passenger_id, balance_cents, updated_at FROM credit_accounts WHERE passenger_id = $1
	`, passengerID).Scan(&a.PassengerID, &a.Balance, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrCreditAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credit: get %s: %w", passengerID, err)
	}
	return a, nil
}

// Debit subtracts amount in a single atomic UPDATE and returns the new
// balance. The balance may go negative.
func (r *CreditRepository) Debit(ctx context.Context, passengerID string, amount model.Money) (model.Money, error) {
	var balance model.Money
	err := r.pool.QueryRow(ctx, `
		UPDATE credit_accounts
		SET balance_cents = balance_cents - $2, updated_at = now()
		WHERE passenger_id = $1
		RETURNING balance_cents
	`, passengerID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrCreditAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit: debit %s: %w", passengerID, err)
	}
	return balance, nil
}
