package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// OfferRepository implements service.OfferStore on the ride_offers table.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository creates a new offer repository.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

const offerSelect = `
	SELECT id, booking_id, driver_id, snapshot, status, created_at, expires_at, responded_at
	FROM ride_offers`

func scanOffer(row pgx.Row) (*model.RideOffer, error) {
	var (
		o        model.RideOffer
		snapshot []byte
	)
	err := row.Scan(&o.ID, &o.BookingID, &o.DriverID, &snapshot, &o.Status, &o.CreatedAt, &o.ExpiresAt, &o.RespondedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &o.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &o, nil
}

func collectOffers(rows pgx.Rows) ([]*model.RideOffer, error) {
	defer rows.Close()
	var out []*model.RideOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ReplacePending supersedes the booking's pending offers and inserts offer.
//
// Two dispatchers racing on the same booking both pass the UPDATE (there may
// be nothing to expire yet) and then collide on uq_ride_offers_pending. The
// transaction-scoped advisory lock on the booking id serializes them first,
// so the second one expires the first one's offer instead of failing.
func (r *OfferRepository) ReplacePending(ctx context.Context, offer *model.RideOffer) (int, error) {
	snapshot, err := json.Marshal(offer.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("offer: encode snapshot: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, offer.BookingID); err != nil {
		return 0, fmt.Errorf("offer: lock booking %s: %w", offer.BookingID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ride_offers
		SET status = 'expired'
		WHERE booking_id = $1 AND status = 'pending'
	`, offer.BookingID)
	if err != nil {
		return 0, fmt.Errorf("offer: expire pending for %s: %w", offer.BookingID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ride_offers (id, booking_id, driver_id, snapshot, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, offer.ID, offer.BookingID, offer.DriverID, snapshot, offer.Status, offer.CreatedAt, offer.ExpiresAt)
	if err != nil {
		return 0, fmt.Errorf("offer: insert %s: %w", offer.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("offer: commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Get fetches an offer by id.
func (r *OfferRepository) Get(ctx context.Context, id string) (*model.RideOffer, error) {
	o, err := scanOffer(r.pool.QueryRow(ctx, offerSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("offer: get %s: %w", id, err)
	}
	return o, nil
}

// Update applies mutate to the offer under a row lock. Only status and
// responded_at are writable.
func (r *OfferRepository) Update(ctx context.Context, id string, mutate func(o *model.RideOffer) error) (*model.RideOffer, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := scanOffer(tx.QueryRow(ctx, offerSelect+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("offer: lock %s: %w", id, err)
	}

	if err := mutate(o); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE ride_offers SET status = $2, responded_at = $3 WHERE id = $1
	`, id, o.Status, o.RespondedAt)
	if err != nil {
		return nil, fmt.Errorf("offer: update %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("offer: commit %s: %w", id, err)
	}
	return o, nil
}

// ListPendingForDriver returns the driver's pending offers still open at now.
func (r *OfferRepository) ListPendingForDriver(ctx context.Context, driverID string, now time.Time) ([]*model.RideOffer, error) {
	rows, err := r.pool.Query(ctx,
		offerSelect+` WHERE driver_id = $1 AND status = 'pending' AND expires_at > $2 ORDER BY created_at`,
		driverID, now)
	if err != nil {
		return nil, fmt.Errorf("offer: list pending for %s: %w", driverID, err)
	}
	offers, err := collectOffers(rows)
	if err != nil {
		return nil, fmt.Errorf("offer: list pending for %s: %w", driverID, err)
	}
	return offers, nil
}

// ListByBooking returns every offer made for the booking, oldest first.
func (r *OfferRepository) ListByBooking(ctx context.Context, bookingID string) ([]*model.RideOffer, error) {
	rows, err := r.pool.Query(ctx, offerSelect+` WHERE booking_id = $1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("offer: list for booking %s: %w", bookingID, err)
	}
	offers, err := collectOffers(rows)
	if err != nil {
		return nil, fmt.Errorf("offer: list for booking %s: %w", bookingID, err)
	}
	return offers, nil
}

// ExpireForBooking expires the booking's pending offers.
func (r *OfferRepository) ExpireForBooking(ctx context.Context, bookingID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ride_offers SET status = 'expired'
		WHERE booking_id = $1 AND status = 'pending'
	`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("offer: expire for booking %s: %w", bookingID, err)
	}
	return int(tag.RowsAffected()), nil
}

// ExpireStale expires every pending offer whose window closed at or before
// now and returns the expired rows.
func (r *OfferRepository) ExpireStale(ctx context.Context, now time.Time) ([]*model.RideOffer, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE ride_offers SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING id, booking_id, driver_id, snapshot, status, created_at, expires_at, responded_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("offer: expire stale: %w", err)
	}
	offers, err := collectOffers(rows)
	if err != nil {
		return nil, fmt.Errorf("offer: expire stale: %w", err)
	}
	return offers, nil
}
