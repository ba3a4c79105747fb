// Package repository provides PostgreSQL access for the ride dispatch system.
//
// Every multi-statement change runs in one transaction and takes a row lock
// (SELECT ... FOR UPDATE) or an advisory lock before reading the state it
// is about to change. pgx.ErrNoRows is translated into the model package's
// not-found errors; everything else is wrapped with the operation name.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// BookingRepository implements service.BookingStore on the bookings table.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// ─── Column mapping ─────────────────────────────────────────

// bookingColumns is the single source of column order for SELECT, INSERT and
// UPDATE. bookingArgs and scanBooking must follow it exactly. Money columns
// hold model.Money cents.
var bookingColumns = []string{
	"id", "display_booking_id",
	"passenger_id", "passenger_name", "passenger_phone",
	"driver_id", "driver_name", "driver_vehicle_details",
	"pickup_location", "dropoff_location", "stops", "distance_miles", "notes",
	"fare_estimate_cents", "final_calculated_fare_cents", "payment_method", "account_job_pin",
	"is_priority_pickup", "priority_fee_cents",
	"wait_and_return", "estimated_additional_wait_time_minutes",
	"status", "status_version",
	"driver_current_leg_index", "current_leg_entry_timestamp", "completed_stop_wait_charges",
	"waiting_charge_at_pickup_cents", "no_show_fee_applicable",
	"originating_operator_id", "required_operator_id", "dispatch_method", "timeout_at",
	"created_at", "notified_passenger_arrival_at", "passenger_acknowledged_arrival_at",
	"ride_started_at", "completed_at", "cancelled_at",
	"last_updated_by", "last_updated_by_role", "update_channel", "updated_at",
}

var (
	bookingSelect = "SELECT " + strings.Join(bookingColumns, ", ") + " FROM bookings"
	bookingInsert = "INSERT INTO bookings (" + strings.Join(bookingColumns, ", ") + ") VALUES (" + placeholders(1, len(bookingColumns)) + ")"

	// id is $1 and never rewritten.
	bookingUpdate = "UPDATE bookings SET (" + strings.Join(bookingColumns[1:], ", ") + ") = (" +
		placeholders(2, len(bookingColumns)) + ") WHERE id = $1"
)

// placeholders returns "$from, ..., $to".
func placeholders(from, to int) string {
	var sb strings.Builder
	for i := from; i <= to; i++ {
		if i > from {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", i)
	}
	return sb.String()
}

// bookingArgs flattens b into query arguments in bookingColumns order.
// JSONB columns are passed as encoded []byte.
func bookingArgs(b *model.Booking) ([]any, error) {
	var vehicle []byte
	if b.DriverVehicleDetails != nil {
		v, err := json.Marshal(b.DriverVehicleDetails)
		if err != nil {
			return nil, fmt.Errorf("encode vehicle: %w", err)
		}
		vehicle = v
	}
	pickup, err := json.Marshal(b.PickupLocation)
	if err != nil {
		return nil, fmt.Errorf("encode pickup: %w", err)
	}
	dropoff, err := json.Marshal(b.DropoffLocation)
	if err != nil {
		return nil, fmt.Errorf("encode dropoff: %w", err)
	}
	stops := b.Stops
	if stops == nil {
		stops = []model.LocationPoint{}
	}
	stopsJSON, err := json.Marshal(stops)
	if err != nil {
		return nil, fmt.Errorf("encode stops: %w", err)
	}
	charges := b.CompletedStopWaitCharges
	if charges == nil {
		charges = map[int]model.Money{}
	}
	chargesJSON, err := json.Marshal(charges)
	if err != nil {
		return nil, fmt.Errorf("encode stop charges: %w", err)
	}

	return []any{
		b.ID, b.DisplayBookingID,
		b.PassengerID, b.PassengerName, b.PassengerPhone,
		b.DriverID, b.DriverName, vehicle,
		pickup, dropoff, stopsJSON, b.DistanceMiles, b.Notes,
		b.FareEstimate, b.FinalCalculatedFare, b.PaymentMethod, b.AccountJobPin,
		b.IsPriorityPickup, b.PriorityFeeAmount,
		b.WaitAndReturn, b.EstimatedAdditionalWaitTimeMinutes,
		b.Status, b.StatusVersion,
		b.DriverCurrentLegIndex, b.CurrentLegEntryTimestamp, chargesJSON,
		b.WaitingChargeAtPickup, b.NoShowFeeApplicable,
		b.OriginatingOperatorID, b.RequiredOperatorID, b.DispatchMethod, b.TimeoutAt,
		b.CreatedAt, b.NotifiedPassengerArrivalAt, b.PassengerAcknowledgedArrivalAt,
		b.RideStartedAt, b.CompletedAt, b.CancelledAt,
		b.LastUpdatedBy, b.LastUpdatedByRole, b.UpdateChannel, b.UpdatedAt,
	}, nil
}

// scanBooking reads one row selected with bookingColumns.
func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	var vehicle, pickup, dropoff, stops, chargesRaw []byte
	err := row.Scan(
		&b.ID, &b.DisplayBookingID,
		&b.PassengerID, &b.PassengerName, &b.PassengerPhone,
		&b.DriverID, &b.DriverName, &vehicle,
		&pickup, &dropoff, &stops, &b.DistanceMiles, &b.Notes,
		&b.FareEstimate, &b.FinalCalculatedFare, &b.PaymentMethod, &b.AccountJobPin,
		&b.IsPriorityPickup, &b.PriorityFeeAmount,
		&b.WaitAndReturn, &b.EstimatedAdditionalWaitTimeMinutes,
		&b.Status, &b.StatusVersion,
		&b.DriverCurrentLegIndex, &b.CurrentLegEntryTimestamp, &chargesRaw,
		&b.WaitingChargeAtPickup, &b.NoShowFeeApplicable,
		&b.OriginatingOperatorID, &b.RequiredOperatorID, &b.DispatchMethod, &b.TimeoutAt,
		&b.CreatedAt, &b.NotifiedPassengerArrivalAt, &b.PassengerAcknowledgedArrivalAt,
		&b.RideStartedAt, &b.CompletedAt, &b.CancelledAt,
		&b.LastUpdatedBy, &b.LastUpdatedByRole, &b.UpdateChannel, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(vehicle) > 0 && string(vehicle) != "null" {
		b.DriverVehicleDetails = &model.VehicleDetails{}
		if err := json.Unmarshal(vehicle, b.DriverVehicleDetails); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
	}
	if err := json.Unmarshal(pickup, &b.PickupLocation); err != nil {
		return nil, fmt.Errorf("decode pickup: %w", err)
	}
	if err := json.Unmarshal(dropoff, &b.DropoffLocation); err != nil {
		return nil, fmt.Errorf("decode dropoff: %w", err)
	}
	if len(stops) > 0 {
		if err := json.Unmarshal(stops, &b.Stops); err != nil {
			return nil, fmt.Errorf("decode stops: %w", err)
		}
	}
	if len(chargesRaw) > 0 {
		var charges map[int]model.Money
		if err := json.Unmarshal(chargesRaw, &charges); err != nil {
			return nil, fmt.Errorf("decode stop charges: %w", err)
		}
		if len(charges) > 0 {
			b.CompletedStopWaitCharges = charges
		}
	}
	return &b, nil
}

// ─── BookingStore ───────────────────────────────────────────

// Create inserts a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	args, err := bookingArgs(b)
	if err != nil {
		return fmt.Errorf("booking: create %s: %w", b.ID, err)
	}
	if _, err := r.pool.Exec(ctx, bookingInsert, args...); err != nil {
		return fmt.Errorf("booking: create %s: %w", b.ID, err)
	}
	return nil
}

// Get fetches a booking by internal id.
func (r *BookingRepository) Get(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, bookingSelect+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking: get %s: %w", id, err)
	}
	return b, nil
}

// Update applies mutate to the booking under a row lock.
//
// Concurrency strategy: PESSIMISTIC LOCKING
//
//	T1: BEGIN → SELECT booking FOR UPDATE → (row LOCKED)
//	T2: BEGIN → SELECT booking FOR UPDATE → (BLOCKS)
//	T1: mutate → UPDATE (status_version + 1) → COMMIT
//	T2: (unblocked) → re-reads committed row → mutate sees the new status
//
// The caller's context deadline bounds the lock wait; pgx then returns
// context.DeadlineExceeded, which the service maps to ErrBookingTimeout.
func (r *BookingRepository) Update(
	ctx context.Context,
	id string,
	mutate func(b *model.Booking) error,
) (*model.Booking, error) {

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("booking: begin tx: %w", err)
	}
	// No-op once committed.
	defer tx.Rollback(ctx)

	b, err := scanBooking(tx.QueryRow(ctx, bookingSelect+" WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking: lock %s: %w", id, err)
	}

	if err := mutate(b); err != nil {
		return nil, err
	}
	b.StatusVersion++

	args, err := bookingArgs(b)
	if err != nil {
		return nil, fmt.Errorf("booking: update %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, bookingUpdate, args...); err != nil {
		return nil, fmt.Errorf("booking: update %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit %s: %w", id, err)
	}
	return b, nil
}

var terminalStatuses = []string{
	string(model.StatusCompleted),
	string(model.StatusCancelledByDriver),
	string(model.StatusCancelledByOperator),
	string(model.StatusCancelledNoShow),
	string(model.StatusCancelledNoDriver),
}

// ListActiveForDriver returns the driver's non-terminal bookings, oldest first.
func (r *BookingRepository) ListActiveForDriver(ctx context.Context, driverID string) ([]*model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		bookingSelect+" WHERE driver_id = $1 AND status <> ALL($2) ORDER BY created_at",
		driverID, terminalStatuses)
	if err != nil {
		return nil, fmt.Errorf("booking: list active for %s: %w", driverID, err)
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: list active for %s: %w", driverID, err)
	}
	return out, nil
}

// ListTimedOutPending returns up to limit pending bookings whose timeoutAt has
// passed. Uses the partial index idx_bookings_pending_timeout.
func (r *BookingRepository) ListTimedOutPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM bookings
		WHERE status = 'pending_assignment'
		  AND timeout_at IS NOT NULL
		  AND timeout_at <= $1
		ORDER BY timeout_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("booking: list timed out: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("booking: list timed out: %w", err)
	}
	return ids, nil
}
