package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/ridedispatch/internal/model"
)

// DriverRepository implements service.DriverDirectory on the drivers table.
// The registry itself is maintained elsewhere; this service only reads it
// and records driver positions.
type DriverRepository struct {
	pool *pgxpool.Pool
}

// NewDriverRepository creates a new driver repository.
func NewDriverRepository(pool *pgxpool.Pool) *DriverRepository {
	return &DriverRepository{pool: pool}
}

const driverSelect = `
	SELECT id, name, phone, status, operator_code, lat, lng, vehicle, device_token, updated_at
	FROM drivers`

func scanDriver(row pgx.Row) (*model.Driver, error) {
	var (
		d        model.Driver
		lat, lng *float64
		vehicle  []byte
	)
	err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.Status, &d.OperatorCode, &lat, &lng, &vehicle, &d.DeviceToken, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d.Location = &model.Coordinates{Lat: *lat, Lng: *lng}
	}
	if len(vehicle) > 0 {
		if err := json.Unmarshal(vehicle, &d.Vehicle); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
	}
	return &d, nil
}

// ListActive returns Active drivers, optionally restricted to one operator,
// ordered by id so the matcher's first-seen tie-break is stable.
func (r *DriverRepository) ListActive(ctx context.Context, operatorCode string) ([]*model.Driver, error) {
	rows, err := r.pool.Query(ctx,
		driverSelect+` WHERE status = $1 AND ($2 = '' OR operator_code = $2) ORDER BY id`,
		model.DriverActive, operatorCode)
	if err != nil {
		return nil, fmt.Errorf("driver: list active: %w", err)
	}
	defer rows.Close()

	var out []*model.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("driver: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("driver: list active: %w", err)
	}
	return out, nil
}

// Get fetches a driver by id.
func (r *DriverRepository) Get(ctx context.Context, id string) (*model.Driver, error) {
	d, err := scanDriver(r.pool.QueryRow(ctx, driverSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrDriverNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("driver: get %s: %w", id, err)
	}
	return d, nil
}

// UpdateLocation records the driver's last known position.
func (r *DriverRepository) UpdateLocation(ctx context.Context, id string, loc model.Coordinates) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE drivers SET lat = $2, lng = $3, updated_at = now() WHERE id = $1
	`, id, loc.Lat, loc.Lng)
	if err != nil {
		return fmt.Errorf("driver: update location %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDriverNotFound
	}
	return nil
}
