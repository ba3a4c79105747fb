package service

import (
	"context"
	"fmt"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/geo"
)

// Matcher selects the nearest eligible driver for a pickup.
//
// Algorithm: full scan over Active drivers (optionally restricted to one
// operator), straight-line haversine distance to the pickup, minimum wins.
// Fleets are small per operator so no spatial index is used.
//
// Complexity: O(D) where D = active drivers returned by the directory.
type Matcher struct {
	drivers DriverDirectory
}

// NewMatcher creates a matcher backed by the given driver directory.
func NewMatcher(drivers DriverDirectory) *Matcher {
	return &Matcher{drivers: drivers}
}

// Match is a selected driver with its distance to the pickup.
type Match struct {
	Driver    *model.Driver `json:"driver"`
	DistanceM float64       `json:"distanceMeters"`
}

// FindNearest returns the closest eligible driver, or nil when there is none.
// A non-empty operatorFilter never falls back to other operators' drivers.
func (m *Matcher) FindNearest(ctx context.Context, pickup model.Coordinates, operatorFilter string) (*Match, error) {
	candidates, err := m.drivers.ListActive(ctx, operatorFilter)
	if err != nil {
		return nil, fmt.Errorf("matcher: list active drivers: %w", err)
	}
	return NearestDriver(candidates, pickup, operatorFilter), nil
}

// NearestDriver is the pure selection step of FindNearest. Status and
// operator are re-checked here so a loose directory query cannot widen the
// candidate set. On exact ties the first driver seen wins.
func NearestDriver(drivers []*model.Driver, pickup model.Coordinates, operatorFilter string) *Match {
	var best *Match
	for _, d := range drivers {
		if d == nil || d.Status != model.DriverActive {
			continue
		}
		if operatorFilter != "" && d.OperatorCode != operatorFilter {
			continue
		}
		if d.Location == nil {
			continue
		}
		dist := geo.HaversineM(pickup, *d.Location)
		if best == nil || dist < best.DistanceM {
			best = &Match{Driver: d, DistanceM: dist}
		}
	}
	return best
}
