// Package geo provides geographic utility functions for ride dispatch.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
package geo

import (
	"math"

	"github.com/shiva/ridedispatch/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusM is the mean radius of Earth in meters.
	EarthRadiusM = 6_371_000.0

	// MetersPerMile converts meters to statute miles.
	MetersPerMile = 1609.344
)

// ─── Distance ───────────────────────────────────────────────

// HaversineM returns the great-circle distance between two points in meters.
//
// Complexity: O(1)
func HaversineM(a, b model.Coordinates) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLng*sinLng

	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// HaversineKm returns the great-circle distance between two points in kilometers.
func HaversineKm(a, b model.Coordinates) float64 {
	return HaversineM(a, b) / 1000.0
}

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(a, b model.Coordinates) float64 {
	return HaversineM(a, b) / MetersPerMile
}

// ─── Route Calculations ─────────────────────────────────────

// Itinerary returns the ordered points pickup → stops → dropoff.
func Itinerary(pickup model.LocationPoint, stops []model.LocationPoint, dropoff model.LocationPoint) []model.Coordinates {
	route := make([]model.Coordinates, 0, len(stops)+2)
	route = append(route, pickup.Coords())
	for _, s := range stops {
		route = append(route, s.Coords())
	}
	return append(route, dropoff.Coords())
}

// RouteDistanceMiles returns the total distance of an ordered route in miles.
//
// Complexity: O(S) where S = number of points.
func RouteDistanceMiles(route []model.Coordinates) float64 {
	total := 0.0
	for i := 0; i < len(route)-1; i++ {
		total += HaversineMiles(route[i], route[i+1])
	}
	return total
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
