package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shiva/ridedispatch/internal/model"
)

// BookingIDGenerator produces human-readable booking ids of the form
// {operatorCode}/{8-digit sequence}, one sequence per operator.
type BookingIDGenerator struct {
	counters CounterStore
}

// NewBookingIDGenerator creates a generator over the given counter store.
func NewBookingIDGenerator(counters CounterStore) *BookingIDGenerator {
	return &BookingIDGenerator{counters: counters}
}

// CounterKey is the counter record used for operatorCode.
func CounterKey(operatorCode string) string {
	return "bookingId_" + operatorCode
}

// FormatBookingID renders a display id.
func FormatBookingID(operatorCode string, seq int64) string {
	return fmt.Sprintf("%s/%08d", operatorCode, seq)
}

// LegacyDisplayID derives a display id for bookings created before
// sequential ids existed: operator code plus the first 8 characters of the
// internal id, upper-cased.
func LegacyDisplayID(operatorCode, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s/%s", operatorCode, strings.ToUpper(short))
}

// Generate returns the next display id for operatorCode.
//
// The increment is delegated to the counter store, which must perform the
// read-increment-write atomically so concurrent callers never share a number.
func (g *BookingIDGenerator) Generate(ctx context.Context, operatorCode string) (string, error) {
	if strings.TrimSpace(operatorCode) == "" {
		return "", model.Invalid("operatorCode", "is required")
	}
	if strings.Contains(operatorCode, "/") {
		return "", model.Invalid("operatorCode", "must not contain '/'")
	}

	seq, err := g.counters.Next(ctx, CounterKey(operatorCode))
	if err != nil {
		return "", fmt.Errorf("booking id: next sequence for %s: %w", operatorCode, err)
	}
	return FormatBookingID(operatorCode, seq), nil
}
