// Package service contains the dispatch and booking lifecycle logic.
//
// Services depend on the narrow store interfaces below. PostgreSQL
// implementations live in internal/repository and in-process ones in
// internal/repository/memory.
package service

import (
	"context"
	"time"

	"github.com/shiva/ridedispatch/internal/model"
)

// BookingStore persists bookings.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error

	// Get returns model.ErrBookingNotFound when id is unknown.
	Get(ctx context.Context, id string) (*model.Booking, error)

	// Update loads the booking under an exclusive lock, calls mutate on it and,
	// if mutate returns nil, bumps StatusVersion and persists the result in
	// the same transaction. An error from mutate aborts without writing.
	Update(ctx context.Context, id string, mutate func(b *model.Booking) error) (*model.Booking, error)

	// ListActiveForDriver returns the driver's non-terminal bookings.
	ListActiveForDriver(ctx context.Context, driverID string) ([]*model.Booking, error)

	// ListTimedOutPending returns ids of pending_assignment bookings whose
	// timeoutAt is at or before now.
	ListTimedOutPending(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// OfferStore persists ride offers.
type OfferStore interface {
	// ReplacePending expires every pending offer of offer.BookingID and
	// inserts offer, atomically. It returns how many offers were superseded.
	ReplacePending(ctx context.Context, offer *model.RideOffer) (int, error)

	// Get returns model.ErrOfferNotFound when id is unknown.
	Get(ctx context.Context, id string) (*model.RideOffer, error)

	// Update loads the offer under an exclusive lock and persists mutate's changes.
	Update(ctx context.Context, id string, mutate func(o *model.RideOffer) error) (*model.RideOffer, error)

	ListPendingForDriver(ctx context.Context, driverID string, now time.Time) ([]*model.RideOffer, error)
	ListByBooking(ctx context.Context, bookingID string) ([]*model.RideOffer, error)

	// ExpireForBooking marks the booking's pending offers expired.
	ExpireForBooking(ctx context.Context, bookingID string) (int, error)

	// ExpireStale marks pending offers whose expiresAt is at or before now
	// expired and returns them.
	ExpireStale(ctx context.Context, now time.Time) ([]*model.RideOffer, error)
}

// CounterStore hands out per-key sequence numbers. The first call for a key
// returns 1. A non-numeric stored value yields model.ErrCorruptCounter.
type CounterStore interface {
	Next(ctx context.Context, key string) (int64, error)
}

// DriverDirectory is the read side of the driver registry.
type DriverDirectory interface {
	// ListActive returns drivers with status Active, restricted to
	// operatorCode when it is non-empty.
	ListActive(ctx context.Context, operatorCode string) ([]*model.Driver, error)

	// Get returns model.ErrDriverNotFound when id is unknown.
	Get(ctx context.Context, id string) (*model.Driver, error)

	UpdateLocation(ctx context.Context, id string, loc model.Coordinates) error
}

// SettingsStore holds per-operator dispatch configuration.
type SettingsStore interface {
	// GetDispatchSetting returns model.ErrSettingNotFound when the operator
	// has no record.
	GetDispatchSetting(ctx context.Context, operatorID string) (*model.OperatorSetting, error)
	PutDispatchSetting(ctx context.Context, s *model.OperatorSetting) error
}

// CreditStore is the billing collaborator consulted on account-paid completions.
type CreditStore interface {
	Get(ctx context.Context, passengerID string) (*model.CreditAccount, error)

	// Debit subtracts amount and returns the new balance. It returns
	// model.ErrCreditAccountNotFound when the passenger has no account.
	Debit(ctx context.Context, passengerID string, amount model.Money) (model.Money, error)
}

// Notifier delivers fire-and-forget notifications.
type Notifier interface {
	NotifyOffer(ctx context.Context, driver *model.Driver, offer *model.RideOffer) error
	NotifyBookingStatus(ctx context.Context, b *model.Booking) error
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
