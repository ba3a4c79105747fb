package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
)

// DefaultOfferWindow is how long a driver has to answer a ride offer.
const DefaultOfferWindow = 30 * time.Second

// OfferIssuer creates time-bounded ride offers addressed to one driver and
// implements the driver's accept/decline contract.
type OfferIssuer struct {
	offers   OfferStore
	notifier Notifier
	window   time.Duration
	now      Clock
	log      *zap.Logger
}

// NewOfferIssuer creates an offer issuer. A zero window uses DefaultOfferWindow.
func NewOfferIssuer(offers OfferStore, notifier Notifier, window time.Duration, now Clock, log *zap.Logger) *OfferIssuer {
	if window <= 0 {
		window = DefaultOfferWindow
	}
	if now == nil {
		now = time.Now
	}
	return &OfferIssuer{
		offers:   offers,
		notifier: notifier,
		window:   window,
		now:      now,
		log:      log.Named("offer"),
	}
}

// NewSnapshot copies what a driver needs to decide on b without a second lookup.
func NewSnapshot(b *model.Booking) model.OfferSnapshot {
	return model.OfferSnapshot{
		PickupLocation:     b.PickupLocation,
		DropoffLocation:    b.DropoffLocation,
		Stops:              append([]model.LocationPoint(nil), b.Stops...),
		FareEstimate:       b.FareEstimate,
		PassengerID:        b.PassengerID,
		PassengerName:      b.PassengerName,
		PassengerPhone:     b.PassengerPhone,
		Notes:              b.Notes,
		PaymentMethod:      b.PaymentMethod,
		IsPriorityPickup:   b.IsPriorityPickup,
		PriorityFeeAmount:  b.PriorityFeeAmount,
		DistanceMiles:      b.DistanceMiles,
		RequiredOperatorID: b.RequiredOperatorID,
		AccountJobPin:      b.AccountJobPin,
		DisplayBookingID:   b.DisplayBookingID,
	}
}

// Issue supersedes any pending offer for b and persists a new one for driver.
//
// Steps:
//  1. Expire every pending offer of the booking.
//  2. Snapshot the booking.
//  3. Insert the new offer with expiresAt = now + window.
//
// Steps 1 and 3 run in one store transaction, so at most one offer per
// booking is pending at any time. The push notification is best-effort.
func (s *OfferIssuer) Issue(ctx context.Context, b *model.Booking, driver *model.Driver) (*model.RideOffer, error) {
	now := s.now()
	offer := &model.RideOffer{
		ID:        uuid.NewString(),
		BookingID: b.ID,
		DriverID:  driver.ID,
		Snapshot:  NewSnapshot(b),
		Status:    model.OfferPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.window),
	}

	superseded, err := s.offers.ReplacePending(ctx, offer)
	if err != nil {
		return nil, fmt.Errorf("offer: issue for booking %s: %w", b.ID, err)
	}

	s.log.Info("ride offer issued",
		zap.String("offer_id", offer.ID),
		zap.String("booking_id", b.ID),
		zap.String("driver_id", driver.ID),
		zap.Int("superseded", superseded),
		zap.Time("expires_at", offer.ExpiresAt))

	if s.notifier != nil {
		if err := s.notifier.NotifyOffer(ctx, driver, offer); err != nil {
			s.log.Warn("offer notification failed",
				zap.String("offer_id", offer.ID), zap.Error(err))
		}
	}
	return offer, nil
}

// Get returns an offer with its expiry evaluated against the current time:
// a pending offer past its deadline is reported as expired even if the
// sweeper has not reached it yet.
func (s *OfferIssuer) Get(ctx context.Context, offerID string) (*model.RideOffer, error) {
	o, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.Status == model.OfferPending && o.IsExpiredAt(s.now()) {
		o.Status = model.OfferExpired
	}
	return o, nil
}

// Respond records the addressed driver's answer to a pending offer.
//
// Returns model.ErrForbidden if driverID is not the addressee,
// model.ErrOfferClosed if the offer was already answered or superseded, and
// model.ErrOfferExpired if its window has passed (the offer is marked
// expired as a side effect).
func (s *OfferIssuer) Respond(ctx context.Context, offerID, driverID string, accept bool) (*model.RideOffer, error) {
	var expired bool

	o, err := s.offers.Update(ctx, offerID, func(o *model.RideOffer) error {
		if o.DriverID != driverID {
			return fmt.Errorf("offer %s is addressed to another driver: %w", offerID, model.ErrForbidden)
		}
		if o.Status != model.OfferPending {
			return fmt.Errorf("offer %s is %s: %w", offerID, o.Status, model.ErrOfferClosed)
		}
		now := s.now()
		if o.IsExpiredAt(now) {
			o.Status = model.OfferExpired
			expired = true
			return nil
		}
		if accept {
			o.Status = model.OfferAccepted
		} else {
			o.Status = model.OfferDeclined
		}
		o.RespondedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return o, fmt.Errorf("offer %s: %w", offerID, model.ErrOfferExpired)
	}

	s.log.Info("ride offer answered",
		zap.String("offer_id", o.ID),
		zap.String("booking_id", o.BookingID),
		zap.String("driver_id", o.DriverID),
		zap.String("status", string(o.Status)))
	return o, nil
}

// ListPendingForDriver returns the driver's open offers that are still inside
// their window.
func (s *OfferIssuer) ListPendingForDriver(ctx context.Context, driverID string) ([]*model.RideOffer, error) {
	offers, err := s.offers.ListPendingForDriver(ctx, driverID, s.now())
	if err != nil {
		return nil, fmt.Errorf("offer: list pending for driver %s: %w", driverID, err)
	}
	return offers, nil
}

// Withdraw expires the booking's pending offers, used once the booking can no
// longer be accepted.
func (s *OfferIssuer) Withdraw(ctx context.Context, bookingID string) error {
	n, err := s.offers.ExpireForBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("offer: withdraw for booking %s: %w", bookingID, err)
	}
	if n > 0 {
		s.log.Debug("pending offers withdrawn", zap.String("booking_id", bookingID), zap.Int("count", n))
	}
	return nil
}

// Close expires one offer if it is still pending. It is used when the
// booking moved on without the offer being answered.
func (s *OfferIssuer) Close(ctx context.Context, offerID string) error {
	_, err := s.offers.Update(ctx, offerID, func(o *model.RideOffer) error {
		if o.Status == model.OfferPending {
			o.Status = model.OfferExpired
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("offer: close %s: %w", offerID, err)
	}
	return nil
}
