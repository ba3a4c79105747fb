package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
)

// sweepBatch caps how many timed-out bookings one pass cancels.
const sweepBatch = 100

// Sweeper is the background housekeeping loop. Read paths already treat
// past-deadline offers as expired; the sweeper makes storage agree, returns
// bookings whose offer lapsed to pending_assignment and cancels bookings
// nobody picked up before their timeoutAt.
type Sweeper struct {
	offers   OfferStore
	bookings BookingStore
	svc      *BookingService
	interval time.Duration
	now      Clock
	log      *zap.Logger
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(offers OfferStore, bookings BookingStore, svc *BookingService, interval time.Duration, now Clock, log *zap.Logger) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		offers:   offers,
		bookings: bookings,
		svc:      svc,
		interval: interval,
		now:      now,
		log:      log.Named("sweeper"),
	}
}

// SweepStats summarizes one pass.
type SweepStats struct {
	OffersExpired     int
	BookingsReleased  int
	BookingsCancelled int
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			stats, err := s.SweepOnce(ctx)
			if err != nil {
				s.log.Error("sweep failed", zap.Error(err))
				continue
			}
			if stats != (SweepStats{}) {
				s.log.Info("sweep completed",
					zap.Int("offers_expired", stats.OffersExpired),
					zap.Int("bookings_released", stats.BookingsReleased),
					zap.Int("bookings_cancelled", stats.BookingsCancelled))
			}
		}
	}
}

// SweepOnce performs a single pass.
//
// Timed-out bookings are cancelled through the state machine with the
// system actor, so a booking assigned concurrently fails the precondition
// and is left alone.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.now()

	expired, err := s.offers.ExpireStale(ctx, now)
	if err != nil {
		return stats, err
	}
	stats.OffersExpired = len(expired)

	for _, o := range expired {
		released, err := s.svc.ReleaseExpiredOffer(ctx, o)
		if err != nil {
			s.log.Warn("booking not released after offer expiry",
				zap.String("booking_id", o.BookingID), zap.String("offer_id", o.ID), zap.Error(err))
			continue
		}
		if released {
			stats.BookingsReleased++
		}
	}

	ids, err := s.bookings.ListTimedOutPending(ctx, now, sweepBatch)
	if err != nil {
		return stats, err
	}

	for _, id := range ids {
		_, err := s.svc.ApplyAction(ctx, id, ActionRequest{
			Action:         model.ActionExpireNoDriver,
			ExpectedStatus: model.StatusPendingAssignment,
			Actor:          model.SystemActor,
		})
		var te *model.TransitionError
		switch {
		case err == nil:
			stats.BookingsCancelled++
		case errors.As(err, &te):
			s.log.Debug("booking left pending sweep window", zap.String("booking_id", id), zap.Error(err))
		default:
			s.log.Warn("no-driver cancellation failed", zap.String("booking_id", id), zap.Error(err))
		}
	}
	return stats, nil
}
