package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
)

// Log records notifications instead of sending them.
type Log struct {
	log *zap.Logger
}

// NewLog creates a log-only notifier.
func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("notify")}
}

func (n *Log) NotifyOffer(_ context.Context, driver *model.Driver, offer *model.RideOffer) error {
	n.log.Info("ride offer",
		zap.String("offer_id", offer.ID),
		zap.String("booking_id", offer.BookingID),
		zap.String("driver_id", driver.ID),
		zap.Time("expires_at", offer.ExpiresAt))
	return nil
}

func (n *Log) NotifyBookingStatus(_ context.Context, b *model.Booking) error {
	n.log.Info("booking status",
		zap.String("booking_id", b.ID),
		zap.String("status", string(b.Status)),
		zap.Int("status_version", b.StatusVersion))
	return nil
}
