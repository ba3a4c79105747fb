// Package notify delivers ride offers and booking status changes to devices.
//
// FCM pushes through Firebase Cloud Messaging; Log only writes a log line and
// is used when Firebase is not configured. Both satisfy service.Notifier.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/shiva/ridedispatch/internal/model"
)

// ErrNoDeviceToken is returned when the driver has no registered device.
var ErrNoDeviceToken = errors.New("driver has no device token")

// NewFirebaseApp initializes the Firebase Admin SDK. An empty
// credentialsFile falls back to application-default credentials.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}
	return app, nil
}

// sender is the part of *messaging.Client used here.
type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM sends pushes through Firebase Cloud Messaging.
type FCM struct {
	client sender
	log    *zap.Logger
	now    func() time.Time
}

// NewFCM creates an FCM notifier from a messaging client.
func NewFCM(client *messaging.Client, log *zap.Logger) *FCM {
	return newFCM(client, log)
}

func newFCM(client sender, log *zap.Logger) *FCM {
	return &FCM{client: client, log: log.Named("fcm"), now: time.Now}
}

// BookingTopic is the topic passenger and operator apps subscribe to for a
// booking's status changes.
func BookingTopic(bookingID string) string {
	return "booking_" + bookingID
}

// NotifyOffer pushes a ride offer to the addressed driver's device. The
// message lives no longer than the offer window.
func (n *FCM) NotifyOffer(ctx context.Context, driver *model.Driver, offer *model.RideOffer) error {
	if driver.DeviceToken == "" {
		return fmt.Errorf("fcm: offer %s to %s: %w", offer.ID, driver.ID, ErrNoDeviceToken)
	}

	ttl := offer.ExpiresAt.Sub(n.now())
	if ttl < 0 {
		ttl = 0
	}
	snap := offer.Snapshot
	msg := &messaging.Message{
		Token: driver.DeviceToken,
		Notification: &messaging.Notification{
			Title: "New ride offer",
			Body:  fmt.Sprintf("%s → %s", snap.PickupLocation.Address, snap.DropoffLocation.Address),
		},
		Data: map[string]string{
			"type":             "ride_offer",
			"offerId":          offer.ID,
			"bookingId":        offer.BookingID,
			"displayBookingId": snap.DisplayBookingID,
			"fareEstimate":     snap.FareEstimate.String(),
			"expiresAt":        offer.ExpiresAt.UTC().Format(time.RFC3339),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      &ttl,
		},
	}

	id, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm: send offer %s: %w", offer.ID, err)
	}
	n.log.Debug("offer pushed", zap.String("offer_id", offer.ID), zap.String("message_id", id))
	return nil
}

// NotifyBookingStatus publishes the booking's new status on its topic.
func (n *FCM) NotifyBookingStatus(ctx context.Context, b *model.Booking) error {
	msg := &messaging.Message{
		Topic: BookingTopic(b.ID),
		Data: map[string]string{
			"type":             "booking_status",
			"bookingId":        b.ID,
			"displayBookingId": b.DisplayBookingID,
			"status":           string(b.Status),
			"statusVersion":    strconv.Itoa(b.StatusVersion),
			"driverId":         b.DriverID,
		},
	}
	id, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm: send status for %s: %w", b.ID, err)
	}
	n.log.Debug("status pushed", zap.String("booking_id", b.ID), zap.String("message_id", id))
	return nil
}
