package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository/memory"
)

func pendingCount(t *testing.T, e *testEnv, bookingID string) int {
	t.Helper()
	offers, err := e.offers.ListByBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("ListByBooking: %v", err)
	}
	n := 0
	for _, o := range offers {
		if o.Status == model.OfferPending {
			n++
		}
	}
	return n
}

func TestIssue_SupersedesPendingOffer(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.seedBooking("b1", model.StatusDriverAssigned)

	o1, err := e.issuer.Issue(ctx, b, activeDriver("d1", "OP001", 0, 0))
	if err != nil {
		t.Fatalf("Issue o1: %v", err)
	}
	o2, err := e.issuer.Issue(ctx, b, activeDriver("d2", "OP001", 0, 0))
	if err != nil {
		t.Fatalf("Issue o2: %v", err)
	}

	got1, _ := e.offers.Get(ctx, o1.ID)
	if got1.Status != model.OfferExpired {
		t.Errorf("o1 status = %s, want expired", got1.Status)
	}
	got2, _ := e.offers.Get(ctx, o2.ID)
	if got2.Status != model.OfferPending {
		t.Errorf("o2 status = %s, want pending", got2.Status)
	}
	if n := pendingCount(t, e, "b1"); n != 1 {
		t.Errorf("pending offers for b1 = %d, want 1", n)
	}
}

func TestIssue_WindowAndSnapshot(t *testing.T) {
	e := newTestEnv(t)
	b := e.seedBooking("b1", model.StatusDriverAssigned, func(b *model.Booking) {
		b.PaymentMethod = model.PaymentAccount
		b.AccountJobPin = "0420"
		b.Stops = []model.LocationPoint{{Address: "Stop", Latitude: 0.02, Longitude: 0.02}}
		b.Notes = "ring twice"
		b.RequiredOperatorID = "OP001"
	})

	o, err := e.issuer.Issue(context.Background(), b, activeDriver("d1", "OP001", 0, 0))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !o.CreatedAt.Equal(testEpoch) {
		t.Errorf("CreatedAt = %v, want %v", o.CreatedAt, testEpoch)
	}
	if want := testEpoch.Add(30 * time.Second); !o.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", o.ExpiresAt, want)
	}
	s := o.Snapshot
	if s.AccountJobPin != "0420" || s.Notes != "ring twice" || len(s.Stops) != 1 ||
		s.PickupLocation.Address != "1 High St" || s.RequiredOperatorID != "OP001" ||
		s.DisplayBookingID != "OP001/00000042" || s.PassengerName != "Ada" {
		t.Errorf("snapshot incomplete: %+v", s)
	}
	if len(e.notifier.offers) != 1 || e.notifier.offers[0] != o.ID {
		t.Errorf("notifier offers = %v, want [%s]", e.notifier.offers, o.ID)
	}
}

func TestIssue_NotificationFailureIsNotFatal(t *testing.T) {
	e := newTestEnv(t)
	e.notifier.fail = true
	b := e.seedBooking("b1", model.StatusDriverAssigned)

	o, err := e.issuer.Issue(context.Background(), b, activeDriver("d1", "OP001", 0, 0))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if o.Status != model.OfferPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
}

func TestRespond(t *testing.T) {
	ctx := context.Background()

	t.Run("accept", func(t *testing.T) {
		e := newTestEnv(t)
		o, _ := e.issuer.Issue(ctx, e.seedBooking("b1", model.StatusDriverAssigned), activeDriver("d1", "OP001", 0, 0))
		e.clock.Advance(5 * time.Second)

		got, err := e.issuer.Respond(ctx, o.ID, "d1", true)
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if got.Status != model.OfferAccepted || got.RespondedAt == nil {
			t.Errorf("got status=%s respondedAt=%v, want accepted with timestamp", got.Status, got.RespondedAt)
		}

		if _, err := e.issuer.Respond(ctx, o.ID, "d1", false); !errors.Is(err, model.ErrOfferClosed) {
			t.Errorf("second Respond err = %v, want ErrOfferClosed", err)
		}
	})

	t.Run("decline", func(t *testing.T) {
		e := newTestEnv(t)
		o, _ := e.issuer.Issue(ctx, e.seedBooking("b1", model.StatusDriverAssigned), activeDriver("d1", "OP001", 0, 0))
		got, err := e.issuer.Respond(ctx, o.ID, "d1", false)
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if got.Status != model.OfferDeclined {
			t.Errorf("status = %s, want declined", got.Status)
		}
	})

	t.Run("wrong driver", func(t *testing.T) {
		e := newTestEnv(t)
		o, _ := e.issuer.Issue(ctx, e.seedBooking("b1", model.StatusDriverAssigned), activeDriver("d1", "OP001", 0, 0))
		if _, err := e.issuer.Respond(ctx, o.ID, "d2", true); !errors.Is(err, model.ErrForbidden) {
			t.Errorf("Respond err = %v, want ErrForbidden", err)
		}
		got, _ := e.offers.Get(ctx, o.ID)
		if got.Status != model.OfferPending {
			t.Errorf("status = %s, want pending", got.Status)
		}
	})

	t.Run("past window", func(t *testing.T) {
		e := newTestEnv(t)
		o, _ := e.issuer.Issue(ctx, e.seedBooking("b1", model.StatusDriverAssigned), activeDriver("d1", "OP001", 0, 0))
		e.clock.Advance(30 * time.Second)

		if _, err := e.issuer.Respond(ctx, o.ID, "d1", true); !errors.Is(err, model.ErrOfferExpired) {
			t.Errorf("Respond err = %v, want ErrOfferExpired", err)
		}
		got, _ := e.offers.Get(ctx, o.ID)
		if got.Status != model.OfferExpired {
			t.Errorf("stored status = %s, want expired", got.Status)
		}
	})

	t.Run("unknown offer", func(t *testing.T) {
		e := newTestEnv(t)
		if _, err := e.issuer.Respond(ctx, "missing", "d1", true); !errors.Is(err, model.ErrOfferNotFound) {
			t.Errorf("Respond err = %v, want ErrOfferNotFound", err)
		}
	})
}

func TestGet_ExpiresLazily(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o, _ := e.issuer.Issue(ctx, e.seedBooking("b1", model.StatusDriverAssigned), activeDriver("d1", "OP001", 0, 0))

	got, _ := e.issuer.Get(ctx, o.ID)
	if got.Status != model.OfferPending {
		t.Fatalf("status inside window = %s, want pending", got.Status)
	}

	e.clock.Advance(31 * time.Second)
	got, _ = e.issuer.Get(ctx, o.ID)
	if got.Status != model.OfferExpired {
		t.Errorf("status past window = %s, want expired", got.Status)
	}
}

func TestListPendingForDriver(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	d1 := activeDriver("d1", "OP001", 0, 0)

	old, _ := e.issuer.Issue(ctx, e.seedBooking("b1", model.StatusDriverAssigned), d1)
	e.clock.Advance(20 * time.Second)
	fresh, _ := e.issuer.Issue(ctx, e.seedBooking("b2", model.StatusDriverAssigned), d1)
	e.clock.Advance(15 * time.Second)

	list, err := e.issuer.ListPendingForDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("ListPendingForDriver: %v", err)
	}
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Errorf("pending = %v, want only %s (not %s)", offerIDs(list), fresh.ID, old.ID)
	}
}

func offerIDs(list []*model.RideOffer) []string {
	out := make([]string, len(list))
	for i, o := range list {
		out[i] = o.ID
	}
	return out
}

func twoDriverEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	e := newTestEnv(t, opts...)
	e.drivers.Put(activeDriver("driver-1", "OP001", 0, 0.01))
	e.drivers.Put(activeDriver("driver-2", "OP001", 0, 0.02))
	e.seedBooking("B", model.StatusPendingAssignment)
	return e
}

func TestRespondToOffer_DeclineReleasesBooking(t *testing.T) {
	e := twoDriverEnv(t)
	ctx := context.Background()

	offer := e.assignTo(t, "B", "driver-1")
	e.clock.Advance(5 * time.Second)

	res, err := e.svc.RespondToOffer(ctx, offer.ID, "driver-1", false, driverActor)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if !res.Released || res.Offer.Status != model.OfferDeclined {
		t.Errorf("released=%v offer=%s, want released and declined", res.Released, res.Offer.Status)
	}

	b := e.mustGet(t, "B")
	if b.Status != model.StatusPendingAssignment {
		t.Fatalf("status = %s, want pending_assignment", b.Status)
	}
	if b.DriverID != "" || b.DriverName != "" || b.DriverVehicleDetails != nil || b.DispatchMethod != "" {
		t.Errorf("driver fields kept: %q %q %v %q", b.DriverID, b.DriverName, b.DriverVehicleDetails, b.DispatchMethod)
	}
	if b.TimeoutAt == nil || !b.TimeoutAt.Equal(e.clock.Now().Add(DefaultNoDriverTimeout)) {
		t.Errorf("TimeoutAt = %v, want a fresh no-driver deadline", b.TimeoutAt)
	}
	if b.LastUpdatedBy != driverActor.ID {
		t.Errorf("LastUpdatedBy = %q, want %q", b.LastUpdatedBy, driverActor.ID)
	}

	second := e.assignTo(t, "B", "driver-2")
	if got := e.mustGet(t, "B"); got.Status != model.StatusDriverAssigned || got.DriverID != "driver-2" {
		t.Errorf("after reassignment status=%s driver=%q", got.Status, got.DriverID)
	}
	if second.DriverID != "driver-2" || pendingCount(t, e, "B") != 1 {
		t.Errorf("second offer to %s, pending=%d", second.DriverID, pendingCount(t, e, "B"))
	}
}

func TestRespondToOffer_AcceptKeepsAssignment(t *testing.T) {
	e := twoDriverEnv(t)
	offer := e.assignTo(t, "B", "driver-1")
	before := e.mustGet(t, "B").StatusVersion

	res, err := e.svc.RespondToOffer(context.Background(), offer.ID, "driver-1", true, driverActor)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Released || res.Offer.Status != model.OfferAccepted {
		t.Errorf("released=%v offer=%s, want accepted only", res.Released, res.Offer.Status)
	}
	b := e.mustGet(t, "B")
	if b.Status != model.StatusDriverAssigned || b.DriverID != "driver-1" || b.StatusVersion != before {
		t.Errorf("booking changed: status=%s driver=%q version=%d (was %d)", b.Status, b.DriverID, b.StatusVersion, before)
	}
}

func TestRespondToOffer_LateAnswerReleasesBooking(t *testing.T) {
	e := twoDriverEnv(t)
	ctx := context.Background()
	offer := e.assignTo(t, "B", "driver-1")
	e.clock.Advance(DefaultOfferWindow + time.Second)

	res, err := e.svc.RespondToOffer(ctx, offer.ID, "driver-1", true, driverActor)
	if !errors.Is(err, model.ErrOfferExpired) {
		t.Fatalf("late accept err = %v, want ErrOfferExpired", err)
	}
	if res == nil || !res.Released {
		t.Fatalf("late accept result = %+v, want released booking", res)
	}
	if b := e.mustGet(t, "B"); b.Status != model.StatusPendingAssignment || b.DriverID != "" {
		t.Errorf("status=%s driver=%q, want pending and unassigned", b.Status, b.DriverID)
	}
	if o, _ := e.offers.Get(ctx, offer.ID); o.Status != model.OfferExpired {
		t.Errorf("offer status = %s, want expired", o.Status)
	}
}

func TestRespondToOffer_BookingMovedOn(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *model.Booking)
	}{
		{"cancelled", func(b *model.Booking) { b.Status = model.StatusCancelledByDriver }},
		{"completed", func(b *model.Booking) { b.Status = model.StatusCompleted }},
		{"reassigned", func(b *model.Booking) { b.DriverID = "driver-2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			ctx := context.Background()
			b := e.seedBooking("B", model.StatusDriverAssigned)
			offer, err := e.issuer.Issue(ctx, b, activeDriver("driver-1", "OP001", 0, 0))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(b)
			e.bookings.Put(b)

			if _, err := e.svc.RespondToOffer(ctx, offer.ID, "driver-1", true, driverActor); !errors.Is(err, model.ErrOfferClosed) {
				t.Errorf("accept err = %v, want ErrOfferClosed", err)
			}
			if o, _ := e.offers.Get(ctx, offer.ID); o.Status != model.OfferExpired {
				t.Errorf("offer status = %s, want expired", o.Status)
			}
			if got := e.mustGet(t, "B"); got.Status != b.Status || got.DriverID != b.DriverID {
				t.Errorf("booking changed to %s/%q", got.Status, got.DriverID)
			}
		})
	}
}

func TestRespondToOffer_WrongDriver(t *testing.T) {
	e := twoDriverEnv(t)
	offer := e.assignTo(t, "B", "driver-1")

	if _, err := e.svc.RespondToOffer(context.Background(), offer.ID, "driver-2", false, driverActor); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if b := e.mustGet(t, "B"); b.DriverID != "driver-1" {
		t.Errorf("driver = %q, want driver-1", b.DriverID)
	}
}

func TestAssignDriver_CancelledBeforeOfferInsert(t *testing.T) {
	hooked := &hookedOfferStore{OfferStore: memory.NewOfferStore()}
	e := twoDriverEnv(t, withOfferStore(hooked))
	ctx := context.Background()

	hooked.beforeReplace = func() {
		_, err := e.svc.ApplyAction(ctx, "B", ActionRequest{Action: model.ActionCancelActive, Actor: driverActor})
		if err != nil {
			t.Errorf("cancel_active: %v", err)
		}
	}

	res, err := e.svc.ApplyAction(ctx, "B", ActionRequest{
		Action:   model.ActionAssignDriver,
		DriverID: "driver-1",
		Actor:    operatorActor,
	})
	if err != nil {
		t.Fatalf("assign_driver: %v", err)
	}
	if res.Offer != nil {
		t.Errorf("offer %s reported for a cancelled booking", res.Offer.ID)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one closed-offer warning", res.Warnings)
	}

	offers, err := hooked.ListByBooking(ctx, "B")
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].Status != model.OfferExpired {
		t.Fatalf("offers = %+v, want one expired offer", offers)
	}
	if _, err := e.svc.RespondToOffer(ctx, offers[0].ID, "driver-1", true, driverActor); !errors.Is(err, model.ErrOfferClosed) {
		t.Errorf("accept err = %v, want ErrOfferClosed", err)
	}
	if b := e.mustGet(t, "B"); b.Status != model.StatusCancelledByDriver {
		t.Errorf("status = %s, want cancelled_by_driver", b.Status)
	}
}
