package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/repository/memory"
)

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	offers   []string
	statuses []model.BookingStatus
	fail     bool
}

func (n *recordingNotifier) NotifyOffer(_ context.Context, _ *model.Driver, o *model.RideOffer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers = append(n.offers, o.ID)
	if n.fail {
		return errors.New("push gateway down")
	}
	return nil
}

func (n *recordingNotifier) NotifyBookingStatus(_ context.Context, b *model.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, b.Status)
	if n.fail {
		return errors.New("push gateway down")
	}
	return nil
}

// failingOfferStore rejects every offer insert.
type failingOfferStore struct {
	*memory.OfferStore
}

func (failingOfferStore) ReplacePending(context.Context, *model.RideOffer) (int, error) {
	return 0, errors.New("offer store unreachable")
}

// hookedOfferStore runs beforeReplace ahead of each offer insert, standing
// in for work that commits between a booking write and its offer.
type hookedOfferStore struct {
	*memory.OfferStore
	beforeReplace func()
}

func (s *hookedOfferStore) ReplacePending(ctx context.Context, offer *model.RideOffer) (int, error) {
	if hook := s.beforeReplace; hook != nil {
		s.beforeReplace = nil
		hook()
	}
	return s.OfferStore.ReplacePending(ctx, offer)
}

type testEnv struct {
	clock    *fakeClock
	bookings *memory.BookingStore
	offers   *memory.OfferStore
	counters *memory.CounterStore
	drivers  *memory.DriverStore
	settings *memory.SettingsStore
	credits  *memory.CreditStore
	notifier *recordingNotifier

	policy  *DispatchPolicy
	issuer  *OfferIssuer
	matcher *Matcher
	svc     *BookingService
}

type envOption func(*testEnv, *BookingDeps)

func withOfferStore(s OfferStore) envOption {
	return func(e *testEnv, d *BookingDeps) {
		d.Offers = NewOfferIssuer(s, e.notifier, DefaultOfferWindow, e.clock.Now, zap.NewNop())
		e.issuer = d.Offers
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	e := &testEnv{
		clock:    newFakeClock(),
		bookings: memory.NewBookingStore(),
		offers:   memory.NewOfferStore(),
		counters: memory.NewCounterStore(),
		drivers:  memory.NewDriverStore(),
		settings: memory.NewSettingsStore(),
		credits:  memory.NewCreditStore(),
		notifier: &recordingNotifier{},
	}
	log := zap.NewNop()
	e.policy = NewDispatchPolicy(e.settings, model.DispatchModeAuto, e.clock.Now)
	e.issuer = NewOfferIssuer(e.offers, e.notifier, DefaultOfferWindow, e.clock.Now, log)
	e.matcher = NewMatcher(e.drivers)

	deps := BookingDeps{
		Bookings: e.bookings,
		Drivers:  e.drivers,
		Credits:  e.credits,
		IDs:      NewBookingIDGenerator(e.counters),
		Matcher:  e.matcher,
		Offers:   e.issuer,
		Policy:   e.policy,
		Pricing:  NewPricingService(DefaultFareConfig(), log),
		Notifier: e.notifier,
	}
	for _, opt := range opts {
		opt(e, &deps)
	}
	e.svc = NewBookingService(deps, DefaultNoDriverTimeout, e.clock.Now, log)
	return e
}

var operatorActor = model.Actor{ID: "op-user-1", Role: model.RoleOperator, Channel: "dispatch-console"}
var driverActor = model.Actor{ID: "driver-1", Role: model.RoleDriver, Channel: "driver-app"}

func activeDriver(id, operator string, lat, lng float64) *model.Driver {
	return &model.Driver{
		ID:           id,
		Name:         "Driver " + id,
		Status:       model.DriverActive,
		OperatorCode: operator,
		Location:     &model.Coordinates{Lat: lat, Lng: lng},
		Vehicle:      model.VehicleDetails{Make: "Toyota", Model: "Prius", Registration: "AB12 CDE"},
	}
}

// seedBooking stores a booking in the given status with the fields that
// status implies.
func (e *testEnv) seedBooking(id string, status model.BookingStatus, mutate ...func(b *model.Booking)) *model.Booking {
	b := &model.Booking{
		ID:                    id,
		DisplayBookingID:      "OP001/00000042",
		PassengerID:           "pax-1",
		PassengerName:         "Ada",
		PickupLocation:        model.LocationPoint{Address: "1 High St", Latitude: 0, Longitude: 0.01},
		DropoffLocation:       model.LocationPoint{Address: "2 Low St", Latitude: 0.05, Longitude: 0.05},
		FareEstimate:          1000,
		PaymentMethod:         model.PaymentCard,
		Status:                status,
		StatusVersion:         1,
		OriginatingOperatorID: "OP001",
		CreatedAt:             testEpoch,
		UpdatedAt:             testEpoch,
	}
	if status != model.StatusPendingAssignment {
		b.DriverID = "driver-1"
		b.DriverName = "Driver driver-1"
	}
	switch status {
	case model.StatusInProgress, model.StatusInProgressWaitAndReturn, model.StatusPendingWaitAndReturnApproval:
		b.DriverCurrentLegIndex = 1
		ts := testEpoch
		b.CurrentLegEntryTimestamp = &ts
		b.RideStartedAt = &ts
	}
	if status == model.StatusInProgressWaitAndReturn {
		b.WaitAndReturn = true
	}
	for _, m := range mutate {
		m(b)
	}
	e.bookings.Put(b)
	return b
}

func (e *testEnv) mustGet(t *testing.T, id string) *model.Booking {
	t.Helper()
	b, err := e.bookings.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get booking %s: %v", id, err)
	}
	return b
}

// assignTo runs assign_driver through the service and returns the offer it issued.
func (e *testEnv) assignTo(t *testing.T, bookingID, driverID string) *model.RideOffer {
	t.Helper()
	res, err := e.svc.ApplyAction(context.Background(), bookingID, ActionRequest{
		Action:   model.ActionAssignDriver,
		DriverID: driverID,
		Actor:    operatorActor,
	})
	if err != nil {
		t.Fatalf("assign_driver %s: %v", driverID, err)
	}
	if res.Offer == nil {
		t.Fatalf("assign_driver %s issued no offer (warnings %v)", driverID, res.Warnings)
	}
	return res.Offer
}

func intPtr(v int) *int { return &v }

func moneyPtr(v model.Money) *model.Money { return &v }

func strPtr(v string) *string { return &v }
