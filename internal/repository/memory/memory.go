// Package memory provides in-process implementations of the service stores.
//
// They back STORAGE_BACKEND=memory for local development and serve as the
// test doubles of the service and handler packages. Each store guards its map
// with a single mutex, which gives the same serialization the PostgreSQL
// stores get from row locks. Values are deep-copied in and out.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shiva/ridedispatch/internal/model"
)

// ─── Bookings ───────────────────────────────────────────────

// BookingStore is an in-memory service.BookingStore.
type BookingStore struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
}

// NewBookingStore creates an empty booking store.
func NewBookingStore() *BookingStore {
	return &BookingStore{bookings: make(map[string]*model.Booking)}
}

func (s *BookingStore) Create(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[b.ID]; exists {
		return fmt.Errorf("booking: insert %s: duplicate id", b.ID)
	}
	s.bookings[b.ID] = b.Clone()
	return nil
}

func (s *BookingStore) Get(_ context.Context, id string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (s *BookingStore) Update(ctx context.Context, id string, mutate func(b *model.Booking) error) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := s.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.StatusVersion = current.StatusVersion + 1
	s.bookings[id] = next
	return next.Clone(), nil
}

func (s *BookingStore) ListActiveForDriver(_ context.Context, driverID string) ([]*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Booking
	for _, b := range s.bookings {
		if b.DriverID == driverID && !b.Status.IsTerminal() {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *BookingStore) ListTimedOutPending(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, b := range s.bookings {
		if b.Status == model.StatusPendingAssignment && b.TimeoutAt != nil && !now.Before(*b.TimeoutAt) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores b as-is, bypassing the state machine. Used to seed fixtures.
func (s *BookingStore) Put(b *model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b.Clone()
}

// ─── Ride offers ────────────────────────────────────────────

// OfferStore is an in-memory service.OfferStore.
type OfferStore struct {
	mu     sync.Mutex
	offers map[string]*model.RideOffer
}

// NewOfferStore creates an empty offer store.
func NewOfferStore() *OfferStore {
	return &OfferStore{offers: make(map[string]*model.RideOffer)}
}

func (s *OfferStore) ReplacePending(_ context.Context, offer *model.RideOffer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := s.expireWhere(func(o *model.RideOffer) bool { return o.BookingID == offer.BookingID })
	s.offers[offer.ID] = offer.Clone()
	return len(expired), nil
}

func (s *OfferStore) Get(_ context.Context, id string) (*model.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, model.ErrOfferNotFound
	}
	return o.Clone(), nil
}

func (s *OfferStore) Update(_ context.Context, id string, mutate func(o *model.RideOffer) error) (*model.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.offers[id]
	if !ok {
		return nil, model.ErrOfferNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.offers[id] = next
	return next.Clone(), nil
}

func (s *OfferStore) ListPendingForDriver(_ context.Context, driverID string, now time.Time) ([]*model.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RideOffer
	for _, o := range s.offers {
		if o.DriverID == driverID && o.Status == model.OfferPending && !o.IsExpiredAt(now) {
			out = append(out, o.Clone())
		}
	}
	sortOffers(out)
	return out, nil
}

func (s *OfferStore) ListByBooking(_ context.Context, bookingID string) ([]*model.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RideOffer
	for _, o := range s.offers {
		if o.BookingID == bookingID {
			out = append(out, o.Clone())
		}
	}
	sortOffers(out)
	return out, nil
}

func (s *OfferStore) ExpireForBooking(_ context.Context, bookingID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expireWhere(func(o *model.RideOffer) bool { return o.BookingID == bookingID })), nil
}

func (s *OfferStore) ExpireStale(_ context.Context, now time.Time) ([]*model.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := s.expireWhere(func(o *model.RideOffer) bool { return o.IsExpiredAt(now) })
	sortOffers(expired)
	return expired, nil
}

// expireWhere must be called with s.mu held. It returns copies of the
// offers it expired.
func (s *OfferStore) expireWhere(match func(o *model.RideOffer) bool) []*model.RideOffer {
	var expired []*model.RideOffer
	for _, o := range s.offers {
		if o.Status == model.OfferPending && match(o) {
			o.Status = model.OfferExpired
			expired = append(expired, o.Clone())
		}
	}
	return expired
}

func sortOffers(list []*model.RideOffer) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// ─── Counters ───────────────────────────────────────────────

// CounterStore is an in-memory service.CounterStore. Values are kept as
// strings, as in the counters table, so corruption can be reproduced.
type CounterStore struct {
	mu       sync.Mutex
	counters map[string]string
}

// NewCounterStore creates an empty counter store.
func NewCounterStore() *CounterStore {
	return &CounterStore{counters: make(map[string]string)}
}

func (s *CounterStore) Next(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.counters[key]
	if !ok {
		s.counters[key] = "1"
		return 1, nil
	}
	current, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || current < 0 {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, raw, model.ErrCorruptCounter)
	}
	next := current + 1
	s.counters[key] = strconv.FormatInt(next, 10)
	return next, nil
}

// Set overwrites a counter's raw value.
func (s *CounterStore) Set(key, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = raw
}

// ─── Drivers ────────────────────────────────────────────────

// DriverStore is an in-memory service.DriverDirectory. ListActive returns
// drivers in insertion order so tie-breaking is deterministic.
type DriverStore struct {
	mu      sync.Mutex
	order   []string
	drivers map[string]*model.Driver
}

// NewDriverStore creates a driver store holding drivers.
func NewDriverStore(drivers ...*model.Driver) *DriverStore {
	s := &DriverStore{drivers: make(map[string]*model.Driver)}
	for _, d := range drivers {
		s.Put(d)
	}
	return s
}

// Put inserts or replaces a driver.
func (s *DriverStore) Put(d *model.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.drivers[d.ID]; !exists {
		s.order = append(s.order, d.ID)
	}
	s.drivers[d.ID] = d.Clone()
}

func (s *DriverStore) ListActive(_ context.Context, operatorCode string) ([]*model.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Driver
	for _, id := range s.order {
		d := s.drivers[id]
		if d.Status != model.DriverActive {
			continue
		}
		if operatorCode != "" && d.OperatorCode != operatorCode {
			continue
		}
		out = append(out, d.Clone())
	}
	return out, nil
}

func (s *DriverStore) Get(_ context.Context, id string) (*model.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, model.ErrDriverNotFound
	}
	return d.Clone(), nil
}

func (s *DriverStore) UpdateLocation(_ context.Context, id string, loc model.Coordinates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return model.ErrDriverNotFound
	}
	l := loc
	d.Location = &l
	d.UpdatedAt = time.Now()
	return nil
}

// ─── Operator settings ──────────────────────────────────────

// SettingsStore is an in-memory service.SettingsStore.
type SettingsStore struct {
	mu       sync.Mutex
	settings map[string]model.OperatorSetting
}

// NewSettingsStore creates an empty settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{settings: make(map[string]model.OperatorSetting)}
}

func (s *SettingsStore) GetDispatchSetting(_ context.Context, operatorID string) (*model.OperatorSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[operatorID]
	if !ok {
		return nil, model.ErrSettingNotFound
	}
	return &v, nil
}

func (s *SettingsStore) PutDispatchSetting(_ context.Context, setting *model.OperatorSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[setting.OperatorID] = *setting
	return nil
}

// ─── Credit accounts ────────────────────────────────────────

// CreditStore is an in-memory service.CreditStore.
type CreditStore struct {
	mu       sync.Mutex
	accounts map[string]*model.CreditAccount
}

// NewCreditStore creates an empty credit store.
func NewCreditStore() *CreditStore {
	return &CreditStore{accounts: make(map[string]*model.CreditAccount)}
}

// Open creates or resets a passenger's account balance.
func (s *CreditStore) Open(passengerID string, balance model.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[passengerID] = &model.CreditAccount{PassengerID: passengerID, Balance: balance, UpdatedAt: time.Now()}
}

func (s *CreditStore) Get(_ context.Context, passengerID string) (*model.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[passengerID]
	if !ok {
		return nil, model.ErrCreditAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s *CreditStore) Debit(_ context.Context, passengerID string, amount model.Money) (model.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[passengerID]
	if !ok {
		return 0, model.ErrCreditAccountNotFound
	}
	a.Balance -= amount
	a.UpdatedAt = time.Now()
	return a.Balance, nil
}
