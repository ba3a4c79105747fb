package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/geo"
)

// DefaultBookingTimeout bounds one booking transaction, including lock wait.
const DefaultBookingTimeout = 5 * time.Second

// DefaultNoDriverTimeout is how long an auto-dispatched booking may stay
// unassigned before the sweeper cancels it.
const DefaultNoDriverTimeout = 30 * time.Minute

// ─── BookingService ─────────────────────────────────────────

// BookingService owns the booking lifecycle: creation from offer details and
// every state-machine action afterwards.
//
// Concurrency model:
//   - Each action runs inside BookingStore.Update, which holds the booking
//     row lock (SELECT ... FOR UPDATE) while the precondition is checked and
//     the new state written. Two concurrent actions on one booking serialize;
//     the loser re-reads the committed status and fails its precondition.
//   - Callers may pin the status they observed via ExpectedStatus.
//   - Offer issuance, credit debit and notifications run after commit. Their
//     failure is logged and reported as a warning, never rolled back.
type BookingService struct {
	bookings BookingStore
	drivers  DriverDirectory
	credits  CreditStore
	ids      *BookingIDGenerator
	matcher  *Matcher
	offers   *OfferIssuer
	policy   *DispatchPolicy
	pricing  *PricingService
	notifier Notifier

	noDriverTimeout time.Duration
	now             Clock
	log             *zap.Logger
}

// BookingDeps are the collaborators of BookingService.
type BookingDeps struct {
	Bookings BookingStore
	Drivers  DriverDirectory
	Credits  CreditStore
	IDs      *BookingIDGenerator
	Matcher  *Matcher
	Offers   *OfferIssuer
	Policy   *DispatchPolicy
	Pricing  *PricingService
	Notifier Notifier
}

// NewBookingService creates a booking service. A zero noDriverTimeout uses
// DefaultNoDriverTimeout; a nil clock uses time.Now.
func NewBookingService(deps BookingDeps, noDriverTimeout time.Duration, now Clock, log *zap.Logger) *BookingService {
	if noDriverTimeout <= 0 {
		noDriverTimeout = DefaultNoDriverTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:        deps.Bookings,
		drivers:         deps.Drivers,
		credits:         deps.Credits,
		ids:             deps.IDs,
		matcher:         deps.Matcher,
		offers:          deps.Offers,
		policy:          deps.Policy,
		pricing:         deps.Pricing,
		notifier:        deps.Notifier,
		noDriverTimeout: noDriverTimeout,
		now:             now,
		log:             log.Named("booking"),
	}
}

// ActionResult is the outcome of ApplyAction.
type ActionResult struct {
	Booking *model.Booking

	// Offer is the ride offer issued by an assignment action.
	Offer *model.RideOffer

	// DistanceM is the matched driver's distance to pickup on auto-assignment.
	DistanceM *float64

	// ManualAssignmentRequired is set when auto-assignment was refused by the
	// operator's dispatch policy. It is not an error; Booking is unchanged.
	ManualAssignmentRequired bool
	Message                  string

	// Warnings lists secondary effects that failed after the state change
	// was committed.
	Warnings []string
}

// ─── Actions ────────────────────────────────────────────────

// ApplyAction validates req, applies it to the booking atomically and runs
// the post-commit side effects.
//
// Errors:
//   - model.ErrValidation: malformed request (no state was read).
//   - model.ErrBookingNotFound / model.ErrDriverNotFound.
//   - *model.TransitionError wrapping model.ErrInvalidTransition or
//     model.ErrStaleStatus: precondition failed; status unchanged.
//   - model.ErrNoDriverAvailable: auto-assignment found nobody.
//   - model.ErrBookingTimeout: lock wait exceeded DefaultBookingTimeout.
func (s *BookingService) ApplyAction(ctx context.Context, bookingID string, req ActionRequest) (*ActionResult, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, model.Invalid("bookingId", "is required")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Action == model.ActionExpireNoDriver && req.Actor.Role != model.RoleSystem {
		return nil, fmt.Errorf("%s is reserved for the system sweeper: %w", req.Action, model.ErrForbidden)
	}

	result := &ActionResult{}
	in := transitionInput{}

	switch req.Action {
	case model.ActionAssignDriver:
		d, err := s.drivers.Get(ctx, req.DriverID)
		if err != nil {
			return nil, fmt.Errorf("booking %s: load driver %s: %w", bookingID, req.DriverID, err)
		}
		if d.Status != model.DriverActive {
			return nil, model.Invalid("driverId", "driver %s is %s, not %s", d.ID, d.Status, model.DriverActive)
		}
		in.driver = d
		in.method = model.DispatchManualOperator
		if req.PriorityOverride {
			in.method = model.DispatchPriorityOverride
		}

	case model.ActionAutoAssignDriver:
		denied, err := s.resolveAutoAssignment(ctx, bookingID, req, &in, result)
		if err != nil {
			return nil, err
		}
		if denied {
			return result, nil
		}
	}

	var previous model.BookingStatus

	txCtx, cancel := context.WithTimeout(ctx, DefaultBookingTimeout)
	defer cancel()

	updated, err := s.bookings.Update(txCtx, bookingID, func(b *model.Booking) error {
		if req.ExpectedStatus != "" && b.Status != req.ExpectedStatus {
			return &model.TransitionError{
				Action:  req.Action,
				Current: b.Status,
				Err:     model.ErrStaleStatus,
				Reason:  fmt.Sprintf("expected %s", req.ExpectedStatus),
			}
		}
		previous = b.Status
		in.now = s.now()
		if err := applyTransition(b, req, in); err != nil {
			return err
		}
		stampAudit(b, req.Actor, in.now)
		return nil
	})
	if err != nil {
		return nil, s.classifyError(bookingID, err)
	}

	result.Booking = withDisplayID(updated)

	s.log.Info("booking action applied",
		zap.String("booking_id", bookingID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(previous)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", req.Actor.ID),
		zap.String("channel", req.Actor.Channel))

	s.afterCommit(ctx, req, previous, updated, in.driver, result)
	return result, nil
}

// resolveAutoAssignment runs the policy gate and matcher ahead of the
// transaction. It returns denied=true when the operator dispatches manually.
func (s *BookingService) resolveAutoAssignment(
	ctx context.Context,
	bookingID string,
	req ActionRequest,
	in *transitionInput,
	result *ActionResult,
) (bool, error) {
	current, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return false, s.classifyError(bookingID, err)
	}
	if req.ExpectedStatus != "" && current.Status != req.ExpectedStatus {
		return false, &model.TransitionError{
			Action:  req.Action,
			Current: current.Status,
			Err:     model.ErrStaleStatus,
			Reason:  fmt.Sprintf("expected %s", req.ExpectedStatus),
		}
	}
	if !CanApply(req.Action, current.Status) {
		return false, precondition(req.Action, current.Status, "")
	}

	ok, err := s.policy.CanAutoAssign(ctx, current.OriginatingOperatorID)
	if err != nil {
		return false, fmt.Errorf("booking %s: %w", bookingID, err)
	}
	if !ok {
		s.log.Info("auto-assignment refused by dispatch policy",
			zap.String("booking_id", bookingID),
			zap.String("operator_id", current.OriginatingOperatorID))
		result.Booking = withDisplayID(current)
		result.ManualAssignmentRequired = true
		result.Message = fmt.Sprintf("operator %s dispatches manually; assign a driver by hand", current.OriginatingOperatorID)
		return true, nil
	}

	match, err := s.matcher.FindNearest(ctx, current.PickupLocation.Coords(), current.RequiredOperatorID)
	if err != nil {
		return false, fmt.Errorf("booking %s: %w", bookingID, err)
	}
	if match == nil {
		return false, fmt.Errorf("booking %s: %w", bookingID, model.ErrNoDriverAvailable)
	}

	dist := match.DistanceM
	result.DistanceM = &dist
	in.driver = match.Driver
	in.method = model.DispatchAutoSystem
	return false, nil
}

// afterCommit runs the secondary effects of a committed transition.
func (s *BookingService) afterCommit(
	ctx context.Context,
	req ActionRequest,
	previous model.BookingStatus,
	b *model.Booking,
	driver *model.Driver,
	result *ActionResult,
) {
	warn := func(msg string, err error) {
		s.log.Warn(msg, zap.String("booking_id", b.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	switch req.Action {
	case model.ActionAssignDriver, model.ActionAutoAssignDriver:
		offer, err := s.offers.Issue(ctx, b, driver)
		if err != nil {
			warn("ride offer not issued", err)
		} else {
			result.Offer = s.confirmIssued(ctx, offer, result)
		}

	case model.ActionNotifyArrival:
		if req.DriverLocation != nil && b.DriverID != "" {
			if err := s.drivers.UpdateLocation(ctx, b.DriverID, *req.DriverLocation); err != nil {
				warn("driver location not updated", err)
			}
		}

	case model.ActionCompleteRide:
		if b.PaymentMethod == model.PaymentAccount && b.FinalCalculatedFare != nil {
			balance, err := s.credits.Debit(ctx, b.PassengerID, *b.FinalCalculatedFare)
			if err != nil {
				warn("credit account not debited", err)
			} else {
				s.log.Info("credit account debited",
					zap.String("booking_id", b.ID),
					zap.String("passenger_id", b.PassengerID),
					zap.Stringer("amount", *b.FinalCalculatedFare),
					zap.Stringer("balance", balance))
				if balance < 0 {
					s.log.Warn("credit account overdrawn",
						zap.String("passenger_id", b.PassengerID), zap.Stringer("balance", balance))
				}
			}
		}
	}

	if b.Status.IsTerminal() {
		if err := s.offers.Withdraw(ctx, b.ID); err != nil {
			warn("pending offers not withdrawn", err)
		}
	}

	if previous != b.Status && s.notifier != nil {
		if err := s.notifier.NotifyBookingStatus(ctx, b); err != nil {
			s.log.Warn("status notification failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
}

// confirmIssued re-reads the booking after its offer was inserted. A cancel
// or reassignment that committed in between has already run its own
// withdrawal, so the late offer is closed here. It returns the offer to
// report, nil when it was closed.
func (s *BookingService) confirmIssued(ctx context.Context, offer *model.RideOffer, result *ActionResult) *model.RideOffer {
	current, err := s.bookings.Get(ctx, offer.BookingID)
	if err != nil {
		s.log.Warn("booking not re-read after offer issue",
			zap.String("booking_id", offer.BookingID), zap.Error(err))
		return offer
	}

	switch {
	case current.Status.IsTerminal():
		err = s.offers.Withdraw(ctx, offer.BookingID)
	case current.DriverID != offer.DriverID:
		err = s.offers.Close(ctx, offer.ID)
	default:
		return offer
	}
	if err != nil {
		s.log.Warn("late offer not closed", zap.String("offer_id", offer.ID), zap.Error(err))
	}
	s.log.Info("booking moved on while offer was issued; offer closed",
		zap.String("booking_id", offer.BookingID),
		zap.String("offer_id", offer.ID),
		zap.String("status", string(current.Status)))
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("ride offer %s closed: booking is %s", offer.ID, current.Status))
	return nil
}

// ─── Offer answers ──────────────────────────────────────────

// errKeepBooking aborts a BookingStore.Update without writing.
var errKeepBooking = errors.New("booking unchanged")

// OfferResult is the outcome of RespondToOffer.
type OfferResult struct {
	Offer   *model.RideOffer
	Booking *model.Booking

	// Released is set when the booking went back to pending_assignment.
	Released bool
}

// RespondToOffer records the addressed driver's answer to an offer while
// holding the booking row lock, so the answer and the booking cannot
// disagree.
//
//   - A booking that is terminal or assigned to someone else closes the
//     offer and fails with model.ErrOfferClosed.
//   - Accepting leaves the booking as it is.
//   - Declining, or answering after the window, returns a driver_assigned
//     booking to pending_assignment. A late answer still fails with
//     model.ErrOfferExpired, alongside the result.
func (s *BookingService) RespondToOffer(ctx context.Context, offerID, driverID string, accept bool, actor model.Actor) (*OfferResult, error) {
	o, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.DriverID != driverID {
		return nil, fmt.Errorf("offer %s is addressed to another driver: %w", offerID, model.ErrForbidden)
	}

	res := &OfferResult{}
	var answerErr error

	txCtx, cancel := context.WithTimeout(ctx, DefaultBookingTimeout)
	defer cancel()

	updated, err := s.bookings.Update(txCtx, o.BookingID, func(b *model.Booking) error {
		res.Booking = b.Clone()
		if b.Status.IsTerminal() || b.DriverID != o.DriverID {
			return fmt.Errorf("offer %s no longer matches booking %s (%s): %w",
				offerID, b.ID, b.Status, model.ErrOfferClosed)
		}
		answered, err := s.offers.Respond(txCtx, offerID, driverID, accept)
		if err != nil && !errors.Is(err, model.ErrOfferExpired) {
			return err
		}
		res.Offer, answerErr = answered, err
		if answered.Status == model.OfferAccepted || b.Status != model.StatusDriverAssigned {
			return errKeepBooking
		}
		s.release(txCtx, b, actor)
		return nil
	})
	switch {
	case errors.Is(err, errKeepBooking):
		res.Booking = withDisplayID(res.Booking)
	case errors.Is(err, model.ErrOfferClosed):
		if cerr := s.offers.Close(ctx, offerID); cerr != nil {
			s.log.Warn("stale offer not closed", zap.String("offer_id", offerID), zap.Error(cerr))
		}
		return nil, err
	case err != nil:
		return nil, s.classifyError(o.BookingID, err)
	default:
		res.Booking = withDisplayID(updated)
		res.Released = true
		s.afterRelease(ctx, updated, res.Offer)
	}
	return res, answerErr
}

// ReleaseExpiredOffer returns the booking of an offer that expired
// unanswered to pending_assignment. Bookings that already moved on are left
// alone and reported as not released.
func (s *BookingService) ReleaseExpiredOffer(ctx context.Context, o *model.RideOffer) (bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultBookingTimeout)
	defer cancel()

	updated, err := s.bookings.Update(txCtx, o.BookingID, func(b *model.Booking) error {
		if b.Status != model.StatusDriverAssigned || b.DriverID != o.DriverID {
			return errKeepBooking
		}
		s.release(txCtx, b, model.SystemActor)
		return nil
	})
	if errors.Is(err, errKeepBooking) {
		return false, nil
	}
	if err != nil {
		return false, s.classifyError(o.BookingID, err)
	}
	s.afterRelease(ctx, updated, o)
	return true, nil
}

// release clears the driver from b. Auto-dispatching operators get a fresh
// no-driver deadline.
func (s *BookingService) release(ctx context.Context, b *model.Booking, actor model.Actor) {
	now := s.now()
	var timeoutAt *time.Time
	auto, err := s.policy.CanAutoAssign(ctx, b.OriginatingOperatorID)
	if err != nil {
		s.log.Warn("dispatch policy unavailable; released booking has no timeout",
			zap.String("booking_id", b.ID), zap.Error(err))
	}
	if auto {
		t := now.Add(s.noDriverTimeout)
		timeoutAt = &t
	}
	releaseDriver(b, timeoutAt)
	stampAudit(b, actor, now)
}

func (s *BookingService) afterRelease(ctx context.Context, b *model.Booking, o *model.RideOffer) {
	offerStatus := ""
	if o != nil {
		offerStatus = string(o.Status)
	}
	s.log.Info("booking released for reassignment",
		zap.String("booking_id", b.ID),
		zap.String("offer_status", offerStatus))
	if s.notifier != nil {
		if err := s.notifier.NotifyBookingStatus(ctx, b); err != nil {
			s.log.Warn("status notification failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
}

// ─── Creation ───────────────────────────────────────────────

// OfferDetails is the payload a booking is created from.
type OfferDetails struct {
	OperatorCode       string `json:"operatorCode" validate:"required,excludes=/"`
	RequiredOperatorID string `json:"requiredOperatorId,omitempty"`

	PassengerID    string `json:"passengerId" validate:"required"`
	PassengerName  string `json:"passengerName" validate:"required"`
	PassengerPhone string `json:"passengerPhone,omitempty"`

	PickupLocation  model.LocationPoint   `json:"pickupLocation"`
	DropoffLocation model.LocationPoint   `json:"dropoffLocation"`
	Stops           []model.LocationPoint `json:"stops" validate:"omitempty,dive"`
	Notes           string                `json:"notes,omitempty"`

	FareEstimate  model.Money         `json:"fareEstimate" validate:"gte=0"`
	PaymentMethod model.PaymentMethod `json:"paymentMethod" validate:"required,oneof=card cash account"`

	IsPriorityPickup  bool        `json:"isPriorityPickup"`
	PriorityFeeAmount model.Money `json:"priorityFeeAmount" validate:"gte=0"`

	WaitAndReturn                      bool `json:"waitAndReturn"`
	EstimatedAdditionalWaitTimeMinutes *int `json:"estimatedAdditionalWaitTimeMinutes,omitempty" validate:"omitempty,gte=0"`

	// AutoDispatch asks for an immediate auto_assign_driver after creation.
	AutoDispatch bool `json:"autoDispatch"`
}

func (d *OfferDetails) validate() error {
	switch {
	case strings.TrimSpace(d.OperatorCode) == "":
		return model.Invalid("operatorCode", "is required")
	case strings.TrimSpace(d.PassengerID) == "":
		return model.Invalid("passengerId", "is required")
	case d.PickupLocation.Address == "" || !validCoords(d.PickupLocation.Coords()):
		return model.Invalid("pickupLocation", "needs an address and valid coordinates")
	case d.DropoffLocation.Address == "" || !validCoords(d.DropoffLocation.Coords()):
		return model.Invalid("dropoffLocation", "needs an address and valid coordinates")
	case d.FareEstimate < 0:
		return model.Invalid("fareEstimate", "must not be negative")
	}
	switch d.PaymentMethod {
	case model.PaymentCard, model.PaymentCash, model.PaymentAccount:
	default:
		return model.Invalid("paymentMethod", "must be card, cash or account")
	}
	for i, st := range d.Stops {
		if st.Address == "" || !validCoords(st.Coords()) {
			return model.Invalid("stops", "stop %d needs an address and valid coordinates", i)
		}
	}
	return nil
}

// CreateResult is the outcome of CreateFromOffer.
type CreateResult struct {
	Booking *model.Booking

	// Assignment is set when AutoDispatch was requested and attempted.
	Assignment *ActionResult
	Warnings   []string
}

// CreateFromOffer persists a new pending booking with a fresh internal id
// and the operator's next display id.
//
// The fare estimate is priced server-side when the caller supplies none;
// account-paid jobs get a 4-digit PIN; bookings of auto-dispatching
// operators get timeoutAt = now + the no-driver timeout.
func (s *BookingService) CreateFromOffer(ctx context.Context, d OfferDetails, actor model.Actor) (*CreateResult, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	displayID, err := s.ids.Generate(ctx, d.OperatorCode)
	if err != nil {
		return nil, err
	}

	now := s.now()
	b := &model.Booking{
		ID:                    uuid.NewString(),
		DisplayBookingID:      displayID,
		PassengerID:           d.PassengerID,
		PassengerName:         d.PassengerName,
		PassengerPhone:        d.PassengerPhone,
		PickupLocation:        d.PickupLocation,
		DropoffLocation:       d.DropoffLocation,
		Stops:                 append([]model.LocationPoint{}, d.Stops...),
		Notes:                 d.Notes,
		FareEstimate:          d.FareEstimate,
		PaymentMethod:         d.PaymentMethod,
		IsPriorityPickup:      d.IsPriorityPickup,
		PriorityFeeAmount:     d.PriorityFeeAmount,
		WaitAndReturn:         d.WaitAndReturn,
		Status:                model.StatusPendingAssignment,
		StatusVersion:         1,
		OriginatingOperatorID: d.OperatorCode,
		RequiredOperatorID:    d.RequiredOperatorID,
		CreatedAt:             now,
	}
	if d.EstimatedAdditionalWaitTimeMinutes != nil {
		m := *d.EstimatedAdditionalWaitTimeMinutes
		b.EstimatedAdditionalWaitTimeMinutes = &m
	}
	b.DistanceMiles = geo.RouteDistanceMiles(geo.Itinerary(b.PickupLocation, b.Stops, b.DropoffLocation))

	if b.FareEstimate == 0 && s.pricing != nil {
		wait := 0
		if b.EstimatedAdditionalWaitTimeMinutes != nil {
			wait = *b.EstimatedAdditionalWaitTimeMinutes
		}
		b.FareEstimate = s.pricing.Estimate(FareRequest{
			PickupLocation:    b.PickupLocation,
			DropoffLocation:   b.DropoffLocation,
			Stops:             b.Stops,
			IsPriorityPickup:  b.IsPriorityPickup,
			PriorityFeeAmount: b.PriorityFeeAmount,
			WaitAndReturn:     b.WaitAndReturn,
			WaitMinutes:       wait,
		}).Total
	}

	if b.PaymentMethod == model.PaymentAccount {
		pin, err := newJobPin()
		if err != nil {
			return nil, fmt.Errorf("booking: generate account pin: %w", err)
		}
		b.AccountJobPin = pin
	}

	res := &CreateResult{}

	auto, err := s.policy.CanAutoAssign(ctx, d.OperatorCode)
	if err != nil {
		s.log.Warn("dispatch policy unavailable; booking created without timeout",
			zap.String("operator_id", d.OperatorCode), zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("dispatch policy unavailable: %v", err))
	}
	if auto {
		t := now.Add(s.noDriverTimeout)
		b.TimeoutAt = &t
	}

	stampAudit(b, actor, now)

	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("booking: create: %w", err)
	}

	s.log.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("display_id", b.DisplayBookingID),
		zap.String("operator_id", b.OriginatingOperatorID),
		zap.Stringer("fare_estimate", b.FareEstimate))

	res.Booking = b

	if d.AutoDispatch && auto {
		assignment, err := s.ApplyAction(ctx, b.ID, ActionRequest{
			Action:         model.ActionAutoAssignDriver,
			ExpectedStatus: model.StatusPendingAssignment,
			Actor:          actor,
		})
		switch {
		case err == nil:
			res.Assignment = assignment
			res.Booking = assignment.Booking
		case errors.Is(err, model.ErrNoDriverAvailable):
			res.Warnings = append(res.Warnings, "no driver available yet; booking stays pending")
		default:
			s.log.Warn("auto-dispatch after create failed", zap.String("booking_id", b.ID), zap.Error(err))
			res.Warnings = append(res.Warnings, fmt.Sprintf("auto-dispatch failed: %v", err))
		}
	}
	return res, nil
}

// ─── Reads ──────────────────────────────────────────────────

// Get returns the booking with a display id guaranteed present.
func (s *BookingService) Get(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, s.classifyError(bookingID, err)
	}
	return withDisplayID(b), nil
}

// ListActiveForDriver returns the driver's in-flight bookings. Drivers poll
// this to recover assignments whose offer never reached them.
func (s *BookingService) ListActiveForDriver(ctx context.Context, driverID string) ([]*model.Booking, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, model.Invalid("driverId", "is required")
	}
	list, err := s.bookings.ListActiveForDriver(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("booking: list active for driver %s: %w", driverID, err)
	}
	for i := range list {
		list[i] = withDisplayID(list[i])
	}
	return list, nil
}

// ─── Private helpers ────────────────────────────────────────

func withDisplayID(b *model.Booking) *model.Booking {
	if b.DisplayBookingID == "" {
		op := b.OriginatingOperatorID
		if op == "" {
			op = "LEGACY"
		}
		b.DisplayBookingID = LegacyDisplayID(op, b.ID)
	}
	return b
}

// newJobPin returns a uniformly random 4-digit PIN.
func newJobPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// classifyError maps store errors to the booking error taxonomy.
func (s *BookingService) classifyError(bookingID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("booking %s: %w", bookingID, model.ErrBookingTimeout)
	}
	var te *model.TransitionError
	if errors.As(err, &te) || errors.Is(err, model.ErrValidation) {
		return err
	}
	if errors.Is(err, model.ErrBookingNotFound) {
		return fmt.Errorf("booking %s: %w", bookingID, model.ErrBookingNotFound)
	}
	return fmt.Errorf("booking %s: %w", bookingID, err)
}
