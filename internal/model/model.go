// Package model contains domain models for the ride dispatch system.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

type UserRole string

const (
	RolePassenger UserRole = "passenger"
	RoleDriver    UserRole = "driver"
	RoleOperator  UserRole = "operator"
	RoleAdmin     UserRole = "admin"
	RoleSystem    UserRole = "system"
)

type BookingStatus string

const (
	StatusPendingAssignment            BookingStatus = "pending_assignment"
	StatusDriverAssigned               BookingStatus = "driver_assigned"
	StatusArrivedAtPickup              BookingStatus = "arrived_at_pickup"
	StatusInProgress                   BookingStatus = "in_progress"
	StatusPendingWaitAndReturnApproval BookingStatus = "pending_driver_wait_and_return_approval"
	StatusInProgressWaitAndReturn      BookingStatus = "in_progress_wait_and_return"
	StatusCompleted                    BookingStatus = "completed"
	StatusCancelledByDriver            BookingStatus = "cancelled_by_driver"
	StatusCancelledByOperator          BookingStatus = "cancelled_by_operator"
	StatusCancelledNoShow              BookingStatus = "cancelled_no_show"
	StatusCancelledNoDriver            BookingStatus = "cancelled_no_driver"
)

// IsTerminal reports whether no further action can move the booking.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelledByDriver, StatusCancelledByOperator,
		StatusCancelledNoShow, StatusCancelledNoDriver:
		return true
	}
	return false
}

// IsValid reports whether s is one of the known statuses.
func (s BookingStatus) IsValid() bool {
	switch s {
	case StatusPendingAssignment, StatusDriverAssigned, StatusArrivedAtPickup,
		StatusInProgress, StatusPendingWaitAndReturnApproval, StatusInProgressWaitAndReturn:
		return true
	}
	return s.IsTerminal()
}

type PaymentMethod string

const (
	PaymentCard    PaymentMethod = "card"
	PaymentCash    PaymentMethod = "cash"
	PaymentAccount PaymentMethod = "account"
)

type DispatchMethod string

const (
	DispatchAutoSystem       DispatchMethod = "auto_system"
	DispatchManualOperator   DispatchMethod = "manual_operator"
	DispatchPriorityOverride DispatchMethod = "priority_override"
)

type DispatchMode string

const (
	DispatchModeAuto   DispatchMode = "auto"
	DispatchModeManual DispatchMode = "manual"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferExpired  OfferStatus = "expired"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
)

type DriverStatus string

const (
	DriverActive   DriverStatus = "Active"
	DriverInactive DriverStatus = "Inactive"
	DriverPending  DriverStatus = "Pending Approval"
)

// ─── Location ───────────────────────────────────────────────

// Coordinates is a WGS-84 point.
type Coordinates struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// LocationPoint is a geocoded address as used for pickup, dropoff and stops.
type LocationPoint struct {
	Address    string  `json:"address" validate:"required"`
	Latitude   float64 `json:"latitude" validate:"latitude"`
	Longitude  float64 `json:"longitude" validate:"longitude"`
	DoorOrFlat string  `json:"doorOrFlat,omitempty"`
}

// Coords returns the point's coordinates.
func (p LocationPoint) Coords() Coordinates {
	return Coordinates{Lat: p.Latitude, Lng: p.Longitude}
}

// ─── Domain Models ──────────────────────────────────────────

// VehicleDetails is the driver's vehicle as shown to the passenger.
type VehicleDetails struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Color        string `json:"color,omitempty"`
	Registration string `json:"registration,omitempty"`
	VehicleType  string `json:"vehicleType,omitempty"`
}

// Driver maps to the `drivers` table.
type Driver struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Phone        string         `json:"phone,omitempty"`
	Status       DriverStatus   `json:"status"`
	OperatorCode string         `json:"operatorCode"`
	Location     *Coordinates   `json:"location,omitempty"`
	Vehicle      VehicleDetails `json:"vehicle"`
	DeviceToken  string         `json:"-"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Booking maps to the `bookings` table.
//
// Leg indexing: 0 is en route to pickup, 1..N are the legs between the N
// intermediate stops, N+1 is the final leg to the dropoff.
type Booking struct {
	ID               string `json:"id"`
	DisplayBookingID string `json:"displayBookingId"`

	PassengerID    string `json:"passengerId"`
	PassengerName  string `json:"passengerName"`
	PassengerPhone string `json:"passengerPhone,omitempty"`

	DriverID             string          `json:"driverId,omitempty"`
	DriverName           string          `json:"driverName,omitempty"`
	DriverVehicleDetails *VehicleDetails `json:"driverVehicleDetails,omitempty"`

	PickupLocation  LocationPoint   `json:"pickupLocation"`
	DropoffLocation LocationPoint   `json:"dropoffLocation"`
	Stops           []LocationPoint `json:"stops"`
	DistanceMiles   float64         `json:"distanceMiles,omitempty"`
	Notes           string          `json:"notes,omitempty"`

	FareEstimate        Money         `json:"fareEstimate"`
	FinalCalculatedFare *Money        `json:"finalCalculatedFare,omitempty"`
	PaymentMethod       PaymentMethod `json:"paymentMethod"`
	AccountJobPin       string        `json:"accountJobPin,omitempty"`

	IsPriorityPickup  bool  `json:"isPriorityPickup"`
	PriorityFeeAmount Money `json:"priorityFeeAmount,omitempty"`

	WaitAndReturn                      bool `json:"waitAndReturn"`
	EstimatedAdditionalWaitTimeMinutes *int `json:"estimatedAdditionalWaitTimeMinutes,omitempty"`

	Status        BookingStatus `json:"status"`
	StatusVersion int           `json:"statusVersion"`

	DriverCurrentLegIndex    int           `json:"driverCurrentLegIndex"`
	CurrentLegEntryTimestamp *time.Time    `json:"currentLegEntryTimestamp,omitempty"`
	CompletedStopWaitCharges map[int]Money `json:"completedStopWaitCharges,omitempty"`
	WaitingChargeAtPickup    *Money        `json:"waitingChargeAtPickup,omitempty"`
	NoShowFeeApplicable      bool          `json:"noShowFeeApplicable"`

	OriginatingOperatorID string         `json:"originatingOperatorId"`
	RequiredOperatorID    string         `json:"requiredOperatorId,omitempty"`
	DispatchMethod        DispatchMethod `json:"dispatchMethod,omitempty"`
	TimeoutAt             *time.Time     `json:"timeoutAt,omitempty"`

	CreatedAt                      time.Time  `json:"bookingTimestamp"`
	NotifiedPassengerArrivalAt     *time.Time `json:"notifiedPassengerArrivalTimestamp,omitempty"`
	PassengerAcknowledgedArrivalAt *time.Time `json:"passengerAcknowledgedArrivalTimestamp,omitempty"`
	RideStartedAt                  *time.Time `json:"rideStartedAt,omitempty"`
	CompletedAt                    *time.Time `json:"completedAt,omitempty"`
	CancelledAt                    *time.Time `json:"cancelledAt,omitempty"`

	LastUpdatedBy     string    `json:"lastUpdatedBy,omitempty"`
	LastUpdatedByRole UserRole  `json:"lastUpdatedByRole,omitempty"`
	UpdateChannel     string    `json:"updateChannel,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// FinalLegIndex is the leg index of the last leg (to the dropoff).
func (b *Booking) FinalLegIndex() int {
	return len(b.Stops) + 1
}

// OfferSnapshot is the denormalized copy of a booking carried by a ride offer,
// enough for a driver to decide without fetching the booking.
type OfferSnapshot struct {
	PickupLocation     LocationPoint   `json:"pickupLocation"`
	DropoffLocation    LocationPoint   `json:"dropoffLocation"`
	Stops              []LocationPoint `json:"stops"`
	FareEstimate       Money           `json:"fareEstimate"`
	PassengerID        string          `json:"passengerId"`
	PassengerName      string          `json:"passengerName"`
	PassengerPhone     string          `json:"passengerPhone,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
	IsPriorityPickup   bool            `json:"isPriorityPickup"`
	PriorityFeeAmount  Money           `json:"priorityFeeAmount,omitempty"`
	DistanceMiles      float64         `json:"distanceMiles,omitempty"`
	RequiredOperatorID string          `json:"requiredOperatorId,omitempty"`
	AccountJobPin      string          `json:"accountJobPin,omitempty"`
	DisplayBookingID   string          `json:"displayBookingId"`
}

// RideOffer maps to the `ride_offers` table.
type RideOffer struct {
	ID          string        `json:"id"`
	BookingID   string        `json:"bookingId"`
	DriverID    string        `json:"driverId"`
	Snapshot    OfferSnapshot `json:"snapshot"`
	Status      OfferStatus   `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
}

// IsExpiredAt reports whether the offer's window has closed at now.
func (o *RideOffer) IsExpiredAt(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// OperatorSetting maps to the `operator_settings` table.
type OperatorSetting struct {
	OperatorID   string       `json:"operatorId"`
	DispatchMode DispatchMode `json:"dispatchMode"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// CreditAccount maps to the `credit_accounts` table.
type CreditAccount struct {
	PassengerID string    `json:"passengerId"`
	Balance     Money     `json:"balance"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Actor identifies who issued a mutation and through which channel.
type Actor struct {
	ID      string
	Role    UserRole
	Channel string
}

// SystemActor is used for mutations made by background sweepers.
var SystemActor = Actor{ID: "system", Role: RoleSystem, Channel: "system"}

// Clone returns a deep copy of b.
func (b *Booking) Clone() *Booking {
	c := *b
	if b.DriverVehicleDetails != nil {
		v := *b.DriverVehicleDetails
		c.DriverVehicleDetails = &v
	}
	if b.Stops != nil {
		c.Stops = append([]LocationPoint(nil), b.Stops...)
	}
	if b.CompletedStopWaitCharges != nil {
		c.CompletedStopWaitCharges = make(map[int]Money, len(b.CompletedStopWaitCharges))
		for k, v := range b.CompletedStopWaitCharges {
			c.CompletedStopWaitCharges[k] = v
		}
	}
	c.FinalCalculatedFare = cloneMoney(b.FinalCalculatedFare)
	c.WaitingChargeAtPickup = cloneMoney(b.WaitingChargeAtPickup)
	if b.EstimatedAdditionalWaitTimeMinutes != nil {
		m := *b.EstimatedAdditionalWaitTimeMinutes
		c.EstimatedAdditionalWaitTimeMinutes = &m
	}
	c.CurrentLegEntryTimestamp = cloneTime(b.CurrentLegEntryTimestamp)
	c.TimeoutAt = cloneTime(b.TimeoutAt)
	c.NotifiedPassengerArrivalAt = cloneTime(b.NotifiedPassengerArrivalAt)
	c.PassengerAcknowledgedArrivalAt = cloneTime(b.PassengerAcknowledgedArrivalAt)
	c.RideStartedAt = cloneTime(b.RideStartedAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	return &c
}

// Clone returns a deep copy of o.
func (o *RideOffer) Clone() *RideOffer {
	c := *o
	if o.Snapshot.Stops != nil {
		c.Snapshot.Stops = append([]LocationPoint(nil), o.Snapshot.Stops...)
	}
	c.RespondedAt = cloneTime(o.RespondedAt)
	return &c
}

// Clone returns a deep copy of d.
func (d *Driver) Clone() *Driver {
	c := *d
	if d.Location != nil {
		l := *d.Location
		c.Location = &l
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMoney(m *Money) *Money {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}
