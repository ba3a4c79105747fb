package handler

import (
	"time"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// Timestamp is the wire form of an instant: whole seconds since the Unix
// epoch plus the nanosecond remainder.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int   `json:"nanoseconds"`
}

// NewTimestamp converts t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: t.Nanosecond()}
}

func optTimestamp(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := NewTimestamp(*t)
	return &ts
}

// BookingView is the serialized booking projection.
type BookingView struct {
	ID               string `json:"id"`
	DisplayBookingID string `json:"displayBookingId"`

	PassengerID    string `json:"passengerId"`
	PassengerName  string `json:"passengerName"`
	PassengerPhone string `json:"passengerPhone,omitempty"`

	DriverID             string                `json:"driverId,omitempty"`
	DriverName           string                `json:"driverName,omitempty"`
	DriverVehicleDetails *model.VehicleDetails `json:"driverVehicleDetails,omitempty"`

	PickupLocation  model.LocationPoint   `json:"pickupLocation"`
	DropoffLocation model.LocationPoint   `json:"dropoffLocation"`
	Stops           []model.LocationPoint `json:"stops"`
	DistanceMiles   float64               `json:"distanceMiles"`
	Notes           string                `json:"notes,omitempty"`

	FareEstimate        model.Money         `json:"fareEstimate"`
	FinalCalculatedFare *model.Money        `json:"finalCalculatedFare,omitempty"`
	PaymentMethod       model.PaymentMethod `json:"paymentMethod"`
	AccountJobPin       string              `json:"accountJobPin,omitempty"`

	IsPriorityPickup  bool        `json:"isPriorityPickup"`
	PriorityFeeAmount model.Money `json:"priorityFeeAmount"`

	WaitAndReturn                      bool `json:"waitAndReturn"`
	EstimatedAdditionalWaitTimeMinutes *int `json:"estimatedAdditionalWaitTimeMinutes,omitempty"`

	Status        model.BookingStatus `json:"status"`
	StatusVersion int                 `json:"statusVersion"`

	DriverCurrentLegIndex    int                  `json:"driverCurrentLegIndex"`
	CurrentLegEntryTimestamp *Timestamp           `json:"currentLegEntryTimestamp,omitempty"`
	CompletedStopWaitCharges map[int]model.Money  `json:"completedStopWaitCharges,omitempty"`
	WaitingChargeAtPickup    *model.Money         `json:"waitingChargeAtPickup,omitempty"`
	NoShowFeeApplicable      bool                 `json:"noShowFeeApplicable"`
	OriginatingOperatorID    string               `json:"originatingOperatorId"`
	RequiredOperatorID       string               `json:"requiredOperatorId,omitempty"`
	DispatchMethod           model.DispatchMethod `json:"dispatchMethod,omitempty"`
	TimeoutAt                *Timestamp           `json:"timeoutAt,omitempty"`

	BookingTimestamp                      Timestamp  `json:"bookingTimestamp"`
	NotifiedPassengerArrivalTimestamp     *Timestamp `json:"notifiedPassengerArrivalTimestamp,omitempty"`
	PassengerAcknowledgedArrivalTimestamp *Timestamp `json:"passengerAcknowledgedArrivalTimestamp,omitempty"`
	RideStartedAt                         *Timestamp `json:"rideStartedAt,omitempty"`
	CompletedAt                           *Timestamp `json:"completedAt,omitempty"`
	CancelledAt                           *Timestamp `json:"cancelledAt,omitempty"`

	LastUpdatedBy     string         `json:"lastUpdatedBy,omitempty"`
	LastUpdatedByRole model.UserRole `json:"lastUpdatedByRole,omitempty"`
	UpdateChannel     string         `json:"updateChannel,omitempty"`
	UpdatedAt         Timestamp      `json:"updatedAt"`
}

// NewBookingView serializes b. Bookings reach it through BookingService,
// which fills in legacy display ids.
func NewBookingView(b *model.Booking) BookingView {
	stops := b.Stops
	if stops == nil {
		stops = []model.LocationPoint{}
	}

	return BookingView{
		ID:                                    b.ID,
		DisplayBookingID:                      b.DisplayBookingID,
		PassengerID:                           b.PassengerID,
		PassengerName:                         b.PassengerName,
		PassengerPhone:                        b.PassengerPhone,
		DriverID:                              b.DriverID,
		DriverName:                            b.DriverName,
		DriverVehicleDetails:                  b.DriverVehicleDetails,
		PickupLocation:                        b.PickupLocation,
		DropoffLocation:                       b.DropoffLocation,
		Stops:                                 stops,
		DistanceMiles:                         b.DistanceMiles,
		Notes:                                 b.Notes,
		FareEstimate:                          b.FareEstimate,
		FinalCalculatedFare:                   b.FinalCalculatedFare,
		PaymentMethod:                         b.PaymentMethod,
		AccountJobPin:                         b.AccountJobPin,
		IsPriorityPickup:                      b.IsPriorityPickup,
		PriorityFeeAmount:                     b.PriorityFeeAmount,
		WaitAndReturn:                         b.WaitAndReturn,
		EstimatedAdditionalWaitTimeMinutes:    b.EstimatedAdditionalWaitTimeMinutes,
		Status:                                b.Status,
		StatusVersion:                         b.StatusVersion,
		DriverCurrentLegIndex:                 b.DriverCurrentLegIndex,
		CurrentLegEntryTimestamp:              optTimestamp(b.CurrentLegEntryTimestamp),
		CompletedStopWaitCharges:              b.CompletedStopWaitCharges,
		WaitingChargeAtPickup:                 b.WaitingChargeAtPickup,
		NoShowFeeApplicable:                   b.NoShowFeeApplicable,
		OriginatingOperatorID:                 b.OriginatingOperatorID,
		RequiredOperatorID:                    b.RequiredOperatorID,
		DispatchMethod:                        b.DispatchMethod,
		TimeoutAt:                             optTimestamp(b.TimeoutAt),
		BookingTimestamp:                      NewTimestamp(b.CreatedAt),
		NotifiedPassengerArrivalTimestamp:     optTimestamp(b.NotifiedPassengerArrivalAt),
		PassengerAcknowledgedArrivalTimestamp: optTimestamp(b.PassengerAcknowledgedArrivalAt),
		RideStartedAt:                         optTimestamp(b.RideStartedAt),
		CompletedAt:                           optTimestamp(b.CompletedAt),
		CancelledAt:                           optTimestamp(b.CancelledAt),
		LastUpdatedBy:                         b.LastUpdatedBy,
		LastUpdatedByRole:                     b.LastUpdatedByRole,
		UpdateChannel:                         b.UpdateChannel,
		UpdatedAt:                             NewTimestamp(b.UpdatedAt),
	}
}

// OfferView is the serialized ride offer.
type OfferView struct {
	ID          string              `json:"id"`
	BookingID   string              `json:"bookingId"`
	DriverID    string              `json:"driverId"`
	Snapshot    model.OfferSnapshot `json:"snapshot"`
	Status      model.OfferStatus   `json:"status"`
	CreatedAt   Timestamp           `json:"createdAt"`
	ExpiresAt   Timestamp           `json:"expiresAt"`
	RespondedAt *Timestamp          `json:"respondedAt,omitempty"`
}

// NewOfferView serializes o.
func NewOfferView(o *model.RideOffer) OfferView {
	return OfferView{
		ID:          o.ID,
		BookingID:   o.BookingID,
		DriverID:    o.DriverID,
		Snapshot:    o.Snapshot,
		Status:      o.Status,
		CreatedAt:   NewTimestamp(o.CreatedAt),
		ExpiresAt:   NewTimestamp(o.ExpiresAt),
		RespondedAt: optTimestamp(o.RespondedAt),
	}
}

// OfferAnswerResponse is the body returned by an offer answer.
type OfferAnswerResponse struct {
	Offer    OfferView   `json:"offer"`
	Booking  BookingView `json:"booking"`
	Released bool        `json:"released"`
}

// NewOfferAnswerResponse serializes res.
func NewOfferAnswerResponse(res *service.OfferResult) OfferAnswerResponse {
	return OfferAnswerResponse{
		Offer:    NewOfferView(res.Offer),
		Booking:  NewBookingView(res.Booking),
		Released: res.Released,
	}
}

// ActionResponse is the body returned by an applied booking action.
type ActionResponse struct {
	Booking                  BookingView `json:"booking"`
	Offer                    *OfferView  `json:"offer,omitempty"`
	DistanceMeters           *float64    `json:"distanceMeters,omitempty"`
	ManualAssignmentRequired bool        `json:"manualAssignmentRequired,omitempty"`
	Message                  string      `json:"message,omitempty"`
	Warnings                 []string    `json:"warnings,omitempty"`
}

// NewActionResponse serializes res.
func NewActionResponse(res *service.ActionResult) ActionResponse {
	out := ActionResponse{
		Booking:                  NewBookingView(res.Booking),
		DistanceMeters:           res.DistanceM,
		ManualAssignmentRequired: res.ManualAssignmentRequired,
		Message:                  res.Message,
		Warnings:                 res.Warnings,
	}
	if res.Offer != nil {
		ov := NewOfferView(res.Offer)
		out.Offer = &ov
	}
	return out
}

// CreateResponse is the body returned by booking creation.
type CreateResponse struct {
	Booking    BookingView     `json:"booking"`
	Assignment *ActionResponse `json:"assignment,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// NewCreateResponse serializes res.
func NewCreateResponse(res *service.CreateResult) CreateResponse {
	out := CreateResponse{Booking: NewBookingView(res.Booking), Warnings: res.Warnings}
	if res.Assignment != nil {
		ar := NewActionResponse(res.Assignment)
		out.Assignment = &ar
	}
	return out
}
