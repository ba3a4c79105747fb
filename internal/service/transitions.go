package service

import (
	"time"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/geo"
)

// ─── Transition Table ───────────────────────────────────────
//
//	assign_driver / auto_assign_driver  pending_assignment → driver_assigned
//	notify_arrival                      driver_assigned → arrived_at_pickup
//	start_ride                          arrived_at_pickup | pending W&R approval → in_progress | in_progress_wait_and_return
//	proceed_to_next_leg                 in_progress | in_progress_wait_and_return → (unchanged)
//	request_wait_and_return             in_progress → pending W&R approval
//	accept_wait_and_return              pending W&R approval → in_progress_wait_and_return
//	decline_wait_and_return             pending W&R approval → in_progress
//	complete_ride                       in_progress | in_progress_wait_and_return → completed
//	cancel_active                       any assigned, non-terminal state → cancelled_by_driver
//	report_no_show                      arrived_at_pickup → cancelled_no_show
//	operator_cancel_pending             pending_assignment → cancelled_by_operator
//	acknowledge_arrival                 arrived_at_pickup → (unchanged), once
//	update_details                      any non-terminal state → (unchanged)
//	expire_no_driver                    pending_assignment past timeoutAt → cancelled_no_driver

var activeStatuses = []model.BookingStatus{
	model.StatusPendingAssignment,
	model.StatusDriverAssigned,
	model.StatusArrivedAtPickup,
	model.StatusInProgress,
	model.StatusPendingWaitAndReturnApproval,
	model.StatusInProgressWaitAndReturn,
}

var validFrom = map[model.Action][]model.BookingStatus{
	model.ActionAssignDriver:     {model.StatusPendingAssignment},
	model.ActionAutoAssignDriver: {model.StatusPendingAssignment},
	model.ActionNotifyArrival:    {model.StatusDriverAssigned},
	model.ActionStartRide:        {model.StatusArrivedAtPickup, model.StatusPendingWaitAndReturnApproval},
	model.ActionProceedToNextLeg: {model.StatusInProgress, model.StatusInProgressWaitAndReturn},

	model.ActionRequestWaitAndReturn: {model.StatusInProgress},
	model.ActionAcceptWaitAndReturn:  {model.StatusPendingWaitAndReturnApproval},
	model.ActionDeclineWaitAndReturn: {model.StatusPendingWaitAndReturnApproval},

	model.ActionCompleteRide: {model.StatusInProgress, model.StatusInProgressWaitAndReturn},
	model.ActionCancelActive: {
		model.StatusDriverAssigned,
		model.StatusArrivedAtPickup,
		model.StatusInProgress,
		model.StatusPendingWaitAndReturnApproval,
		model.StatusInProgressWaitAndReturn,
	},
	model.ActionReportNoShow:          {model.StatusArrivedAtPickup},
	model.ActionOperatorCancelPending: {model.StatusPendingAssignment},
	model.ActionAcknowledgeArrival:    {model.StatusArrivedAtPickup},
	model.ActionUpdateDetails:         activeStatuses,
	model.ActionExpireNoDriver:        {model.StatusPendingAssignment},
}

// CanApply reports whether action is valid from status.
func CanApply(action model.Action, status model.BookingStatus) bool {
	for _, s := range validFrom[action] {
		if s == status {
			return true
		}
	}
	return false
}

// ─── Request Types ──────────────────────────────────────────

// ActionRequest is one state-machine command against a booking. Only the
// fields relevant to Action are read.
type ActionRequest struct {
	Action model.Action `json:"action"`

	// ExpectedStatus, when set, must equal the stored status or the request
	// fails with model.ErrStaleStatus.
	ExpectedStatus model.BookingStatus `json:"expectedStatus,omitempty"`

	DriverID         string             `json:"driverId,omitempty"`
	PriorityOverride bool               `json:"priorityOverride,omitempty"`
	DriverLocation   *model.Coordinates `json:"driverLocation,omitempty"`

	LegIndex       *int         `json:"legIndex,omitempty"`
	StopWaitCharge *model.Money `json:"stopWaitCharge,omitempty"`

	EstimatedWaitMinutes *int `json:"estimatedAdditionalWaitTimeMinutes,omitempty"`

	FinalFare             *model.Money `json:"finalFare,omitempty"`
	WaitingChargeAtPickup *model.Money `json:"waitingChargeAtPickup,omitempty"`

	Details *DetailsPatch `json:"details,omitempty"`

	Actor model.Actor `json:"-"`
}

// DetailsPatch edits non-status booking fields.
type DetailsPatch struct {
	PassengerName  *string                `json:"passengerName,omitempty"`
	PassengerPhone *string                `json:"passengerPhone,omitempty"`
	Notes          *string                `json:"notes,omitempty"`
	FareEstimate   *model.Money           `json:"fareEstimate,omitempty"`
	Stops          *[]model.LocationPoint `json:"stops,omitempty"`
	Vehicle        *model.VehicleDetails  `json:"driverVehicleDetails,omitempty"`
}

func (p *DetailsPatch) empty() bool {
	return p.PassengerName == nil && p.PassengerPhone == nil && p.Notes == nil &&
		p.FareEstimate == nil && p.Stops == nil && p.Vehicle == nil
}

// ─── Validation ─────────────────────────────────────────────

// validateRequest performs the checks that need no stored state.
func validateRequest(req ActionRequest) error {
	if req.Action == "" {
		return model.Invalid("action", "is required")
	}
	if !req.Action.IsValid() {
		return model.Invalid("action", "unknown action %q", req.Action)
	}
	if req.ExpectedStatus != "" && !req.ExpectedStatus.IsValid() {
		return model.Invalid("expectedStatus", "unknown status %q", req.ExpectedStatus)
	}

	switch req.Action {
	case model.ActionAssignDriver:
		if req.DriverID == "" {
			return model.Invalid("driverId", "is required for %s", req.Action)
		}
	case model.ActionNotifyArrival:
		if l := req.DriverLocation; l != nil && !validCoords(*l) {
			return model.Invalid("driverLocation", "coordinates out of range")
		}
	case model.ActionStartRide:
		if req.LegIndex != nil && *req.LegIndex < 1 {
			return model.Invalid("legIndex", "must be at least 1")
		}
	case model.ActionProceedToNextLeg:
		if req.LegIndex == nil {
			return model.Invalid("legIndex", "is required for %s", req.Action)
		}
		if *req.LegIndex < 1 {
			return model.Invalid("legIndex", "must be at least 1")
		}
		if req.StopWaitCharge != nil && *req.StopWaitCharge < 0 {
			return model.Invalid("stopWaitCharge", "must not be negative")
		}
	case model.ActionRequestWaitAndReturn:
		if req.EstimatedWaitMinutes == nil || *req.EstimatedWaitMinutes <= 0 {
			return model.Invalid("estimatedAdditionalWaitTimeMinutes", "must be a positive number of minutes")
		}
	case model.ActionCompleteRide:
		if req.FinalFare == nil {
			return model.Invalid("finalFare", "is required for %s", req.Action)
		}
		if *req.FinalFare < 0 {
			return model.Invalid("finalFare", "must not be negative")
		}
		if req.WaitingChargeAtPickup != nil && *req.WaitingChargeAtPickup < 0 {
			return model.Invalid("waitingChargeAtPickup", "must not be negative")
		}
	case model.ActionUpdateDetails:
		if req.Details == nil || req.Details.empty() {
			return model.Invalid("details", "at least one field is required for %s", req.Action)
		}
		if f := req.Details.FareEstimate; f != nil && *f < 0 {
			return model.Invalid("details.fareEstimate", "must not be negative")
		}
		if req.Details.Stops != nil {
			for i, s := range *req.Details.Stops {
				if s.Address == "" || !validCoords(s.Coords()) {
					return model.Invalid("details.stops", "stop %d needs an address and valid coordinates", i)
				}
			}
		}
	}
	return nil
}

func validCoords(c model.Coordinates) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// ─── Apply ──────────────────────────────────────────────────

// transitionInput carries what the transition needs beyond the request:
// the clock reading and, for assignment, the already-resolved driver.
type transitionInput struct {
	now    time.Time
	driver *model.Driver
	method model.DispatchMethod
}

func precondition(action model.Action, current model.BookingStatus, reason string) error {
	return &model.TransitionError{Action: action, Current: current, Err: model.ErrInvalidTransition, Reason: reason}
}

// releaseDriver returns a driver_assigned booking to pending_assignment
// after its offer was declined or expired. timeoutAt is the new no-driver
// deadline, nil for manually dispatching operators.
func releaseDriver(b *model.Booking, timeoutAt *time.Time) {
	b.DriverID = ""
	b.DriverName = ""
	b.DriverVehicleDetails = nil
	b.DispatchMethod = ""
	b.TimeoutAt = timeoutAt
	b.Status = model.StatusPendingAssignment
}

// applyTransition mutates b for req. It has no side effects outside b.
func applyTransition(b *model.Booking, req ActionRequest, in transitionInput) error {
	if !CanApply(req.Action, b.Status) {
		return precondition(req.Action, b.Status, "")
	}
	now := in.now

	switch req.Action {
	case model.ActionAssignDriver, model.ActionAutoAssignDriver:
		d := in.driver
		vehicle := d.Vehicle
		b.DriverID = d.ID
		b.DriverName = d.Name
		b.DriverVehicleDetails = &vehicle
		b.DispatchMethod = in.method
		b.Status = model.StatusDriverAssigned
		b.TimeoutAt = nil

	case model.ActionNotifyArrival:
		b.Status = model.StatusArrivedAtPickup
		b.NotifiedPassengerArrivalAt = &now

	case model.ActionStartRide:
		// Starting from a pending wait-and-return request drops the request.
		if b.Status == model.StatusPendingWaitAndReturnApproval {
			b.EstimatedAdditionalWaitTimeMinutes = nil
		}
		leg := b.DriverCurrentLegIndex
		if leg < 1 {
			leg = 1
		}
		if req.LegIndex != nil {
			leg = *req.LegIndex
		}
		if leg > b.FinalLegIndex() {
			return model.Invalid("legIndex", "booking has %d legs, got %d", b.FinalLegIndex(), leg)
		}
		if leg < b.DriverCurrentLegIndex {
			return precondition(req.Action, b.Status, "leg index cannot move backwards")
		}
		if leg != b.DriverCurrentLegIndex || b.CurrentLegEntryTimestamp == nil {
			b.CurrentLegEntryTimestamp = &now
		}
		b.DriverCurrentLegIndex = leg
		if b.RideStartedAt == nil {
			b.RideStartedAt = &now
		}
		if b.WaitAndReturn {
			b.Status = model.StatusInProgressWaitAndReturn
		} else {
			b.Status = model.StatusInProgress
		}

	case model.ActionProceedToNextLeg:
		leg := *req.LegIndex
		if leg <= b.DriverCurrentLegIndex {
			return precondition(req.Action, b.Status, "leg index must advance")
		}
		if leg > b.FinalLegIndex() {
			return model.Invalid("legIndex", "booking has %d legs, got %d", b.FinalLegIndex(), leg)
		}
		// Entering leg k means the driver just left stop k-1 (1-based),
		// which is index k-2 in Stops.
		if req.StopWaitCharge != nil && leg >= 2 {
			if b.CompletedStopWaitCharges == nil {
				b.CompletedStopWaitCharges = make(map[int]model.Money)
			}
			b.CompletedStopWaitCharges[leg-2] = *req.StopWaitCharge
		}
		b.DriverCurrentLegIndex = leg
		b.CurrentLegEntryTimestamp = &now

	case model.ActionRequestWaitAndReturn:
		minutes := *req.EstimatedWaitMinutes
		b.EstimatedAdditionalWaitTimeMinutes = &minutes
		b.Status = model.StatusPendingWaitAndReturnApproval

	case model.ActionAcceptWaitAndReturn:
		b.WaitAndReturn = true
		b.Status = model.StatusInProgressWaitAndReturn

	case model.ActionDeclineWaitAndReturn:
		b.WaitAndReturn = false
		b.EstimatedAdditionalWaitTimeMinutes = nil
		b.Status = model.StatusInProgress

	case model.ActionCompleteRide:
		fare := *req.FinalFare
		b.FareEstimate = fare
		b.FinalCalculatedFare = &fare
		if req.WaitingChargeAtPickup != nil {
			charge := *req.WaitingChargeAtPickup
			b.WaitingChargeAtPickup = &charge
		}
		b.CurrentLegEntryTimestamp = nil
		b.CompletedAt = &now
		b.Status = model.StatusCompleted

	case model.ActionCancelActive:
		b.CancelledAt = &now
		b.CurrentLegEntryTimestamp = nil
		b.Status = model.StatusCancelledByDriver

	case model.ActionReportNoShow:
		b.NoShowFeeApplicable = true
		b.CancelledAt = &now
		b.CurrentLegEntryTimestamp = nil
		b.Status = model.StatusCancelledNoShow

	case model.ActionOperatorCancelPending:
		b.CancelledAt = &now
		b.TimeoutAt = nil
		b.Status = model.StatusCancelledByOperator

	case model.ActionAcknowledgeArrival:
		if b.PassengerAcknowledgedArrivalAt != nil {
			return precondition(req.Action, b.Status, "arrival already acknowledged")
		}
		b.PassengerAcknowledgedArrivalAt = &now

	case model.ActionUpdateDetails:
		return applyDetails(b, req.Details)

	case model.ActionExpireNoDriver:
		if b.TimeoutAt == nil || now.Before(*b.TimeoutAt) {
			return precondition(req.Action, b.Status, "no-driver timeout not reached")
		}
		b.CancelledAt = &now
		b.Status = model.StatusCancelledNoDriver
	}
	return nil
}

func applyDetails(b *model.Booking, p *DetailsPatch) error {
	if p.Stops != nil {
		if b.Status != model.StatusPendingAssignment && b.Status != model.StatusDriverAssigned {
			return precondition(model.ActionUpdateDetails, b.Status, "stops can only change before pickup")
		}
		b.Stops = append([]model.LocationPoint{}, (*p.Stops)...)
		b.DistanceMiles = geo.RouteDistanceMiles(geo.Itinerary(b.PickupLocation, b.Stops, b.DropoffLocation))
	}
	if p.PassengerName != nil {
		b.PassengerName = *p.PassengerName
	}
	if p.PassengerPhone != nil {
		b.PassengerPhone = *p.PassengerPhone
	}
	if p.Notes != nil {
		b.Notes = *p.Notes
	}
	if p.FareEstimate != nil {
		b.FareEstimate = *p.FareEstimate
	}
	if p.Vehicle != nil {
		if b.DriverID == "" {
			return precondition(model.ActionUpdateDetails, b.Status, "no driver assigned")
		}
		v := *p.Vehicle
		b.DriverVehicleDetails = &v
	}
	return nil
}

// stampAudit records who changed b, through which channel, and when.
// UpdatedAt strictly increases even if the clock does not.
func stampAudit(b *model.Booking, actor model.Actor, now time.Time) {
	if !now.After(b.UpdatedAt) {
		now = b.UpdatedAt.Add(time.Microsecond)
	}
	b.LastUpdatedBy = actor.ID
	b.LastUpdatedByRole = actor.Role
	b.UpdateChannel = actor.Channel
	b.UpdatedAt = now
}
