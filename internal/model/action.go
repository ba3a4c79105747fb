package model

// Action is the closed set of booking mutations. There is no raw status
// write; every status change goes through one of these.
type Action string

const (
	ActionAssignDriver          Action = "assign_driver"
	ActionAutoAssignDriver      Action = "auto_assign_driver"
	ActionNotifyArrival         Action = "notify_arrival"
	ActionStartRide             Action = "start_ride"
	ActionProceedToNextLeg      Action = "proceed_to_next_leg"
	ActionRequestWaitAndReturn  Action = "request_wait_and_return"
	ActionAcceptWaitAndReturn   Action = "accept_wait_and_return"
	ActionDeclineWaitAndReturn  Action = "decline_wait_and_return"
	ActionCompleteRide          Action = "complete_ride"
	ActionCancelActive          Action = "cancel_active"
	ActionReportNoShow          Action = "report_no_show"
	ActionOperatorCancelPending Action = "operator_cancel_pending"
	ActionAcknowledgeArrival    Action = "acknowledge_arrival"
	ActionUpdateDetails         Action = "update_details"
	ActionExpireNoDriver        Action = "expire_no_driver"
)

// AllActions lists every action in declaration order.
var AllActions = []Action{
	ActionAssignDriver,
	ActionAutoAssignDriver,
	ActionNotifyArrival,
	ActionStartRide,
	ActionProceedToNextLeg,
	ActionRequestWaitAndReturn,
	ActionAcceptWaitAndReturn,
	ActionDeclineWaitAndReturn,
	ActionCompleteRide,
	ActionCancelActive,
	ActionReportNoShow,
	ActionOperatorCancelPending,
	ActionAcknowledgeArrival,
	ActionUpdateDetails,
	ActionExpireNoDriver,
}

// AllStatuses lists every booking status.
var AllStatuses = []BookingStatus{
	StatusPendingAssignment,
	StatusDriverAssigned,
	StatusArrivedAtPickup,
	StatusInProgress,
	StatusPendingWaitAndReturnApproval,
	StatusInProgressWaitAndReturn,
	StatusCompleted,
	StatusCancelledByDriver,
	StatusCancelledByOperator,
	StatusCancelledNoShow,
	StatusCancelledNoDriver,
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	for _, known := range AllActions {
		if a == known {
			return true
		}
	}
	return false
}
