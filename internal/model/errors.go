package model

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────

var (
	// ErrValidation marks a malformed or structurally invalid request.
	ErrValidation = errors.New("validation failed")

	ErrBookingNotFound       = errors.New("booking not found")
	ErrOfferNotFound         = errors.New("ride offer not found")
	ErrDriverNotFound        = errors.New("driver not found")
	ErrSettingNotFound       = errors.New("operator setting not found")
	ErrCreditAccountNotFound = errors.New("credit account not found")

	// ErrInvalidTransition is returned when an action is not valid from the
	// booking's current status.
	ErrInvalidTransition = errors.New("action not valid from current status")

	// ErrStaleStatus is returned when the caller's expected status no longer
	// matches the stored one.
	ErrStaleStatus = errors.New("booking status changed since it was read")

	// ErrNoDriverAvailable is returned when auto-assignment finds no eligible driver.
	ErrNoDriverAvailable = errors.New("no driver available")

	// ErrCorruptCounter is returned when a stored sequence value is not numeric.
	ErrCorruptCounter = errors.New("booking id counter is corrupt")

	// ErrBookingTimeout is returned when a booking transaction exceeds its
	// deadline, usually while waiting on a row lock.
	ErrBookingTimeout = errors.New("booking update timed out waiting for lock")

	ErrOfferClosed  = errors.New("ride offer is no longer pending")
	ErrOfferExpired = errors.New("ride offer has expired")
	ErrForbidden    = errors.New("actor may not perform this operation")
)

// ─── Typed Errors ───────────────────────────────────────────

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// TransitionError is a precondition failure. It carries the status the
// booking was in so callers can react without a second read.
type TransitionError struct {
	Action  Action
	Current BookingStatus
	Err     error // ErrInvalidTransition or ErrStaleStatus
	Reason  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %v (current status %s)", e.Action, e.Err, e.Current)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return e.Err }
