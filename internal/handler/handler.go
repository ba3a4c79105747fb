// Package handler contains HTTP request handlers for the ride dispatch API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/middleware"
	"github.com/shiva/ridedispatch/internal/model"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error         string              `json:"error"`
	Message       string              `json:"message,omitempty"`
	CurrentStatus model.BookingStatus `json:"currentStatus,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names, not Go ones.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// decodeJSON decodes the body into dst, rejecting unknown fields, then runs
// struct validation.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.Invalid("body", "invalid JSON: %v", err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		return model.Invalid(field, "failed '%s' check", fe.Tag())
	}
	return model.Invalid("body", "%v", err)
}

// actorOrFail returns the caller set by the identity middleware.
func actorOrFail(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "Caller identity required."})
	}
	return a, ok
}

// writeError maps a service error to a status code and error kind.
//
//	400 validation_error    malformed request
//	403 forbidden           actor may not perform the operation
//	404 not_found           booking, offer or driver unknown
//	408 booking_timeout     lock wait exceeded
//	409 invalid_transition  action not valid from current status
//	409 stale_status        expectedStatus no longer matches
//	409 offer_closed        offer already answered or superseded
//	410 offer_expired       offer window passed
//	422 no_driver_available auto-assignment found nobody
//	500 internal_error      anything else (logged, details withheld)
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var te *model.TransitionError
	switch {
	case errors.Is(err, model.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, model.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, model.ErrBookingNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "Booking not found."})
	case errors.Is(err, model.ErrOfferNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "Ride offer not found."})
	case errors.Is(err, model.ErrDriverNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "Driver not found."})
	case errors.Is(err, model.ErrBookingTimeout):
		writeJSON(w, http.StatusRequestTimeout, errorResponse{
			Error:   "booking_timeout",
			Message: "Booking update timed out due to contention. Please retry.",
		})
	case errors.As(err, &te):
		kind := "invalid_transition"
		if errors.Is(err, model.ErrStaleStatus) {
			kind = "stale_status"
		}
		writeJSON(w, http.StatusConflict, errorResponse{Error: kind, Message: err.Error(), CurrentStatus: te.Current})
	case errors.Is(err, model.ErrOfferClosed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "offer_closed", Message: err.Error()})
	case errors.Is(err, model.ErrOfferExpired):
		writeJSON(w, http.StatusGone, errorResponse{Error: "offer_expired", Message: err.Error()})
	case errors.Is(err, model.ErrNoDriverAvailable):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "no_driver_available",
			Message: "No eligible driver found near the pickup location.",
		})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
	}
}

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
