package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// OfferHandler serves the driver side of dispatch: the offer inbox, offer
// answers and location reports.
type OfferHandler struct {
	offers   *service.OfferIssuer
	bookings *service.BookingService
	drivers  service.DriverDirectory
	log      *zap.Logger
}

// NewOfferHandler creates a new offer handler.
func NewOfferHandler(
	offers *service.OfferIssuer,
	bookings *service.BookingService,
	drivers service.DriverDirectory,
	log *zap.Logger,
) *OfferHandler {
	return &OfferHandler{offers: offers, bookings: bookings, drivers: drivers, log: log.Named("offer_handler")}
}

type respondRequest struct {
	Accept *bool `json:"accept" validate:"required"`

	// DriverID lets operators and admins answer on a driver's behalf.
	DriverID string `json:"driverId,omitempty"`
}

// canActFor reports whether actor may act as driverID.
func canActFor(actor model.Actor, driverID string) bool {
	switch actor.Role {
	case model.RoleOperator, model.RoleAdmin:
		return true
	case model.RoleDriver:
		return actor.ID == driverID
	}
	return false
}

// ListForDriver handles GET /api/v1/drivers/{id}/offers
func (h *OfferHandler) ListForDriver(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	driverID := mux.Vars(r)["id"]
	if !canActFor(actor, driverID) {
		writeError(w, h.log, model.ErrForbidden)
		return
	}

	list, err := h.offers.ListPendingForDriver(r.Context(), driverID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	views := make([]OfferView, 0, len(list))
	for _, o := range list {
		views = append(views, NewOfferView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": views})
}

// Get handles GET /api/v1/offers/{id}
//
// A pending offer past its window is reported as expired.
func (h *OfferHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	o, err := h.offers.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !canActFor(actor, o.DriverID) {
		writeError(w, h.log, model.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, NewOfferView(o))
}

// Respond handles POST /api/v1/offers/{id}/respond
//
// Request body:
//
//	{"accept": true}
//
// Response codes:
//
//	200  answer recorded; a decline returns the booking to pending_assignment
//	403  caller is not the addressed driver
//	404  offer not found
//	409  offer already answered, superseded, or its booking moved on
//	410  offer window passed; the booking was released
func (h *OfferHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	driverID := actor.ID
	if req.DriverID != "" {
		driverID = req.DriverID
	}
	if !canActFor(actor, driverID) {
		writeError(w, h.log, model.ErrForbidden)
		return
	}

	res, err := h.bookings.RespondToOffer(r.Context(), mux.Vars(r)["id"], driverID, *req.Accept, actor)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, NewOfferAnswerResponse(res))
}

// UpdateLocation handles PUT /api/v1/drivers/{id}/location
func (h *OfferHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	driverID := mux.Vars(r)["id"]
	if !canActFor(actor, driverID) {
		writeError(w, h.log, model.ErrForbidden)
		return
	}

	var loc struct {
		Latitude  float64 `json:"latitude" validate:"latitude"`
		Longitude float64 `json:"longitude" validate:"longitude"`
	}
	if err := decodeJSON(r, &loc); err != nil {
		writeError(w, h.log, err)
		return
	}
	coords := model.Coordinates{Lat: loc.Latitude, Lng: loc.Longitude}
	if err := h.drivers.UpdateLocation(r.Context(), driverID, coords); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
