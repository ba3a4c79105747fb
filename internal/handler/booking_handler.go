package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// legacyOfferPrefix marks booking ids issued by older clients before the
// booking existed; posting to one creates the booking.
const legacyOfferPrefix = "mock-offer-"

// BookingHandler handles booking HTTP requests.
type BookingHandler struct {
	svc *service.BookingService
	log *zap.Logger
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(svc *service.BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, log: log.Named("booking_handler")}
}

// legacyCreateRequest is the body older clients post to a mock-offer id.
type legacyCreateRequest struct {
	OfferDetails *service.OfferDetails `json:"offerDetails" validate:"required"`
}

// Create handles POST /api/v1/bookings
//
// Response codes:
//
//	201  booking created (assignment result included when autoDispatch was set)
//	400  invalid offer details
//	500  id generation or storage failure
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	var d service.OfferDetails
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.create(w, r, d, actor)
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request, d service.OfferDetails, actor model.Actor) {
	res, err := h.svc.CreateFromOffer(r.Context(), d, actor)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewCreateResponse(res))
}

// Action handles POST /api/v1/bookings/{id}
//
// The body is an action request:
//
//	{"action": "assign_driver", "driverId": "drv-1", "expectedStatus": "pending_assignment"}
//
// Response codes:
//
//	200  action applied (or manual assignment required)
//	400  unknown action or malformed payload
//	404  booking or driver not found
//	408  lock contention
//	409  action not valid from the current status
//	422  no driver available
func (h *BookingHandler) Action(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	if strings.HasPrefix(id, legacyOfferPrefix) {
		var req legacyCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.log, err)
			return
		}
		h.create(w, r, *req.OfferDetails, actor)
		return
	}

	var req service.ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	req.Actor = actor

	res, err := h.svc.ApplyAction(r.Context(), id, req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, NewActionResponse(res))
}

// Get handles GET /api/v1/bookings/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBookingView(b))
}

// DriverBookings handles GET /api/v1/drivers/{id}/bookings
//
// Returns the driver's active bookings so a client that missed an offer
// notification can recover its current job.
func (h *BookingHandler) DriverBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListActiveForDriver(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	views := make([]BookingView, 0, len(list))
	for _, b := range list {
		views = append(views, NewBookingView(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": views})
}
