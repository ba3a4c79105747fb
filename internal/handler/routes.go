package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Handlers groups the API handlers registered by RegisterRoutes.
type Handlers struct {
	Bookings *BookingHandler
	Offers   *OfferHandler
	Settings *SettingsHandler
	Pricing  *PricingHandler
}

// RegisterRoutes mounts the /api/v1 endpoints on api.
func RegisterRoutes(api *mux.Router, h Handlers) {
	api.HandleFunc("/bookings", h.Bookings.Create).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}", h.Bookings.Action).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}", h.Bookings.Get).Methods(http.MethodGet)
	api.HandleFunc("/drivers/{id}/bookings", h.Bookings.DriverBookings).Methods(http.MethodGet)

	api.HandleFunc("/drivers/{id}/offers", h.Offers.ListForDriver).Methods(http.MethodGet)
	api.HandleFunc("/drivers/{id}/location", h.Offers.UpdateLocation).Methods(http.MethodPut)
	api.HandleFunc("/offers/{id}", h.Offers.Get).Methods(http.MethodGet)
	api.HandleFunc("/offers/{id}/respond", h.Offers.Respond).Methods(http.MethodPost)

	api.HandleFunc("/operators/{id}/dispatch-settings", h.Settings.Get).Methods(http.MethodGet)
	api.HandleFunc("/operators/{id}/dispatch-settings", h.Settings.Put).Methods(http.MethodPut)

	api.HandleFunc("/fare/estimate", h.Pricing.EstimateFare).Methods(http.MethodPost)
}
