package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/service"
)

// PricingHandler handles fare estimation HTTP requests.
type PricingHandler struct {
	pricingSvc *service.PricingService
	log        *zap.Logger
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(pricingSvc *service.PricingService, log *zap.Logger) *PricingHandler {
	return &PricingHandler{pricingSvc: pricingSvc, log: log.Named("pricing_handler")}
}

// EstimateFare handles POST /api/v1/fare/estimate
//
// Request body:
//
//	{
//	  "pickupLocation":  {"address": "Westminster", "latitude": 51.5007, "longitude": -0.1246},
//	  "dropoffLocation": {"address": "Camden", "latitude": 51.5390, "longitude": -0.1426},
//	  "stops": [],
//	  "isPriorityPickup": false,
//	  "waitAndReturn": true,
//	  "estimatedAdditionalWaitTimeMinutes": 15
//	}
//
// Response: FareEstimate with its breakdown.
func (h *PricingHandler) EstimateFare(w http.ResponseWriter, r *http.Request) {
	var req service.FareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pricingSvc.Estimate(req))
}
