package service

import (
	"math"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/geo"
)

// ─── Fare Configuration ─────────────────────────────────────

// FareConfig holds the tariff. Amounts are in cents.
type FareConfig struct {
	BaseCents           int64   // Flat charge per job.
	PerMileCents        int64   // Charged over pickup → stops → dropoff.
	PerStopCents        int64   // Per intermediate stop.
	WaitPerMinuteCents  int64   // Per estimated waiting minute on wait-and-return jobs.
	WaitAndReturnFactor float64 // Distance multiplier covering the return leg.
	MinimumCents        int64   // Fare floor.
}

// DefaultFareConfig returns the standard tariff.
func DefaultFareConfig() FareConfig {
	return FareConfig{
		BaseCents:           450, // 4.50 flag fall
		PerMileCents:        175, // 1.75 per mile
		PerStopCents:        50,  // 0.50 per stop
		WaitPerMinuteCents:  20,  // 0.20 per waited minute
		WaitAndReturnFactor: 1.7,
		MinimumCents:        500, // 5.00 minimum
	}
}

// ─── Request / Estimate ─────────────────────────────────────

// FareRequest describes the journey to price.
type FareRequest struct {
	PickupLocation    model.LocationPoint   `json:"pickupLocation" validate:"required"`
	DropoffLocation   model.LocationPoint   `json:"dropoffLocation" validate:"required"`
	Stops             []model.LocationPoint `json:"stops" validate:"omitempty,dive"`
	IsPriorityPickup  bool                  `json:"isPriorityPickup"`
	PriorityFeeAmount model.Money           `json:"priorityFeeAmount" validate:"gte=0"`
	WaitAndReturn     bool                  `json:"waitAndReturn"`
	WaitMinutes       int                   `json:"estimatedAdditionalWaitTimeMinutes" validate:"gte=0"`
}

// FareEstimate is the priced breakdown.
type FareEstimate struct {
	DistanceMiles float64     `json:"distanceMiles"`
	BaseFare      model.Money `json:"baseFare"`
	DistanceFare  model.Money `json:"distanceFare"`
	StopsFare     model.Money `json:"stopsFare"`
	WaitFare      model.Money `json:"waitFare"`
	PriorityFee   model.Money `json:"priorityFee"`
	Subtotal      model.Money `json:"subtotal"`
	Total         model.Money `json:"total"`
	MinimumFare   bool        `json:"minimumFareApplied"`
}

// ─── PricingService ─────────────────────────────────────────

// PricingService computes fare estimates. The same formula prices the
// booking preview and the server-side estimate stored at creation.
//
// Formula (cents):
//
//	Fare = Base + round(Miles × PerMile × (W&R ? WaitAndReturnFactor : 1))
//	     + Stops × PerStop + (W&R ? WaitMinutes × WaitPerMinute : 0)
//	     + (Priority ? PriorityFee : 0)
//
// floored at Minimum. Only the distance component is fractional and it is
// rounded once, so the parts always sum to the total.
type PricingService struct {
	config FareConfig
	log    *zap.Logger
}

// NewPricingService creates a pricing service with the given tariff.
func NewPricingService(config FareConfig, log *zap.Logger) *PricingService {
	return &PricingService{config: config, log: log.Named("pricing")}
}

// Estimate prices req. Complexity: O(S) over the stops.
func (s *PricingService) Estimate(req FareRequest) *FareEstimate {
	route := geo.Itinerary(req.PickupLocation, req.Stops, req.DropoffLocation)
	miles := geo.RouteDistanceMiles(route)

	factor := 1.0
	var waitFare model.Money
	if req.WaitAndReturn {
		factor = s.config.WaitAndReturnFactor
		waitFare = model.Money(int64(req.WaitMinutes) * s.config.WaitPerMinuteCents)
	}
	distanceFare := model.Money(math.Round(miles * float64(s.config.PerMileCents) * factor))
	stopsFare := model.Money(int64(len(req.Stops)) * s.config.PerStopCents)
	var priority model.Money
	if req.IsPriorityPickup {
		priority = req.PriorityFeeAmount
	}

	base := model.Money(s.config.BaseCents)
	subtotal := base + distanceFare + stopsFare + waitFare + priority
	total := subtotal
	minimum := false
	if floor := model.Money(s.config.MinimumCents); total < floor {
		total = floor
		minimum = true
	}

	est := &FareEstimate{
		DistanceMiles: math.Round(miles*100) / 100,
		BaseFare:      base,
		DistanceFare:  distanceFare,
		StopsFare:     stopsFare,
		WaitFare:      waitFare,
		PriorityFee:   priority,
		Subtotal:      subtotal,
		Total:         total,
		MinimumFare:   minimum,
	}

	s.log.Debug("fare estimated",
		zap.Float64("miles", est.DistanceMiles),
		zap.Int("stops", len(req.Stops)),
		zap.Bool("wait_and_return", req.WaitAndReturn),
		zap.Stringer("total", est.Total))
	return est
}
