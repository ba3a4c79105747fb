package service

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
)

func TestPricingEstimate(t *testing.T) {
	svc := NewPricingService(DefaultFareConfig(), zap.NewNop())

	// One degree of latitude is 69.09 miles; 0.1° is about 6.909 miles.
	pickup := model.LocationPoint{Address: "A", Latitude: 0, Longitude: 0}
	dropoff := model.LocationPoint{Address: "B", Latitude: 0.1, Longitude: 0}
	stop := model.LocationPoint{Address: "S", Latitude: 0.05, Longitude: 0}
	const miles = 6.909

	tests := []struct {
		name      string
		req       FareRequest
		wantTotal float64
		wantMin   bool
	}{
		{
			name:      "plain",
			req:       FareRequest{PickupLocation: pickup, DropoffLocation: dropoff},
			wantTotal: 4.50 + miles*1.75,
		},
		{
			name:      "with stop on the way",
			req:       FareRequest{PickupLocation: pickup, DropoffLocation: dropoff, Stops: []model.LocationPoint{stop}},
			wantTotal: 4.50 + miles*1.75 + 0.50,
		},
		{
			name:      "priority fee",
			req:       FareRequest{PickupLocation: pickup, DropoffLocation: dropoff, IsPriorityPickup: true, PriorityFeeAmount: 300},
			wantTotal: 4.50 + miles*1.75 + 3,
		},
		{
			name:      "priority fee ignored without flag",
			req:       FareRequest{PickupLocation: pickup, DropoffLocation: dropoff, PriorityFeeAmount: 300},
			wantTotal: 4.50 + miles*1.75,
		},
		{
			name:      "wait and return",
			req:       FareRequest{PickupLocation: pickup, DropoffLocation: dropoff, WaitAndReturn: true, WaitMinutes: 10},
			wantTotal: 4.50 + miles*1.75*1.7 + 10*0.20,
		},
		{
			name:      "wait minutes ignored without wait and return",
			req:       FareRequest{PickupLocation: pickup, DropoffLocation: dropoff, WaitMinutes: 10},
			wantTotal: 4.50 + miles*1.75,
		},
		{
			name:      "minimum fare",
			req:       FareRequest{PickupLocation: pickup, DropoffLocation: pickup},
			wantTotal: 5.00,
			wantMin:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Estimate(tt.req)
			if math.Abs(got.Total.Float()-tt.wantTotal) > 0.02 {
				t.Errorf("Total = %v, want ~%v", got.Total, tt.wantTotal)
			}
			if got.MinimumFare != tt.wantMin {
				t.Errorf("MinimumFare = %v, want %v", got.MinimumFare, tt.wantMin)
			}
			parts := got.BaseFare + got.DistanceFare + got.StopsFare + got.WaitFare + got.PriorityFee
			if parts != got.Subtotal {
				t.Errorf("parts sum to %v, subtotal %v", parts, got.Subtotal)
			}
			if !tt.wantMin && got.Total != got.Subtotal {
				t.Errorf("Total %v != Subtotal %v", got.Total, got.Subtotal)
			}
		})
	}
}
