// README: Deterministic estimate formula; every multiplier comes from PricingConfig.
package pricing

import (
	"haul/internal/config"
	"haul/internal/types"
)

// Estimate computes the trip cost:
//
//	(rate * km * surge * regional * traffic + fuel + toll) * driverExperience
//
// where surge = 1 + (demandRatio-1)*surgeFactor, traffic applies once the trip
// is longer than TrafficThreshold, and toll applies when the pickup and
// dropoff latitudes differ.
func Estimate(p config.PricingConfig, req Request) Quote {
	rate, ok := p.BaseRatePerKm[req.VehicleClass]
	if !ok {
		rate = p.DefaultRatePerKm
	}
	km := req.DistanceMeters / 1000

	surge := 1 + (p.DemandRatio-1)*p.SurgeFactor
	traffic := 1.0
	if req.Duration > p.TrafficThreshold {
		traffic = p.TrafficMultiplier
	}
	fuel := km * p.FuelConsumptionPerKm * p.FuelPricePerLiter
	toll := 0.0
	if req.Pickup.Lat != req.Dropoff.Lat {
		toll = p.TollCost
	}

	base := rate * km
	amount := (base*surge*p.RegionalMultiplier*traffic + fuel + toll) * p.DriverExperienceMultiplier

	return Quote{
		Total:    types.MoneyFromMajor(amount, p.Currency),
		Amount:   amount,
		Duration: req.Duration,
		Breakdown: map[string]float64{
			"base":              base,
			"surge":             surge,
			"regional":          p.RegionalMultiplier,
			"traffic":           traffic,
			"fuel":              fuel,
			"toll":              toll,
			"driver_experience": p.DriverExperienceMultiplier,
		},
	}
}
