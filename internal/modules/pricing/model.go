// README: Pricing request/quote types for booking estimates.
package pricing

import (
	"errors"
	"time"

	"haul/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// Request carries a routed trip; distance and duration come from the routing provider.
type Request struct {
	DistanceMeters float64
	Duration       time.Duration
	VehicleClass   types.VehicleClass
	Pickup         types.Point
	Dropoff        types.Point
}

type Quote struct {
	Total     types.Money
	Amount    float64
	Duration  time.Duration
	Breakdown map[string]float64
}

// Rate is a per-class override loaded from vehicle_rates.
type Rate struct {
	VehicleClass types.VehicleClass
	PerKm        float64
}
