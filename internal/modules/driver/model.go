// README: Driver record as pushed by the identity service; position is the latest ping.
package driver

import (
	"errors"
	"time"

	"haul/internal/types"
)

var (
	ErrNotFound   = errors.New("driver not found")
	ErrExists     = errors.New("driver already registered")
	ErrBadRequest = errors.New("bad request")
)

// Driver is available exactly when it holds no booking.
type Driver struct {
	ID               types.ID
	Name             string
	VehicleNumber    string
	VehicleClass     types.VehicleClass
	Position         types.Point
	Available        bool
	CurrentBookingID *types.ID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
