// README: Dispatch queries, claim commands and claim error kinds.
package dispatch

import (
	"context"
	"errors"
	"time"

	"haul/internal/modules/booking"
	"haul/internal/types"
)

var (
	ErrAlreadyClaimed    = errors.New("booking already claimed")
	ErrDriverUnavailable = errors.New("driver already holds a booking")
	ErrVehicleMismatch   = errors.New("driver vehicle class does not match booking")
	ErrNotYetOpen        = errors.New("scheduled booking is not open yet")
	ErrBadRequest        = errors.New("bad request")
	ErrInvalidRadius     = errors.New("radius must be a finite number")
)

type JobQuery struct {
	Position     types.Point
	VehicleClass types.VehicleClass
	// RadiusMeters <= 0 uses the configured default.
	RadiusMeters float64
}

type ClaimCommand struct {
	BookingID types.ID
	DriverID  types.ID
}

// ClaimStore commits a claim as one atomic unit: the booking moves
// requested -> accepted bound to the driver, and the driver becomes
// unavailable holding the booking. Refusals are classified as
// booking.ErrNotFound, driver.ErrNotFound, ErrDriverUnavailable,
// ErrVehicleMismatch, ErrNotYetOpen or ErrAlreadyClaimed.
type ClaimStore interface {
	Claim(ctx context.Context, bookingID, driverID types.ID, at time.Time) (*booking.Booking, error)
}
