// README: Booking error kinds.
package booking

import (
	"errors"
	"fmt"

	"haul/internal/types"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrBadRequest        = errors.New("bad request")
	ErrNotAssigned       = errors.New("booking not assigned to driver")
)

// TransitionError names the booking and both statuses of a refused advance.
type TransitionError struct {
	BookingID types.ID
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: booking %s cannot move from %q to %q", ErrInvalidTransition, e.BookingID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
