// README: Driver position update command and errors.
package location

import (
	"errors"

	"haul/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type Update struct {
	DriverID types.ID
	Position types.Point
}
