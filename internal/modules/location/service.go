// README: Location service keeps each driver's latest position in the store and the geo index.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"haul/internal/events"
	"haul/internal/geo"
	"haul/internal/modules/driver"
	"haul/internal/observability"
	"haul/internal/types"
)

type Service struct {
	drivers driver.Repository
	index   geo.Index
	events  events.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(drivers driver.Repository, index geo.Index, pub events.Publisher, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{drivers: drivers, index: index, events: pub, logger: logger, now: time.Now}
}

// UpdatePosition records the latest position only; no history is kept.
// An unknown driver is invalid input and also matches driver.ErrNotFound.
func (s *Service) UpdatePosition(ctx context.Context, u Update) (*driver.Driver, error) {
	if u.DriverID == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	if err := u.Position.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	now := s.now()
	d, err := s.drivers.UpdatePosition(ctx, u.DriverID, u.Position, now)
	if errors.Is(err, driver.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err != nil {
		return nil, err
	}

	if err := s.index.Upsert(ctx, geo.DriverLayer(d.VehicleClass), d.ID, d.Position); err != nil {
		s.logger.Warn("index driver position failed", "driver_id", d.ID, "error", err)
	}
	pos := d.Position
	e := events.Event{Type: events.DriverMoved, DriverID: d.ID, Position: &pos, At: now}
	if d.CurrentBookingID != nil {
		e.BookingID = *d.CurrentBookingID
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed", "type", e.Type, "driver_id", d.ID, "error", err)
	}
	observability.LocationUpdates.Inc()
	return d, nil
}

func (s *Service) GetPosition(ctx context.Context, driverID types.ID) (types.Point, error) {
	if driverID == "" {
		return types.Point{}, fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	d, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return types.Point{}, err
	}
	return d.Position, nil
}
