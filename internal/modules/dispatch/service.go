// README: Dispatch service finds open bookings near a driver and arbitrates claims.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"haul/internal/config"
	"haul/internal/events"
	"haul/internal/geo"
	"haul/internal/modules/booking"
	"haul/internal/modules/driver"
	"haul/internal/observability"
	"haul/internal/types"
)

const (
	defaultRadiusMeters = 50000
	defaultSweepSeconds = 30
)

type Deps struct {
	Bookings booking.Repository
	Drivers  driver.Repository
	Claims   ClaimStore
	Index    geo.Index
	Events   events.Publisher
	Config   config.MatchingConfig
	Logger   *slog.Logger
	Now      func() time.Time
}

type Service struct {
	bookings booking.Repository
	drivers  driver.Repository
	claims   ClaimStore
	index    geo.Index
	events   events.Publisher
	cfg      config.MatchingConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		bookings: d.Bookings,
		drivers:  d.Drivers,
		claims:   d.Claims,
		index:    d.Index,
		events:   d.Events,
		cfg:      d.Config,
		logger:   d.Logger,
		now:      d.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.RadiusMeters <= 0 {
		s.cfg.RadiusMeters = defaultRadiusMeters
	}
	if s.cfg.SweepSeconds <= 0 {
		s.cfg.SweepSeconds = defaultSweepSeconds
	}
	return s
}

func (s *Service) validate(q *JobQuery) error {
	if err := q.Position.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if !q.VehicleClass.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrBadRequest, types.ErrUnknownVehicleClass, q.VehicleClass)
	}
	if math.IsNaN(q.RadiusMeters) || math.IsInf(q.RadiusMeters, 0) {
		return fmt.Errorf("%w: %w: %v", ErrBadRequest, ErrInvalidRadius, q.RadiusMeters)
	}
	if q.RadiusMeters <= 0 {
		q.RadiusMeters = s.cfg.RadiusMeters
	}
	return nil
}

// FindAvailableJobs returns open bookings of the query's class whose pickup
// lies within the radius. Order is nearest first; no other ranking applies.
func (s *Service) FindAvailableJobs(ctx context.Context, q JobQuery) ([]*booking.Booking, error) {
	if err := s.validate(&q); err != nil {
		return nil, err
	}
	layer := geo.BookingLayer(q.VehicleClass)
	hits, err := s.index.Within(ctx, layer, q.Position, q.RadiusMeters)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		observability.JobQueryResults.Observe(0)
		return []*booking.Booking{}, nil
	}

	ids := make([]types.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	found, err := s.bookings.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[types.ID]*booking.Booking, len(found))
	for _, b := range found {
		byID[b.ID] = b
	}

	now := s.now()
	jobs := make([]*booking.Booking, 0, len(hits))
	for _, h := range hits {
		b, ok := byID[h.ID]
		if !ok || b.Status != booking.StatusRequested || b.DriverID != nil {
			s.prune(ctx, layer, h.ID)
			continue
		}
		if !b.Open(now) || b.VehicleClass != q.VehicleClass {
			continue
		}
		if geo.DistanceMeters(q.Position, b.Pickup) > q.RadiusMeters {
			continue
		}
		jobs = append(jobs, b)
	}
	observability.JobQueryResults.Observe(float64(len(jobs)))
	return jobs, nil
}

func (s *Service) prune(ctx context.Context, layer string, id types.ID) {
	if err := s.index.Remove(ctx, layer, id); err != nil {
		s.logger.Warn("prune stale index entry failed", "layer", layer, "id", id, "error", err)
	}
}

// Claim binds the booking to the driver. At most one claim per booking ever
// succeeds; losers get ErrAlreadyClaimed and should re-poll.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (*booking.Booking, error) {
	if cmd.BookingID == "" || cmd.DriverID == "" {
		return nil, fmt.Errorf("%w: booking id and driver id are required", ErrBadRequest)
	}

	now := s.now()
	b, err := s.claims.Claim(ctx, cmd.BookingID, cmd.DriverID, now)
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, ErrAlreadyClaimed) {
			outcome = "lost"
		}
		observability.ClaimsTotal.WithLabelValues(outcome).Inc()
		s.logger.Info("claim refused", "booking_id", cmd.BookingID, "driver_id", cmd.DriverID, "error", err)
		return nil, err
	}
	observability.ClaimsTotal.WithLabelValues("won").Inc()
	observability.StatusTransitions.WithLabelValues(string(booking.StatusAccepted)).Inc()

	s.prune(ctx, geo.BookingLayer(b.VehicleClass), b.ID)
	driverID := cmd.DriverID
	if err := s.bookings.AppendEvent(ctx, &booking.Event{
		BookingID:  b.ID,
		FromStatus: booking.StatusRequested,
		ToStatus:   booking.StatusAccepted,
		ActorType:  booking.ActorDriver,
		ActorID:    &driverID,
		CreatedAt:  now,
	}); err != nil {
		s.logger.Warn("append booking event failed", "booking_id", b.ID, "error", err)
	}
	if err := s.events.Publish(ctx, events.Event{
		Type:      events.BookingClaimed,
		BookingID: b.ID,
		DriverID:  cmd.DriverID,
		Status:    string(b.Status),
		At:        now,
	}); err != nil {
		s.logger.Warn("publish event failed", "type", events.BookingClaimed, "booking_id", b.ID, "error", err)
	}

	s.logger.Info("booking claimed", "booking_id", b.ID, "driver_id", cmd.DriverID)
	return b, nil
}

// NearbyDrivers lists available drivers of the class within the radius,
// nearest first, checked against their stored positions.
func (s *Service) NearbyDrivers(ctx context.Context, q JobQuery) ([]*driver.Driver, error) {
	if err := s.validate(&q); err != nil {
		return nil, err
	}
	hits, err := s.index.Within(ctx, geo.DriverLayer(q.VehicleClass), q.Position, q.RadiusMeters)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	found, err := s.drivers.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[types.ID]*driver.Driver, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}

	out := make([]*driver.Driver, 0, len(hits))
	for _, h := range hits {
		d, ok := byID[h.ID]
		if !ok || !d.Available || d.VehicleClass != q.VehicleClass {
			continue
		}
		if geo.DistanceMeters(q.Position, d.Position) > q.RadiusMeters {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// SweepIndex re-adds every open booking to the index. It rebuilds an
// in-process index after a restart and repairs failed index writes.
func (s *Service) SweepIndex(ctx context.Context) (int, error) {
	open, err := s.bookings.List(ctx, booking.ListFilter{Status: booking.StatusRequested, UnassignedOnly: true})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range open {
		if err := s.index.Upsert(ctx, geo.BookingLayer(b.VehicleClass), b.ID, b.Pickup); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Service) RunIndexSweeper(ctx context.Context) {
	tick := time.Duration(s.cfg.SweepSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepIndex(ctx)
			if err != nil {
				s.logger.Warn("index sweep failed", "indexed", n, "error", err)
				continue
			}
			s.logger.Debug("index sweep done", "indexed", n)
		}
	}
}
