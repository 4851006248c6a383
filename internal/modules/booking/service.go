// README: Booking service: creation with routed estimates, reads, and lifecycle advances.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"haul/internal/events"
	"haul/internal/geo"
	"haul/internal/maps"
	"haul/internal/modules/pricing"
	"haul/internal/observability"
	"haul/internal/types"
)

type Pricer interface {
	Estimate(ctx context.Context, req pricing.Request) (pricing.Quote, error)
}

type Deps struct {
	Repo    Repository
	Pricing Pricer
	Router  maps.Router
	Index   geo.Index
	Events  events.Publisher
	Logger  *slog.Logger
	Now     func() time.Time
}

type Service struct {
	repo    Repository
	pricing Pricer
	router  maps.Router
	index   geo.Index
	events  events.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:    d.Repo,
		pricing: d.Pricing,
		router:  d.Router,
		index:   d.Index,
		events:  d.Events,
		logger:  d.Logger,
		now:     d.Now,
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
	return s
}

type CreateCommand struct {
	RiderID        types.ID
	Pickup         types.Point
	Dropoff        types.Point
	PickupAddress  string
	DropoffAddress string
	VehicleClass   types.VehicleClass
	ScheduledAt    *time.Time
}

type Created struct {
	Booking *Booking
	Quote   pricing.Quote
}

type AdvanceCommand struct {
	BookingID types.ID
	Status    Status
	// DriverID, when set, must be the driver holding the booking.
	DriverID types.ID
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Created, error) {
	if cmd.RiderID == "" {
		return nil, fmt.Errorf("%w: rider id is required", ErrBadRequest)
	}
	if err := cmd.Pickup.Validate(); err != nil {
		return nil, fmt.Errorf("pickup: %w", err)
	}
	if err := cmd.Dropoff.Validate(); err != nil {
		return nil, fmt.Errorf("dropoff: %w", err)
	}
	if !cmd.VehicleClass.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownVehicleClass, cmd.VehicleClass)
	}
	now := s.now()
	if cmd.ScheduledAt != nil && !cmd.ScheduledAt.After(now) {
		return nil, fmt.Errorf("%w: scheduled time %s is not in the future", ErrBadRequest, cmd.ScheduledAt.Format(time.RFC3339))
	}

	route, err := s.router.Route(ctx, cmd.Pickup, cmd.Dropoff)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.Estimate(ctx, pricing.Request{
		DistanceMeters: route.DistanceMeters,
		Duration:       route.Duration,
		VehicleClass:   cmd.VehicleClass,
		Pickup:         cmd.Pickup,
		Dropoff:        cmd.Dropoff,
	})
	if err != nil {
		return nil, err
	}

	b := &Booking{
		ID:                   types.ID(uuid.NewString()),
		RiderID:              cmd.RiderID,
		Pickup:               cmd.Pickup,
		Dropoff:              cmd.Dropoff,
		PickupAddress:        cmd.PickupAddress,
		DropoffAddress:       cmd.DropoffAddress,
		VehicleClass:         cmd.VehicleClass,
		DistanceMeters:       route.DistanceMeters,
		EstimatedCost:        quote.Total,
		EstimatedDurationSec: int64(route.Duration / time.Second),
		Status:               StatusRequested,
		PaymentStatus:        PaymentPending,
		ScheduledAt:          cmd.ScheduledAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	riderID := cmd.RiderID
	s.audit(ctx, &Event{BookingID: b.ID, FromStatus: "", ToStatus: StatusRequested, ActorType: ActorRider, ActorID: &riderID, CreatedAt: now})
	if err := s.index.Upsert(ctx, geo.BookingLayer(b.VehicleClass), b.ID, b.Pickup); err != nil {
		s.logger.Warn("index booking failed", "booking_id", b.ID, "error", err)
	}
	s.publish(ctx, events.Event{Type: events.BookingCreated, BookingID: b.ID, Status: string(b.Status), Position: &b.Pickup, At: now})
	observability.BookingsCreated.WithLabelValues(b.VehicleClass.Slug()).Inc()

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"vehicle_class", b.VehicleClass,
		"estimated_cost", b.EstimatedCost.Amount,
		"distance_m", route.DistanceMeters,
	)
	return &Created{Booking: b, Quote: quote}, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: booking id is required", ErrBadRequest)
	}
	return s.repo.Get(ctx, id)
}

// List returns bookings matching f in no particular order.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Booking, error) {
	return s.repo.List(ctx, f)
}

// Advance moves a booking to the immediate successor of its current status.
// Acceptance is not reachable here; it needs a claim.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) (*Booking, error) {
	if cmd.BookingID == "" {
		return nil, fmt.Errorf("%w: booking id is required", ErrBadRequest)
	}
	b, err := s.repo.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if cmd.Status == StatusAccepted || !CanTransition(b.Status, cmd.Status) {
		return nil, &TransitionError{BookingID: b.ID, From: b.Status, To: cmd.Status}
	}
	if cmd.DriverID != "" && !b.AssignedTo(cmd.DriverID) {
		return nil, fmt.Errorf("%w: booking %s, driver %s", ErrNotAssigned, b.ID, cmd.DriverID)
	}

	now := s.now()
	ok, err := s.repo.UpdateStatus(ctx, b.ID, b.Status, cmd.Status, b.StatusVersion, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Someone else moved it first; report against what it is now.
		current := b.Status
		if fresh, err := s.repo.Get(ctx, b.ID); err == nil {
			current = fresh.Status
		}
		return nil, &TransitionError{BookingID: b.ID, From: current, To: cmd.Status}
	}

	from := b.Status
	b.Status = cmd.Status
	b.StatusVersion++
	b.UpdatedAt = now
	if b.Status == StatusDelivered {
		b.DeliveredAt = &now
	}

	event := &Event{BookingID: b.ID, FromStatus: from, ToStatus: b.Status, ActorType: ActorSystem, CreatedAt: now}
	if cmd.DriverID != "" {
		actor := cmd.DriverID
		event.ActorType = ActorDriver
		event.ActorID = &actor
	}
	s.audit(ctx, event)
	published := events.Event{Type: events.BookingStatusChanged, BookingID: b.ID, Status: string(b.Status), At: now}
	if b.DriverID != nil {
		published.DriverID = *b.DriverID
	}
	s.publish(ctx, published)
	observability.StatusTransitions.WithLabelValues(string(b.Status)).Inc()

	s.logger.Info("booking advanced", "booking_id", b.ID, "from", from, "to", b.Status)
	return b, nil
}

func (s *Service) audit(ctx context.Context, e *Event) {
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		s.logger.Warn("append booking event failed", "booking_id", e.BookingID, "to", e.ToStatus, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed", "type", e.Type, "booking_id", e.BookingID, "error", err)
	}
}
