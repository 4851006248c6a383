// README: Booking aggregate and the delivery lifecycle state machine.
package booking

import (
	"fmt"
	"strings"
	"time"

	"haul/internal/types"
)

type Status string

const (
	// StatusScheduled is reserved for future-dated bookings; no transition reaches it.
	StatusScheduled      Status = "scheduled"
	StatusRequested      Status = "requested"
	StatusAccepted       Status = "accepted"
	StatusGoingForPickup Status = "going for pick up"
	StatusPickedUp       Status = "order picked up"
	StatusEnRoute        Status = "en route for deliver"
	StatusDelivered      Status = "order delivered"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// AllowedTransitions is the lifecycle as code. Each status has exactly one
// successor; requested -> accepted happens only through a claim.
var AllowedTransitions = map[Status]Status{
	StatusRequested:      StatusAccepted,
	StatusAccepted:       StatusGoingForPickup,
	StatusGoingForPickup: StatusPickedUp,
	StatusPickedUp:       StatusEnRoute,
	StatusEnRoute:        StatusDelivered,
}

func (s Status) Next() (Status, bool) {
	next, ok := AllowedTransitions[s]
	return next, ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	return ok && next == to
}

var statusAliases = map[string]Status{
	"scheduled":            StatusScheduled,
	"requested":            StatusRequested,
	"accepted":             StatusAccepted,
	"going for pick up":    StatusGoingForPickup,
	"going for pickup":     StatusGoingForPickup,
	"order picked up":      StatusPickedUp,
	"en route for deliver": StatusEnRoute,
	"order delivered":      StatusDelivered,
}

// ParseStatus accepts the stored form as well as dashed or underscored
// variants ("going-for-pickup", "order_delivered").
func ParseStatus(raw string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	if s, ok := statusAliases[norm]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrBadRequest, raw)
}

type Booking struct {
	ID                   types.ID
	RiderID              types.ID
	DriverID             *types.ID
	Pickup               types.Point
	Dropoff              types.Point
	PickupAddress        string
	DropoffAddress       string
	VehicleClass         types.VehicleClass
	DistanceMeters       float64
	EstimatedCost        types.Money
	EstimatedDurationSec int64
	Status               Status
	StatusVersion        int
	PaymentStatus        PaymentStatus
	ScheduledAt          *time.Time
	CreatedAt            time.Time
	AcceptedAt           *time.Time
	DeliveredAt          *time.Time
	UpdatedAt            time.Time
}

// Open reports whether a driver may claim the booking at now.
func (b *Booking) Open(now time.Time) bool {
	if b.Status != StatusRequested || b.DriverID != nil {
		return false
	}
	return b.ScheduledAt == nil || !b.ScheduledAt.After(now)
}

// AssignedTo reports whether driverID holds the booking.
func (b *Booking) AssignedTo(driverID types.ID) bool {
	return b.DriverID != nil && *b.DriverID == driverID
}

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

const (
	ActorRider  = "rider"
	ActorDriver = "driver"
	ActorSystem = "system"
)

type ListFilter struct {
	// Status empty means any status.
	Status         Status
	UnassignedOnly bool
}
