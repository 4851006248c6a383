// README: Booking lifecycle events and the Publisher contract services emit them through.
package events

import (
	"context"
	"errors"
	"time"

	"haul/internal/types"
)

type Type string

const (
	BookingCreated       Type = "booking.created"
	BookingClaimed       Type = "booking.claimed"
	BookingStatusChanged Type = "booking.status_changed"
	DriverMoved          Type = "driver.location_updated"
)

type Event struct {
	Type      Type         `json:"type"`
	BookingID types.ID     `json:"booking_id,omitempty"`
	DriverID  types.ID     `json:"driver_id,omitempty"`
	Status    string       `json:"status,omitempty"`
	Position  *types.Point `json:"position,omitempty"`
	At        time.Time    `json:"at"`
}

// Key is the partition key: events of one booking stay ordered.
func (e Event) Key() string {
	if e.BookingID != "" {
		return string(e.BookingID)
	}
	return string(e.DriverID)
}

// Publisher delivers events best effort. Callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
