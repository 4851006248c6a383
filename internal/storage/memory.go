// README: In-memory backend for every repository; one lock makes claims and deliveries atomic.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"haul/internal/modules/booking"
	"haul/internal/modules/dispatch"
	"haul/internal/modules/driver"
	"haul/internal/types"
)

// Memory holds bookings and drivers behind a single RWMutex. Callers always
// receive copies.
type Memory struct {
	mu       sync.RWMutex
	bookings map[types.ID]*booking.Booking
	drivers  map[types.ID]*driver.Driver
	events   []booking.Event
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		bookings: make(map[types.ID]*booking.Booking),
		drivers:  make(map[types.ID]*driver.Driver),
	}
}

// Bookings returns the booking.Repository view.
func (m *Memory) Bookings() *MemoryBookings { return &MemoryBookings{m: m} }

// Drivers returns the driver.Repository view.
func (m *Memory) Drivers() *MemoryDrivers { return &MemoryDrivers{m: m} }

// Events returns the audit trail in append order.
func (m *Memory) Events() []booking.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]booking.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) Claim(_ context.Context, bookingID, driverID types.ID, at time.Time) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[driverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrNotFound, driverID)
	}
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, bookingID)
	}
	if b.Status != booking.StatusRequested || b.DriverID != nil {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrAlreadyClaimed, bookingID)
	}
	if !d.Available {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrDriverUnavailable, driverID)
	}
	if !b.Open(at) || b.VehicleClass != d.VehicleClass {
		return nil, dispatch.Classify(b, d.VehicleClass, at)
	}

	bid, did := b.ID, d.ID
	b.Status = booking.StatusAccepted
	b.DriverID = &did
	b.StatusVersion++
	b.AcceptedAt = &at
	b.UpdatedAt = at
	d.Available = false
	d.CurrentBookingID = &bid
	d.UpdatedAt = at
	return cloneBooking(b), nil
}

type MemoryBookings struct {
	m *Memory
}

func (r *MemoryBookings) Create(_ context.Context, b *booking.Booking) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	r.m.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *MemoryBookings) Get(_ context.Context, id types.ID) (*booking.Booking, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	b, ok := r.m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, id)
	}
	return cloneBooking(b), nil
}

func (r *MemoryBookings) GetMany(_ context.Context, ids []types.ID) ([]*booking.Booking, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]*booking.Booking, 0, len(ids))
	for _, id := range ids {
		if b, ok := r.m.bookings[id]; ok {
			out = append(out, cloneBooking(b))
		}
	}
	return out, nil
}

func (r *MemoryBookings) List(_ context.Context, f booking.ListFilter) ([]*booking.Booking, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*booking.Booking
	for _, b := range r.m.bookings {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.UnassignedOnly && b.DriverID != nil {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	return out, nil
}

func (r *MemoryBookings) UpdateStatus(_ context.Context, id types.ID, from, to booking.Status, version int, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[id]
	if !ok || b.Status != from || b.StatusVersion != version {
		return false, nil
	}
	b.Status = to
	b.StatusVersion++
	b.UpdatedAt = at
	if to != booking.StatusDelivered {
		return true, nil
	}
	b.DeliveredAt = &at
	if b.DriverID == nil {
		return true, nil
	}
	if d, ok := r.m.drivers[*b.DriverID]; ok && d.CurrentBookingID != nil && *d.CurrentBookingID == id {
		d.Available = true
		d.CurrentBookingID = nil
		d.UpdatedAt = at
	}
	return true, nil
}

func (r *MemoryBookings) AppendEvent(_ context.Context, e *booking.Event) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.nextID++
	ev := *e
	ev.ID = r.m.nextID
	r.m.events = append(r.m.events, ev)
	return nil
}

type MemoryDrivers struct {
	m *Memory
}

func (r *MemoryDrivers) Create(_ context.Context, d *driver.Driver) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.drivers[d.ID]; ok {
		return fmt.Errorf("%w: %s", driver.ErrExists, d.ID)
	}
	r.m.drivers[d.ID] = cloneDriver(d)
	return nil
}

func (r *MemoryDrivers) Get(_ context.Context, id types.ID) (*driver.Driver, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	d, ok := r.m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrNotFound, id)
	}
	return cloneDriver(d), nil
}

func (r *MemoryDrivers) GetMany(_ context.Context, ids []types.ID) ([]*driver.Driver, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]*driver.Driver, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.m.drivers[id]; ok {
			out = append(out, cloneDriver(d))
		}
	}
	return out, nil
}

func (r *MemoryDrivers) UpdatePosition(_ context.Context, id types.ID, p types.Point, at time.Time) (*driver.Driver, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrNotFound, id)
	}
	d.Position = p
	d.UpdatedAt = at
	return cloneDriver(d), nil
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	cp := *b
	cp.DriverID = cloneID(b.DriverID)
	cp.ScheduledAt = cloneTime(b.ScheduledAt)
	cp.AcceptedAt = cloneTime(b.AcceptedAt)
	cp.DeliveredAt = cloneTime(b.DeliveredAt)
	return &cp
}

func cloneDriver(d *driver.Driver) *driver.Driver {
	cp := *d
	cp.CurrentBookingID = cloneID(d.CurrentBookingID)
	return &cp
}

func cloneID(v *types.ID) *types.ID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

var (
	_ booking.Repository  = (*MemoryBookings)(nil)
	_ driver.Repository   = (*MemoryDrivers)(nil)
	_ dispatch.ClaimStore = (*Memory)(nil)
)
