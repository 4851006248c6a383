package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"haul/internal/config"
	"haul/internal/events"
	"haul/internal/geo"
	"haul/internal/logging"
	"haul/internal/modules/booking"
	"haul/internal/modules/dispatch"
	"haul/internal/modules/driver"
	"haul/internal/storage"
	"haul/internal/types"
)

var (
	driverPos = types.Point{Lat: 30.63, Lng: 76.72}
	nearby    = types.Point{Lat: 30.66, Lng: 76.74} // ~3.9km
	farAway   = types.Point{Lat: 31.20, Lng: 76.72} // ~63km
)

type harness struct {
	mem   *storage.Memory
	index geo.Index
	hub   *events.Hub
	svc   *dispatch.Service
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mem:   storage.NewMemory(),
		index: geo.NewCellIndex(50000),
		hub:   events.NewHub(),
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.svc = dispatch.NewService(dispatch.Deps{
		Bookings: h.mem.Bookings(),
		Drivers:  h.mem.Drivers(),
		Claims:   h.mem,
		Index:    h.index,
		Events:   h.hub,
		Config:   config.MatchingConfig{RadiusMeters: 50000, SweepSeconds: 30},
		Logger:   logging.Discard(),
		Now:      func() time.Time { return h.now },
	})
	return h
}

func (h *harness) addBooking(t *testing.T, id types.ID, class types.VehicleClass, at types.Point) *booking.Booking {
	t.Helper()
	b := &booking.Booking{
		ID:            id,
		RiderID:       "rider-1",
		Pickup:        at,
		Dropoff:       types.Point{Lat: at.Lat + 0.1, Lng: at.Lng},
		VehicleClass:  class,
		Status:        booking.StatusRequested,
		PaymentStatus: booking.PaymentPending,
		CreatedAt:     h.now,
		UpdatedAt:     h.now,
	}
	ctx := context.Background()
	if err := h.mem.Bookings().Create(ctx, b); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if err := h.index.Upsert(ctx, geo.BookingLayer(class), id, at); err != nil {
		t.Fatalf("index booking: %v", err)
	}
	return b
}

func (h *harness) addDriver(t *testing.T, id types.ID, class types.VehicleClass, at types.Point) {
	t.Helper()
	ctx := context.Background()
	err := h.mem.Drivers().Create(ctx, &driver.Driver{ID: id, VehicleClass: class, Position: at, Available: true})
	if err != nil {
		t.Fatalf("create driver: %v", err)
	}
	if err := h.index.Upsert(ctx, geo.DriverLayer(class), id, at); err != nil {
		t.Fatalf("index driver: %v", err)
	}
}

func jobIDs(jobs []*booking.Booking) []types.ID {
	out := make([]types.ID, len(jobs))
	for i, b := range jobs {
		out[i] = b.ID
	}
	return out
}

func TestFindAvailableJobs_VehicleClassScenario(t *testing.T) {
	h := newHarness(t)
	h.addBooking(t, "van", types.VehicleSmallVan, nearby)
	h.addBooking(t, "semi", types.VehicleSemiTruck, nearby)

	jobs, err := h.svc.FindAvailableJobs(context.Background(), dispatch.JobQuery{
		Position:     driverPos,
		VehicleClass: types.VehicleSmallVan,
		RadiusMeters: 50000,
	})
	if err != nil {
		t.Fatalf("FindAvailableJobs: %v", err)
	}
	if got := jobIDs(jobs); len(got) != 1 || got[0] != "van" {
		t.Fatalf("expected only the small-van booking, got %v", got)
	}
}

func TestFindAvailableJobs_Filters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addBooking(t, "near", types.VehicleSmallVan, nearby)
	h.addBooking(t, "far", types.VehicleSmallVan, farAway)
	h.addBooking(t, "taken", types.VehicleSmallVan, nearby)
	h.addBooking(t, "open", types.VehicleSmallVan, nearby)
	h.addDriver(t, "d1", types.VehicleSmallVan, driverPos)
	future := h.now.Add(2 * time.Hour)
	later := &booking.Booking{
		ID: "later", RiderID: "r", Pickup: nearby, VehicleClass: types.VehicleSmallVan,
		Status: booking.StatusRequested, PaymentStatus: booking.PaymentPending, ScheduledAt: &future,
	}
	if err := h.mem.Bookings().Create(ctx, later); err != nil {
		t.Fatalf("create scheduled booking: %v", err)
	}
	_ = h.index.Upsert(ctx, geo.BookingLayer(types.VehicleSmallVan), "later", nearby)

	// Claim directly in the store so the index still holds a stale entry.
	if _, err := h.mem.Claim(ctx, "taken", "d1", h.now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	q := dispatch.JobQuery{Position: driverPos, VehicleClass: types.VehicleSmallVan}
	jobs, err := h.svc.FindAvailableJobs(ctx, q)
	if err != nil {
		t.Fatalf("FindAvailableJobs: %v", err)
	}
	got := fmt.Sprint(jobIDs(jobs))
	if got != "[near open]" && got != "[open near]" {
		t.Fatalf("unexpected jobs %s", got)
	}
	for _, b := range jobs {
		if b.Status != booking.StatusRequested || b.DriverID != nil || b.VehicleClass != types.VehicleSmallVan {
			t.Fatalf("returned non-open booking %+v", b)
		}
		if geo.DistanceMeters(driverPos, b.Pickup) > 50000 {
			t.Fatalf("returned booking outside radius: %s", b.ID)
		}
	}

	if _, ok, _ := h.index.Position(ctx, geo.BookingLayer(types.VehicleSmallVan), "taken"); ok {
		t.Error("claimed booking should be pruned from the index")
	}
	if _, ok, _ := h.index.Position(ctx, geo.BookingLayer(types.VehicleSmallVan), "later"); !ok {
		t.Error("scheduled booking must stay indexed until it opens")
	}

	h.now = future
	jobs, _ = h.svc.FindAvailableJobs(ctx, q)
	if len(jobs) != 3 {
		t.Fatalf("scheduled booking should appear once its time arrives, got %v", jobIDs(jobs))
	}
}

func TestFindAvailableJobs_PrunesUnknownIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	layer := geo.BookingLayer(types.VehicleSmallVan)
	_ = h.index.Upsert(ctx, layer, "ghost", nearby)

	jobs, err := h.svc.FindAvailableJobs(ctx, dispatch.JobQuery{Position: driverPos, VehicleClass: types.VehicleSmallVan})
	if err != nil {
		t.Fatalf("FindAvailableJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %v", jobIDs(jobs))
	}
	if _, ok, _ := h.index.Position(ctx, layer, "ghost"); ok {
		t.Fatal("unknown id should be pruned")
	}
}

func TestFindAvailableJobs_InvalidInput(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name    string
		q       dispatch.JobQuery
		wantErr error
	}{
		{"bad latitude", dispatch.JobQuery{Position: types.Point{Lat: -95}, VehicleClass: types.VehicleSmallVan}, types.ErrInvalidCoordinate},
		{"unknown class", dispatch.JobQuery{Position: driverPos, VehicleClass: "rickshaw"}, types.ErrUnknownVehicleClass},
		{"NaN radius", dispatch.JobQuery{Position: driverPos, VehicleClass: types.VehicleSmallVan, RadiusMeters: math.NaN()}, dispatch.ErrInvalidRadius},
		{"infinite radius", dispatch.JobQuery{Position: driverPos, VehicleClass: types.VehicleSmallVan, RadiusMeters: math.Inf(1)}, dispatch.ErrInvalidRadius},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.FindAvailableJobs(context.Background(), tt.q)
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, dispatch.ErrBadRequest) {
				t.Fatalf("expected %v and ErrBadRequest, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClaim_ConcurrentExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addBooking(t, "B", types.VehicleSmallVan, nearby)

	const drivers = 12
	for i := 0; i < drivers; i++ {
		h.addDriver(t, types.ID(fmt.Sprintf("d%d", i)), types.VehicleSmallVan, driverPos)
	}

	type result struct {
		driver types.ID
		err    error
	}
	start := make(chan struct{})
	results := make(chan result, drivers)
	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		id := types.ID(fmt.Sprintf("d%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.Claim(ctx, dispatch.ClaimCommand{BookingID: "B", DriverID: id})
			results <- result{driver: id, err: err}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var winner types.ID
	for r := range results {
		if r.err == nil {
			if winner != "" {
				t.Fatalf("two winners: %s and %s", winner, r.driver)
			}
			winner = r.driver
			continue
		}
		if !errors.Is(r.err, dispatch.ErrAlreadyClaimed) {
			t.Fatalf("loser %s got %v, want ErrAlreadyClaimed", r.driver, r.err)
		}
	}
	if winner == "" {
		t.Fatal("expected one winner")
	}

	b, _ := h.mem.Bookings().Get(ctx, "B")
	if b.Status != booking.StatusAccepted || b.DriverID == nil || *b.DriverID != winner {
		t.Fatalf("booking not bound to winner: status=%s driver=%v", b.Status, b.DriverID)
	}
	for i := 0; i < drivers; i++ {
		d, _ := h.mem.Drivers().Get(ctx, types.ID(fmt.Sprintf("d%d", i)))
		if d.Available != (d.CurrentBookingID == nil) {
			t.Fatalf("driver %s violates availability invariant", d.ID)
		}
		if d.ID == winner && d.Available {
			t.Fatalf("winner %s still available", d.ID)
		}
		if d.ID != winner && !d.Available {
			t.Fatalf("loser %s should remain available", d.ID)
		}
	}
	if _, ok, _ := h.index.Position(ctx, geo.BookingLayer(types.VehicleSmallVan), "B"); ok {
		t.Error("claimed booking should leave the index")
	}
}

func TestClaim_SameDriverDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addBooking(t, "B", types.VehicleSmallVan, nearby)
	h.addDriver(t, "d1", types.VehicleSmallVan, driverPos)

	const attempts = 8
	start := make(chan struct{})
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.Claim(ctx, dispatch.ClaimCommand{BookingID: "B", DriverID: "d1"})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, dispatch.ErrAlreadyClaimed) {
			t.Fatalf("repeat claim got %v, want ErrAlreadyClaimed", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one success, got %d", wins)
	}
}

func TestClaim_Preconditions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addBooking(t, "van", types.VehicleSmallVan, nearby)
	h.addBooking(t, "van-2", types.VehicleSmallVan, nearby)
	h.addDriver(t, "van-driver", types.VehicleSmallVan, driverPos)
	h.addDriver(t, "semi-driver", types.VehicleSemiTruck, driverPos)
	h.addBooking(t, "van-3", types.VehicleSmallVan, nearby)
	h.addDriver(t, "busy-driver", types.VehicleSmallVan, driverPos)
	h.addDriver(t, "other-busy", types.VehicleSmallVan, driverPos)
	if _, err := h.svc.Claim(ctx, dispatch.ClaimCommand{BookingID: "van-2", DriverID: "busy-driver"}); err != nil {
		t.Fatalf("setup claim: %v", err)
	}
	if _, err := h.svc.Claim(ctx, dispatch.ClaimCommand{BookingID: "van-3", DriverID: "other-busy"}); err != nil {
		t.Fatalf("setup claim: %v", err)
	}
	future := h.now.Add(time.Hour)
	later := &booking.Booking{
		ID: "later", RiderID: "r", Pickup: nearby, VehicleClass: types.VehicleSmallVan,
		Status: booking.StatusRequested, PaymentStatus: booking.PaymentPending, ScheduledAt: &future,
	}
	_ = h.mem.Bookings().Create(ctx, later)

	tests := []struct {
		name    string
		cmd     dispatch.ClaimCommand
		wantErr error
	}{
		{"unknown driver", dispatch.ClaimCommand{BookingID: "van", DriverID: "nobody"}, driver.ErrNotFound},
		{"unknown booking", dispatch.ClaimCommand{BookingID: "nothing", DriverID: "van-driver"}, booking.ErrNotFound},
		{"driver already busy", dispatch.ClaimCommand{BookingID: "van", DriverID: "busy-driver"}, dispatch.ErrDriverUnavailable},
		{"vehicle mismatch", dispatch.ClaimCommand{BookingID: "van", DriverID: "semi-driver"}, dispatch.ErrVehicleMismatch},
		{"scheduled not open", dispatch.ClaimCommand{BookingID: "later", DriverID: "van-driver"}, dispatch.ErrNotYetOpen},
		{"already claimed", dispatch.ClaimCommand{BookingID: "van-2", DriverID: "van-driver"}, dispatch.ErrAlreadyClaimed},
		{"holder retries its own claim", dispatch.ClaimCommand{BookingID: "van-2", DriverID: "busy-driver"}, dispatch.ErrAlreadyClaimed},
		{"busy driver on a taken booking", dispatch.ClaimCommand{BookingID: "van-3", DriverID: "busy-driver"}, dispatch.ErrAlreadyClaimed},
		{"missing ids", dispatch.ClaimCommand{}, dispatch.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Claim(ctx, tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	van, _ := h.mem.Bookings().Get(ctx, "van")
	if van.Status != booking.StatusRequested || van.DriverID != nil {
		t.Fatal("refused claims must leave the booking untouched")
	}
}

func TestClaim_AuditsAndPublishes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addBooking(t, "B", types.VehicleLargeTruck, nearby)
	h.addDriver(t, "d1", types.VehicleLargeTruck, driverPos)
	sub := h.hub.Subscribe(events.BookingTopic("B"))
	defer sub.Close()

	b, err := h.svc.Claim(ctx, dispatch.ClaimCommand{BookingID: "B", DriverID: "d1"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if b.AcceptedAt == nil || b.StatusVersion != 1 {
		t.Fatalf("unexpected claimed booking: %+v", b)
	}

	select {
	case e := <-sub.C():
		if e.Type != events.BookingClaimed || e.DriverID != "d1" {
			t.Fatalf("unexpected event %+v", e)
		}
	default:
		t.Fatal("expected a claim event")
	}
	evs := h.mem.Events()
	if len(evs) != 1 || evs[0].ToStatus != booking.StatusAccepted || evs[0].ActorID == nil || *evs[0].ActorID != "d1" {
		t.Fatalf("unexpected audit trail %+v", evs)
	}
}

func TestNearbyDrivers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addDriver(t, "free", types.VehicleSmallVan, nearby)
	h.addDriver(t, "busy", types.VehicleSmallVan, nearby)
	h.addDriver(t, "far", types.VehicleSmallVan, farAway)
	h.addDriver(t, "semi", types.VehicleSemiTruck, nearby)
	h.addBooking(t, "B", types.VehicleSmallVan, nearby)
	if _, err := h.svc.Claim(ctx, dispatch.ClaimCommand{BookingID: "B", DriverID: "busy"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := h.svc.NearbyDrivers(ctx, dispatch.JobQuery{Position: driverPos, VehicleClass: types.VehicleSmallVan, RadiusMeters: 10000})
	if err != nil {
		t.Fatalf("NearbyDrivers: %v", err)
	}
	if len(got) != 1 || got[0].ID != "free" {
		ids := make([]types.ID, len(got))
		for i, d := range got {
			ids[i] = d.ID
		}
		t.Fatalf("expected only the free driver, got %v", ids)
	}
}

func TestSweepIndex_RebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addBooking(t, "a", types.VehicleSmallVan, nearby)
	h.addBooking(t, "b", types.VehicleExtraLargeTruck, nearby)
	h.addBooking(t, "c", types.VehicleSmallVan, nearby)
	h.addDriver(t, "d1", types.VehicleSmallVan, driverPos)
	if _, err := h.svc.Claim(ctx, dispatch.ClaimCommand{BookingID: "c", DriverID: "d1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	fresh := geo.NewTreeIndex()
	svc := dispatch.NewService(dispatch.Deps{
		Bookings: h.mem.Bookings(),
		Drivers:  h.mem.Drivers(),
		Claims:   h.mem,
		Index:    fresh,
		Logger:   logging.Discard(),
	})
	n, err := svc.SweepIndex(ctx)
	if err != nil {
		t.Fatalf("SweepIndex: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 open bookings indexed, got %d", n)
	}
	jobs, err := svc.FindAvailableJobs(ctx, dispatch.JobQuery{Position: driverPos, VehicleClass: types.VehicleExtraLargeTruck})
	if err != nil {
		t.Fatalf("FindAvailableJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "b" {
		t.Fatalf("expected rebuilt index to serve b, got %v", jobIDs(jobs))
	}
}
