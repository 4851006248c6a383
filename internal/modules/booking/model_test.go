package booking

import (
	"errors"
	"testing"
	"time"

	"haul/internal/types"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"requested", StatusRequested},
		{"going-for-pickup", StatusGoingForPickup},
		{"going for pick up", StatusGoingForPickup},
		{"ORDER_PICKED_UP", StatusPickedUp},
		{"en-route-for-deliver", StatusEnRoute},
		{" order delivered ", StatusDelivered},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseStatus("teleported"); !errors.Is(err, ErrBadRequest) {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}

func TestLifecycleOrder(t *testing.T) {
	order := []Status{StatusRequested, StatusAccepted, StatusGoingForPickup, StatusPickedUp, StatusEnRoute, StatusDelivered}
	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		if !ok || next != order[i+1] {
			t.Errorf("%s.Next() = %s, %v; want %s", order[i], next, ok, order[i+1])
		}
		for j := range order {
			if j != i+1 && CanTransition(order[i], order[j]) {
				t.Errorf("CanTransition(%s, %s) should be false", order[i], order[j])
			}
		}
	}
	if _, ok := StatusDelivered.Next(); ok || !StatusDelivered.Terminal() {
		t.Error("delivered must be terminal")
	}
	for _, s := range order {
		if CanTransition(s, StatusScheduled) || CanTransition(StatusScheduled, s) {
			t.Errorf("scheduled must stay outside the transition graph (%s)", s)
		}
	}
}

func TestOpen(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)
	d := types.ID("d1")

	tests := []struct {
		name string
		b    Booking
		want bool
	}{
		{"requested", Booking{Status: StatusRequested}, true},
		{"assigned", Booking{Status: StatusRequested, DriverID: &d}, false},
		{"accepted", Booking{Status: StatusAccepted, DriverID: &d}, false},
		{"scheduled later", Booking{Status: StatusRequested, ScheduledAt: &later}, false},
		{"scheduled time reached", Booking{Status: StatusRequested, ScheduledAt: &earlier}, true},
	}
	for _, tt := range tests {
		if got := tt.b.Open(now); got != tt.want {
			t.Errorf("%s: Open = %v, want %v", tt.name, got, tt.want)
		}
	}
}
