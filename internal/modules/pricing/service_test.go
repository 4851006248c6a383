package pricing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"haul/internal/config"
	"haul/internal/logging"
	"haul/internal/types"
)

func TestEstimate(t *testing.T) {
	a := types.Point{Lat: 30.63, Lng: 76.72}
	sameLat := types.Point{Lat: 30.63, Lng: 76.80}
	otherLat := types.Point{Lat: 30.70, Lng: 76.72}

	tests := []struct {
		name      string
		req       Request
		wantMinor int64
		wantToll  float64
	}{
		{
			name:      "small van, short trip, same latitude has no toll",
			req:       Request{DistanceMeters: 10000, Duration: 30 * time.Second, VehicleClass: types.VehicleSmallVan, Pickup: a, Dropoff: sameLat},
			wantMinor: 17780, // 10*10*1.6*1.1 + 1.8
		},
		{
			name:      "differing latitude adds the flat toll",
			req:       Request{DistanceMeters: 10000, Duration: 30 * time.Second, VehicleClass: types.VehicleSmallVan, Pickup: a, Dropoff: otherLat},
			wantMinor: 18280,
			wantToll:  5,
		},
		{
			name:      "traffic multiplier past the threshold",
			req:       Request{DistanceMeters: 10000, Duration: 2 * time.Minute, VehicleClass: types.VehicleSmallVan, Pickup: a, Dropoff: sameLat},
			wantMinor: 21300, // 211.2 + 1.8
		},
		{
			name:      "exactly at the threshold is not traffic",
			req:       Request{DistanceMeters: 10000, Duration: 60 * time.Second, VehicleClass: types.VehicleSmallVan, Pickup: a, Dropoff: sameLat},
			wantMinor: 17780,
		},
		{
			name:      "semi truck rate",
			req:       Request{DistanceMeters: 10000, Duration: 30 * time.Second, VehicleClass: types.VehicleSemiTruck, Pickup: a, Dropoff: sameLat},
			wantMinor: 26580,
		},
		{
			name:      "unknown class falls back to the default rate",
			req:       Request{DistanceMeters: 10000, Duration: 30 * time.Second, VehicleClass: "hovercraft", Pickup: a, Dropoff: sameLat},
			wantMinor: 17780,
		},
		{
			name:      "zero distance",
			req:       Request{DistanceMeters: 0, Duration: 0, VehicleClass: types.VehicleLargeTruck, Pickup: a, Dropoff: a},
			wantMinor: 0,
		},
	}

	cfg := config.DefaultPricing()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Estimate(cfg, tt.req)
			if q.Total.Amount != tt.wantMinor {
				t.Errorf("Total = %d, want %d (amount %f)", q.Total.Amount, tt.wantMinor, q.Amount)
			}
			if q.Total.Currency != "INR" {
				t.Errorf("Currency = %q", q.Total.Currency)
			}
			if q.Breakdown["toll"] != tt.wantToll {
				t.Errorf("toll = %f, want %f", q.Breakdown["toll"], tt.wantToll)
			}
			if q.Duration != tt.req.Duration {
				t.Errorf("Duration = %s, want %s", q.Duration, tt.req.Duration)
			}
		})
	}
}

func TestEstimate_SurgeIsParameterised(t *testing.T) {
	cfg := config.DefaultPricing()
	req := Request{DistanceMeters: 1000, VehicleClass: types.VehicleSmallVan}

	if got := Estimate(cfg, req).Breakdown["surge"]; math.Abs(got-1.6) > 1e-9 {
		t.Fatalf("default surge = %f, want 1.6", got)
	}

	cfg.DemandRatio = 1.0
	q := Estimate(cfg, req)
	if q.Breakdown["surge"] != 1.0 {
		t.Fatalf("surge with no excess demand = %f, want 1", q.Breakdown["surge"])
	}
	// 1km * 10 * 1.0 * 1.1 + 0.18
	if math.Abs(q.Amount-11.18) > 1e-9 {
		t.Fatalf("Amount = %f, want 11.18", q.Amount)
	}
}

type stubRates struct {
	rates []Rate
	err   error
}

func (s stubRates) ListRates(context.Context) ([]Rate, error) { return s.rates, s.err }

func TestService_LoadRatesOverridesConfig(t *testing.T) {
	cfg := config.DefaultPricing()
	svc := NewService(cfg, stubRates{rates: []Rate{
		{VehicleClass: types.VehicleSmallVan, PerKm: 12},
		{VehicleClass: "bicycle", PerKm: 1},
	}}, logging.Discard())

	if err := svc.LoadRates(context.Background()); err != nil {
		t.Fatalf("LoadRates: %v", err)
	}
	q, err := svc.Estimate(context.Background(), Request{DistanceMeters: 10000, Duration: 30 * time.Second, VehicleClass: types.VehicleSmallVan})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	// 12*10*1.6*1.1 + 1.8 = 213.0
	if q.Total.Amount != 21300 {
		t.Fatalf("Total = %d, want 21300", q.Total.Amount)
	}
	if cfg.BaseRatePerKm[types.VehicleSmallVan] != 10 {
		t.Fatal("service must not mutate the caller's config")
	}
}

func TestService_LoadRatesError(t *testing.T) {
	boom := errors.New("db down")
	svc := NewService(config.DefaultPricing(), stubRates{err: boom}, logging.Discard())
	if err := svc.LoadRates(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestService_EstimateRejectsNegativeInput(t *testing.T) {
	svc := NewService(config.DefaultPricing(), nil, logging.Discard())
	ctx := context.Background()

	if _, err := svc.Estimate(ctx, Request{DistanceMeters: -1}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("negative distance: expected ErrBadRequest, got %v", err)
	}
	if _, err := svc.Estimate(ctx, Request{DistanceMeters: 1, Duration: -time.Second}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("negative duration: expected ErrBadRequest, got %v", err)
	}
	if err := svc.LoadRates(ctx); err != nil {
		t.Errorf("LoadRates without store should be a no-op, got %v", err)
	}
}
