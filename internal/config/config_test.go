package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"haul/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HAUL_ROUTING_GOOGLE_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Matching.RadiusMeters != 50000 {
		t.Errorf("radius = %v", cfg.Matching.RadiusMeters)
	}
	if cfg.Pricing.TrafficThreshold != 60*time.Second {
		t.Errorf("traffic threshold = %v", cfg.Pricing.TrafficThreshold)
	}
	if got := cfg.Pricing.BaseRatePerKm[types.VehicleLargeTruck]; got != 20 {
		t.Errorf("large truck rate = %v", got)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected no kafka brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HAUL_ROUTING_PROVIDER", "osrm")
	t.Setenv("HAUL_STORE_DRIVER", "memory")
	t.Setenv("HAUL_GEO_INDEX", "rtree")
	t.Setenv("HAUL_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("HAUL_PRICING_TRAFFIC_THRESHOLD", "60m")
	t.Setenv("HAUL_PRICING_RATE_SEMI_TRUCK", "18.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != "memory" || cfg.Geo.Index != "rtree" {
		t.Errorf("store=%q geo=%q", cfg.Store.Driver, cfg.Geo.Index)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Pricing.TrafficThreshold != time.Hour {
		t.Errorf("traffic threshold = %v", cfg.Pricing.TrafficThreshold)
	}
	if got := cfg.Pricing.BaseRatePerKm[types.VehicleSemiTruck]; got != 18.5 {
		t.Errorf("semi truck rate = %v", got)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	t.Setenv("HAUL_STORE_DRIVER", "mongo")
	t.Setenv("HAUL_GEO_INDEX", "s2")
	t.Setenv("HAUL_MATCHING_RADIUS_M", "-1")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"store.driver", "geo.index", "google_api_key", "radius_m"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestLoadRejectsNegativePricing(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"toll", map[string]string{"HAUL_PRICING_TOLL_COST": "-5"}, "fuel and toll"},
		{"fuel price", map[string]string{"HAUL_PRICING_FUEL_PRICE_PER_LITER": "-1.2"}, "fuel and toll"},
		{"class rate", map[string]string{"HAUL_PRICING_RATE_SMALL_VAN": "-3"}, "pricing.rate_small_van"},
		{"default rate", map[string]string{"HAUL_PRICING_DEFAULT_RATE": "-1"}, "pricing.default_rate"},
		{"driver experience", map[string]string{"HAUL_PRICING_DRIVER_EXPERIENCE_MULTIPLIER": "-0.5"}, "multipliers"},
		{"surge below zero", map[string]string{
			"HAUL_PRICING_DEMAND_RATIO": "0.2",
			"HAUL_PRICING_SURGE_FACTOR": "2",
		}, "negative surge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HAUL_ROUTING_GOOGLE_API_KEY", "test-key")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadAcceptsDiscountSurge(t *testing.T) {
	t.Setenv("HAUL_ROUTING_GOOGLE_API_KEY", "test-key")
	t.Setenv("HAUL_PRICING_DEMAND_RATIO", "0.5")
	t.Setenv("HAUL_PRICING_SURGE_FACTOR", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pricing.DemandRatio != 0.5 {
		t.Errorf("demand ratio = %v", cfg.Pricing.DemandRatio)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "haul.yaml")
	body := "routing:\n  provider: osrm\nmatching:\n  radius_m: 1200\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HAUL_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Matching.RadiusMeters != 1200 {
		t.Errorf("radius = %v", cfg.Matching.RadiusMeters)
	}
	if cfg.Routing.Provider != "osrm" {
		t.Errorf("provider = %q", cfg.Routing.Provider)
	}
}
