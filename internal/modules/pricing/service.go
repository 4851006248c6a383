// README: Pricing service computes booking estimates with per-class rate overrides.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"haul/internal/config"
	"haul/internal/types"
)

type RateStore interface {
	ListRates(ctx context.Context) ([]Rate, error)
}

type Service struct {
	store  RateStore
	logger *slog.Logger

	mu  sync.RWMutex
	cfg config.PricingConfig
}

// NewService copies cfg; store may be nil when no override table exists.
func NewService(cfg config.PricingConfig, store RateStore, logger *slog.Logger) *Service {
	rates := make(map[types.VehicleClass]float64, len(cfg.BaseRatePerKm))
	for k, v := range cfg.BaseRatePerKm {
		rates[k] = v
	}
	cfg.BaseRatePerKm = rates
	return &Service{store: store, logger: logger, cfg: cfg}
}

// LoadRates merges vehicle_rates overrides over the configured rates.
func (s *Service) LoadRates(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rates, err := s.store.ListRates(ctx)
	if err != nil {
		return fmt.Errorf("load vehicle rates: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rates {
		if !r.VehicleClass.Valid() || r.PerKm < 0 {
			s.logger.Warn("ignoring vehicle rate override", "vehicle_class", r.VehicleClass, "per_km", r.PerKm)
			continue
		}
		s.cfg.BaseRatePerKm[r.VehicleClass] = r.PerKm
	}
	s.logger.Info("vehicle rates loaded", "overrides", len(rates))
	return nil
}

func (s *Service) Estimate(_ context.Context, req Request) (Quote, error) {
	if req.DistanceMeters < 0 || math.IsNaN(req.DistanceMeters) || math.IsInf(req.DistanceMeters, 0) {
		return Quote{}, fmt.Errorf("%w: distance %f", ErrBadRequest, req.DistanceMeters)
	}
	if req.Duration < 0 {
		return Quote{}, fmt.Errorf("%w: duration %s", ErrBadRequest, req.Duration)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Estimate(s.cfg, req), nil
}
