// README: Driver registry service; registration indexes the driver for nearby queries.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"haul/internal/geo"
	"haul/internal/types"
)

type Service struct {
	repo   Repository
	index  geo.Index
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, index geo.Index, logger *slog.Logger) *Service {
	return &Service{repo: repo, index: index, logger: logger, now: time.Now}
}

type RegisterCommand struct {
	ID            types.ID
	Name          string
	VehicleNumber string
	VehicleClass  types.VehicleClass
	Position      types.Point
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Driver, error) {
	if strings.TrimSpace(string(cmd.ID)) == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	if !cmd.VehicleClass.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownVehicleClass, cmd.VehicleClass)
	}
	if err := cmd.Position.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	d := &Driver{
		ID:            cmd.ID,
		Name:          cmd.Name,
		VehicleNumber: cmd.VehicleNumber,
		VehicleClass:  cmd.VehicleClass,
		Position:      cmd.Position,
		Available:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	if err := s.index.Upsert(ctx, geo.DriverLayer(d.VehicleClass), d.ID, d.Position); err != nil {
		s.logger.Warn("index driver failed", "driver_id", d.ID, "error", err)
	}
	s.logger.Info("driver registered", "driver_id", d.ID, "vehicle_class", d.VehicleClass)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	return s.repo.Get(ctx, id)
}
