// README: Pricing store backed by PostgreSQL (vehicle_rates overrides).
package pricing

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"haul/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) ListRates(ctx context.Context) ([]Rate, error) {
	rows, err := s.db.Query(ctx, `SELECT vehicle_class, rate_per_km FROM vehicle_rates`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Rate, error) {
		var r Rate
		var class string
		if err := row.Scan(&class, &r.PerKm); err != nil {
			return Rate{}, err
		}
		r.VehicleClass = types.VehicleClass(class)
		return r, nil
	})
}
