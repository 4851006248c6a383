// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"haul/internal/types"
)

type Repository interface {
	Create(ctx context.Context, d *Driver) error
	Get(ctx context.Context, id types.ID) (*Driver, error)
	GetMany(ctx context.Context, ids []types.ID) ([]*Driver, error)
	UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) (*Driver, error)
}

const columns = `id, name, vehicle_number, vehicle_class, lat, lng, available, current_booking_id, created_at, updated_at`

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (
			id, name, vehicle_number, vehicle_class, lat, lng, available, current_booking_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(d.ID), d.Name, d.VehicleNumber, string(d.VehicleClass),
		d.Position.Lat, d.Position.Lng, d.Available, toStringPtr(d.CurrentBookingID),
		d.CreatedAt, d.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrExists, d.ID)
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+columns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, err
}

func (s *Store) GetMany(ctx context.Context, ids []types.ID) ([]*Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+columns+` FROM drivers WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Driver
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE drivers SET lat = $2, lng = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+columns,
		string(id), p.Lat, p.Lng, at,
	)
	d, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, err
}

func scan(row pgx.Row) (*Driver, error) {
	var d Driver
	var class string
	var current *string
	err := row.Scan(
		&d.ID, &d.Name, &d.VehicleNumber, &class,
		&d.Position.Lat, &d.Position.Lng, &d.Available, &current,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.VehicleClass = types.VehicleClass(class)
	if current != nil {
		b := types.ID(*current)
		d.CurrentBookingID = &b
	}
	return &d, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
