// README: Booking store backed by PostgreSQL.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"haul/internal/types"
)

// Repository is the authoritative booking record.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	GetMany(ctx context.Context, ids []types.ID) ([]*Booking, error)
	List(ctx context.Context, f ListFilter) ([]*Booking, error)
	// UpdateStatus applies from -> to only if the booking is still at from
	// with the given version. Moving to delivered releases the driver in the
	// same unit of work.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// Columns is the select list Scan expects, shared with the dispatch claim query.
const Columns = `id, rider_id, driver_id,
       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, pickup_address, dropoff_address,
       vehicle_class, distance_meters, estimated_cost, currency, estimated_duration_sec,
       status, status_version, payment_status,
       scheduled_at, created_at, accepted_at, delivered_at, updated_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, b *Booking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (
			id, rider_id, driver_id,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, pickup_address, dropoff_address,
			vehicle_class, distance_meters, estimated_cost, currency, estimated_duration_sec,
			status, status_version, payment_status, scheduled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20
		)`,
		string(b.ID), string(b.RiderID), toStringPtr(b.DriverID),
		b.Pickup.Lat, b.Pickup.Lng, b.Dropoff.Lat, b.Dropoff.Lng, b.PickupAddress, b.DropoffAddress,
		string(b.VehicleClass), b.DistanceMeters, b.EstimatedCost.Amount, b.EstimatedCost.Currency, b.EstimatedDurationSec,
		string(b.Status), b.StatusVersion, string(b.PaymentStatus), b.ScheduledAt, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+Columns+` FROM bookings WHERE id = $1`, string(id))
	b, err := Scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, err
}

func (s *Store) GetMany(ctx context.Context, ids []types.ID) ([]*Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+Columns+` FROM bookings WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Booking, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.UnassignedOnly {
		where = append(where, "driver_id IS NULL")
	}
	q := `SELECT ` + Columns + ` FROM bookings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var driverID *string
		err := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $1,
			    status_version = status_version + 1,
			    delivered_at = CASE WHEN $1 = 'order delivered' THEN $2 ELSE delivered_at END,
			    updated_at = $2
			WHERE id = $3 AND status = $4 AND status_version = $5
			RETURNING driver_id`,
			string(to), at, string(id), string(from), version,
		).Scan(&driverID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		applied = true

		if to != StatusDelivered || driverID == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE drivers
			SET available = TRUE, current_booking_id = NULL, updated_at = $2
			WHERE id = $1 AND current_booking_id = $3`,
			*driverID, at, string(id),
		)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_state_events (
			booking_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

// Scan reads one row selected with Columns.
func Scan(row pgx.Row) (*Booking, error) {
	var b Booking
	var driverID *string
	var class, status, payment string
	err := row.Scan(
		&b.ID, &b.RiderID, &driverID,
		&b.Pickup.Lat, &b.Pickup.Lng, &b.Dropoff.Lat, &b.Dropoff.Lng, &b.PickupAddress, &b.DropoffAddress,
		&class, &b.DistanceMeters, &b.EstimatedCost.Amount, &b.EstimatedCost.Currency, &b.EstimatedDurationSec,
		&status, &b.StatusVersion, &payment,
		&b.ScheduledAt, &b.CreatedAt, &b.AcceptedAt, &b.DeliveredAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		b.DriverID = &d
	}
	b.VehicleClass = types.VehicleClass(class)
	b.Status = Status(status)
	b.PaymentStatus = PaymentStatus(payment)
	return &b, nil
}

func collect(rows pgx.Rows) ([]*Booking, error) {
	defer rows.Close()
	var out []*Booking
	for rows.Next() {
		b, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
