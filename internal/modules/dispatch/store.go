// README: Postgres claim transaction (driver row lock + conditional booking update).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"haul/internal/modules/booking"
	"haul/internal/modules/driver"
	"haul/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Claim(ctx context.Context, bookingID, driverID types.ID, at time.Time) (*booking.Booking, error) {
	var claimed *booking.Booking
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var class string
		var available bool
		err := tx.QueryRow(ctx,
			`SELECT vehicle_class, available FROM drivers WHERE id = $1 FOR UPDATE`,
			string(driverID),
		).Scan(&class, &available)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", driver.ErrNotFound, driverID)
		}
		if err != nil {
			return err
		}
		if !available {
			// A booking that is already taken reads as AlreadyClaimed even for a busy driver.
			b, err := s.claimTarget(ctx, tx, bookingID)
			if err != nil {
				return err
			}
			if b.Status != booking.StatusRequested || b.DriverID != nil {
				return fmt.Errorf("%w: %s", ErrAlreadyClaimed, b.ID)
			}
			return fmt.Errorf("%w: %s", ErrDriverUnavailable, driverID)
		}

		row := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = 'accepted',
			    driver_id = $2,
			    status_version = status_version + 1,
			    accepted_at = $3,
			    updated_at = $3
			WHERE id = $1
			  AND status = 'requested'
			  AND driver_id IS NULL
			  AND vehicle_class = $4
			  AND (scheduled_at IS NULL OR scheduled_at <= $3)
			RETURNING `+booking.Columns,
			string(bookingID), string(driverID), at, class,
		)
		claimed, err = booking.Scan(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.refusal(ctx, tx, bookingID, types.VehicleClass(class), at)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE drivers
			SET available = FALSE, current_booking_id = $2, updated_at = $3
			WHERE id = $1`,
			string(driverID), string(bookingID), at,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// refusal explains why the conditional update matched no row.
func (s *Store) refusal(ctx context.Context, tx pgx.Tx, bookingID types.ID, class types.VehicleClass, at time.Time) error {
	b, err := s.claimTarget(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	return Classify(b, class, at)
}

// claimTarget reads the claim-relevant columns of a booking inside the tx.
func (s *Store) claimTarget(ctx context.Context, tx pgx.Tx, bookingID types.ID) (*booking.Booking, error) {
	var status, bookingClass string
	var driverID *string
	var scheduledAt *time.Time
	err := tx.QueryRow(ctx,
		`SELECT status, driver_id, vehicle_class, scheduled_at FROM bookings WHERE id = $1`,
		string(bookingID),
	).Scan(&status, &driverID, &bookingClass, &scheduledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, bookingID)
	}
	if err != nil {
		return nil, err
	}
	b := &booking.Booking{
		ID:           bookingID,
		Status:       booking.Status(status),
		VehicleClass: types.VehicleClass(bookingClass),
		ScheduledAt:  scheduledAt,
	}
	if driverID != nil {
		d := types.ID(*driverID)
		b.DriverID = &d
	}
	return b, nil
}

// Classify maps a booking that a driver of class failed to claim to its error
// kind. A booking that has left requested always reads as AlreadyClaimed.
func Classify(b *booking.Booking, class types.VehicleClass, at time.Time) error {
	switch {
	case b.Status != booking.StatusRequested || b.DriverID != nil:
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, b.ID)
	case b.VehicleClass != class:
		return fmt.Errorf("%w: booking %s needs %s, driver has %s", ErrVehicleMismatch, b.ID, b.VehicleClass, class)
	case b.ScheduledAt != nil && b.ScheduledAt.After(at):
		return fmt.Errorf("%w: %s opens at %s", ErrNotYetOpen, b.ID, b.ScheduledAt.Format(time.RFC3339))
	default:
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, b.ID)
	}
}

