package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/swiftbus/booking-backend/internal/models"
)

// SeatInventoryRepository stores per-trip seat state in seat_holds.
// A missing row means the seat is free. A held row whose held_until is not
// after now is treated as free by every query here.
type SeatInventoryRepository struct {
	db *sqlx.DB
}

// NewSeatInventoryRepository creates a new seat inventory repository
func NewSeatInventoryRepository(db *sqlx.DB) *SeatInventoryRepository {
	return &SeatInventoryRepository{db: db}
}

// ListUnavailableSeats returns seats that are occupied or held past now
func (r *SeatInventoryRepository) ListUnavailableSeats(ctx context.Context, scheduleID uuid.UUID, travelDate time.Time, now time.Time) ([]int, error) {
	query := `
		SELECT seat_number
		FROM seat_holds
		WHERE schedule_id = $1
		  AND travel_date = $2
		  AND (state = 'occupied' OR held_until > $3)
		ORDER BY seat_number
	`

	var seats []int
	if err := conn(ctx, r.db).SelectContext(ctx, &seats, query, scheduleID, travelDate, now); err != nil {
		return nil, fmt.Errorf("failed to list unavailable seats: %w", err)
	}
	return seats, nil
}

// HoldSeats holds every requested seat for the booking or none of them.
// Free seats, expired holds and the booking's own holds are taken. Seats the
// booking already occupies stay occupied and count as held. Anything else is
// reported as a seat conflict. Callers run it inside a transaction so
// a conflict rolls back the partial upsert.
func (r *SeatInventoryRepository) HoldSeats(ctx context.Context, req models.HoldRequest) error {
	if len(req.SeatNumbers) == 0 {
		return nil
	}

	seats := models.SeatNumbers(req.SeatNumbers).Int64s()
	query := `
		INSERT INTO seat_holds (
			schedule_id, travel_date, seat_number, booking_id,
			state, held_until, created_at, updated_at
		)
		SELECT $1, $2, seat, $3, 'held', $4, $5, $5
		FROM unnest($6::int[]) AS seat
		ON CONFLICT (schedule_id, travel_date, seat_number) DO UPDATE
		SET booking_id = EXCLUDED.booking_id,
			state = CASE WHEN seat_holds.booking_id = EXCLUDED.booking_id AND seat_holds.state = 'occupied'
				THEN 'occupied' ELSE 'held' END,
			held_until = CASE WHEN seat_holds.booking_id = EXCLUDED.booking_id AND seat_holds.state = 'occupied'
				THEN NULL ELSE EXCLUDED.held_until END,
			updated_at = EXCLUDED.updated_at
		WHERE seat_holds.booking_id = EXCLUDED.booking_id
		   OR (seat_holds.state = 'held' AND seat_holds.held_until <= $5)
	`

	q := conn(ctx, r.db)
	result, err := q.ExecContext(ctx, query,
		req.ScheduleID, req.TravelDate, req.BookingID, req.ExpiresAt, req.Now, seats,
	)
	if err != nil {
		return fmt.Errorf("failed to hold seats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == int64(len(req.SeatNumbers)) {
		return nil
	}

	conflicts, err := r.conflictingSeats(ctx, q, req)
	if err != nil {
		return err
	}
	return models.NewSeatConflictError(conflicts)
}

func (r *SeatInventoryRepository) conflictingSeats(ctx context.Context, q queryer, req models.HoldRequest) ([]int, error) {
	query := `
		SELECT seat_number
		FROM seat_holds
		WHERE schedule_id = $1
		  AND travel_date = $2
		  AND seat_number = ANY($3::int[])
		  AND booking_id <> $4
		  AND (state = 'occupied' OR held_until > $5)
		ORDER BY seat_number
	`

	var seats []int
	err := q.SelectContext(ctx, &seats, query,
		req.ScheduleID, req.TravelDate, models.SeatNumbers(req.SeatNumbers).Int64s(), req.BookingID, req.Now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicting seats: %w", err)
	}
	return seats, nil
}

// ConfirmSeats turns the booking's live holds into occupied seats.
// Holds that lapsed before now are left untouched. Already occupied seats of
// the booking count as confirmed.
func (r *SeatInventoryRepository) ConfirmSeats(ctx context.Context, bookingID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE seat_holds
		SET state = 'occupied', held_until = NULL, updated_at = $2
		WHERE booking_id = $1
		  AND (state = 'occupied' OR held_until > $2)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, bookingID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ReleaseSeats frees every seat of the booking. Releasing twice is a no-op.
func (r *SeatInventoryRepository) ReleaseSeats(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM seat_holds WHERE booking_id = $1`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// DeleteExpiredHolds removes lapsed holds and returns the affected bookings
func (r *SeatInventoryRepository) DeleteExpiredHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		DELETE FROM seat_holds
		WHERE state = 'held' AND held_until <= $1
		RETURNING booking_id
	`

	var ids []uuid.UUID
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, now); err != nil {
		return nil, fmt.Errorf("failed to delete expired holds: %w", err)
	}
	return uniqueIDs(ids), nil
}

// ListByBooking returns the inventory rows of a booking
func (r *SeatInventoryRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.SeatHold, error) {
	query := `
		SELECT schedule_id, travel_date, seat_number, booking_id, state, held_until, created_at, updated_at
		FROM seat_holds
		WHERE booking_id = $1
		ORDER BY seat_number
	`

	var holds []models.SeatHold
	if err := conn(ctx, r.db).SelectContext(ctx, &holds, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list seat holds: %w", err)
	}
	return holds, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// isUniqueViolation reports a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
