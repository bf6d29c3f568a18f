package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/swiftbus/booking-backend/internal/models"
)

// BookingRepository handles database operations for bookings table
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, booking_reference, user_id, schedule_id, travel_date,
	passenger_count, selected_seats, passenger_details,
	base_fare, service_fee, tax_amount, total_amount, currency,
	booking_status, payment_status, payment_method, payment_reference,
	hold_expires_at, confirmed_at, cancellation_date, cancellation_reason,
	created_at, updated_at
`

// ============================================================================
// CREATE / READ
// ============================================================================

// Create inserts a pending booking
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, booking_reference, user_id, schedule_id, travel_date,
			passenger_count, selected_seats, passenger_details,
			base_fare, service_fee, tax_amount, total_amount, currency,
			booking_status, payment_status, hold_expires_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17
		)
	`

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	booking.UpdatedAt = booking.CreatedAt

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		booking.ID, booking.Reference, booking.UserID, booking.ScheduleID, booking.TravelDate,
		booking.PassengerCount, booking.SelectedSeats, booking.PassengerDetails,
		booking.BaseFare, booking.ServiceFee, booking.TaxAmount, booking.TotalAmount, booking.Currency,
		booking.BookingStatus, booking.PaymentStatus, booking.HoldExpiresAt,
		booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by ID. Returns nil, nil when it does not exist.
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate locks the booking row for the current transaction
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Booking, error) {
	var booking models.Booking
	err := conn(ctx, r.db).GetContext(ctx, &booking, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	bookings := []models.Booking{}
	if err := conn(ctx, r.db).SelectContext(ctx, &bookings, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListExpiredPending returns unpaid pending bookings whose hold lapsed
func (r *BookingRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE booking_status = 'pending'
		  AND payment_status <> 'paid'
		  AND hold_expires_at <= $1
		ORDER BY hold_expires_at ASC
		LIMIT $2
	`

	bookings := []models.Booking{}
	if err := conn(ctx, r.db).SelectContext(ctx, &bookings, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

// MarkConfirmed moves a pending booking to confirmed/paid
func (r *BookingRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, method, reference string, now time.Time) error {
	query := `
		UPDATE bookings
		SET booking_status = 'confirmed',
			payment_status = 'paid',
			payment_method = $2,
			payment_reference = $3,
			confirmed_at = $4,
			updated_at = $4
		WHERE id = $1 AND booking_status = 'pending'
	`
	return r.execTransition(ctx, "confirm booking", query, id, method, reference, now)
}

// MarkPaymentFailed records a failed attempt on a pending booking
func (r *BookingRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE bookings
		SET payment_status = 'failed', updated_at = $2
		WHERE id = $1 AND booking_status = 'pending' AND payment_status <> 'paid'
	`
	return r.execTransition(ctx, "mark payment failed", query, id, now)
}

// MarkCancelled cancels a pending or confirmed booking
func (r *BookingRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	query := `
		UPDATE bookings
		SET booking_status = 'cancelled',
			cancellation_date = $2,
			cancellation_reason = $3,
			updated_at = $2
		WHERE id = $1 AND booking_status IN ('pending', 'confirmed')
	`
	return r.execTransition(ctx, "cancel booking", query, id, now, reason)
}

// MarkRefunded sets the booking payment status after a refund
func (r *BookingRepository) MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE bookings
		SET payment_status = 'refunded', updated_at = $2
		WHERE id = $1 AND payment_status = 'paid'
	`
	return r.execTransition(ctx, "mark booking refunded", query, id, now)
}

// CompleteTravelledBefore marks confirmed bookings for past travel dates as completed
func (r *BookingRepository) CompleteTravelledBefore(ctx context.Context, date time.Time, now time.Time) (int64, error) {
	query := `
		UPDATE bookings
		SET booking_status = 'completed', updated_at = $2
		WHERE booking_status = 'confirmed' AND travel_date < $1
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, date, now)
	if err != nil {
		return 0, fmt.Errorf("failed to complete bookings: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *BookingRepository) execTransition(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrBookingStateChanged
	}
	return nil
}

// ErrBookingStateChanged is returned when a conditional transition matched no row
var ErrBookingStateChanged = errors.New("booking not found or not in expected state")

// ============================================================================
// REPORTING
// ============================================================================

// Stats aggregates booking counts and paid revenue
func (r *BookingRepository) Stats(ctx context.Context) (*models.BookingStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_bookings,
			COUNT(*) FILTER (WHERE booking_status = 'pending') AS pending_bookings,
			COUNT(*) FILTER (WHERE booking_status = 'confirmed') AS confirmed_bookings,
			COUNT(*) FILTER (WHERE booking_status = 'cancelled') AS cancelled_bookings,
			COUNT(*) FILTER (WHERE booking_status = 'completed') AS completed_bookings,
			COUNT(*) FILTER (WHERE payment_status = 'paid') AS paid_bookings,
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'paid'), 0) AS total_revenue
		FROM bookings
	`

	var stats models.BookingStats
	if err := conn(ctx, r.db).GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}
	return &stats, nil
}
