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

// ErrPaymentInProgress is returned when a booking already has a processing or completed payment
var ErrPaymentInProgress = errors.New("payment already in progress for booking")

// ErrPaymentStateChanged is returned when a conditional payment update matched no row
var ErrPaymentStateChanged = errors.New("payment not found or not in expected state")

// PaymentRepository handles database operations for payments table
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, booking_id, amount, currency, payment_method, payment_status,
	transaction_reference, gateway, gateway_reference, gateway_response,
	failure_reason, payment_date, refund_amount, refund_reference, refund_date,
	created_at, updated_at
`

// Create inserts a payment attempt. The partial unique index on
// (booking_id) for processing/completed rows rejects a second concurrent attempt.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_id, amount, currency, payment_method, payment_status,
			transaction_reference, gateway, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	payment.UpdatedAt = payment.CreatedAt

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		payment.ID, payment.BookingID, payment.Amount, payment.Currency,
		payment.PaymentMethod, payment.PaymentStatus,
		payment.TransactionReference, payment.Gateway, payment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPaymentInProgress
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// MarkCompleted records a successful charge on a processing payment
func (r *PaymentRepository) MarkCompleted(ctx context.Context, payment *models.Payment, now time.Time) error {
	query := `
		UPDATE payments
		SET payment_status = 'completed',
			gateway_reference = $2,
			gateway_response = $3,
			payment_date = $4,
			updated_at = $4
		WHERE id = $1 AND payment_status = 'processing'
	`

	if err := r.execUpdate(ctx, "complete payment", query,
		payment.ID, payment.GatewayReference, payment.GatewayResponse, now,
	); err != nil {
		return err
	}
	payment.PaymentStatus = models.PaymentStateCompleted
	payment.PaymentDate = &now
	payment.UpdatedAt = now
	return nil
}

// MarkFailed records a declined or errored charge
func (r *PaymentRepository) MarkFailed(ctx context.Context, payment *models.Payment, reason string, now time.Time) error {
	query := `
		UPDATE payments
		SET payment_status = 'failed',
			failure_reason = $2,
			gateway_response = $3,
			updated_at = $4
		WHERE id = $1 AND payment_status IN ('pending', 'processing')
	`

	if err := r.execUpdate(ctx, "fail payment", query, payment.ID, reason, payment.GatewayResponse, now); err != nil {
		return err
	}
	payment.PaymentStatus = models.PaymentStateFailed
	payment.FailureReason = &reason
	payment.UpdatedAt = now
	return nil
}

// MarkRefunded records a refund. Only completed, never-refunded payments qualify.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, payment *models.Payment, amount float64, reference string, now time.Time) error {
	query := `
		UPDATE payments
		SET payment_status = 'refunded',
			refund_amount = $2,
			refund_reference = $3,
			refund_date = $4,
			updated_at = $4
		WHERE id = $1 AND payment_status = 'completed' AND refund_amount = 0
	`

	if err := r.execUpdate(ctx, "refund payment", query, payment.ID, amount, reference, now); err != nil {
		return err
	}
	payment.PaymentStatus = models.PaymentStateRefunded
	payment.RefundAmount = amount
	payment.RefundReference = &reference
	payment.RefundDate = &now
	payment.UpdatedAt = now
	return nil
}

func (r *PaymentRepository) execUpdate(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPaymentStateChanged
	}
	return nil
}

// GetByID retrieves a payment. Returns nil, nil when it does not exist.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetLatestByBooking returns the most recent attempt for a booking
func (r *PaymentRepository) GetLatestByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, bookingID)
}

// GetCompletedByBooking returns the completed payment of a booking, if any
func (r *PaymentRepository) GetCompletedByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND payment_status = 'completed'
		LIMIT 1
	`
	return r.getOne(ctx, query, bookingID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := conn(ctx, r.db).GetContext(ctx, &payment, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}
