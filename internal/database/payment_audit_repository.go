package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry.
// It always writes through the pool so entries survive a rolled back transaction.
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, payment_id,
			event_type, payment_method, gateway,
			expected_amount, received_amount, amounts_match,
			outcome, gateway_reference, response_payload, error_message,
			processing_time_ms, ip_address, user_agent, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.PaymentID,
		audit.EventType, audit.PaymentMethod, audit.Gateway,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.Outcome, audit.GatewayReference, audit.ResponsePayload, audit.ErrorMessage,
		audit.ProcessingTimeMs, audit.IPAddress, audit.UserAgent, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
		}).Error("CRITICAL: Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"booking_id": audit.BookingID,
	}).Debug("Payment audit logged")

	return nil
}

// GetByBookingID retrieves the audit trail of a booking, oldest first
func (r *PaymentAuditRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error) {
	var audits []*models.PaymentAudit
	query := `
		SELECT * FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get audits by booking ID: %w", err)
	}
	return audits, nil
}

// GetAmountMismatches retrieves recent audits where amounts didn't match
func (r *PaymentAuditRepository) GetAmountMismatches(ctx context.Context, limit int) ([]*models.PaymentAudit, error) {
	var audits []*models.PaymentAudit
	query := `
		SELECT * FROM payment_audits
		WHERE amounts_match = FALSE
		ORDER BY created_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &audits, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get amount mismatches: %w", err)
	}
	return audits, nil
}
