package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/utils"
)

// AuditService handles audit logging for security events
type AuditService struct {
	db      *sqlx.DB
	enabled bool
	logger  *logrus.Logger
}

// NewAuditService creates a new audit service. A disabled service only logs.
func NewAuditService(db *sqlx.DB, enabled bool, logger *logrus.Logger) *AuditService {
	return &AuditService{
		db:      db,
		enabled: enabled,
		logger:  logger,
	}
}

// AuditEvent represents a security event to be logged
type AuditEvent struct {
	UserID     *uuid.UUID             // nil for system actions
	Action     string                 // e.g. "payment_amount_mismatch", "booking_cancelled_by_admin"
	EntityType string                 // "booking" or "payment"
	EntityID   *uuid.UUID             // ID of the affected entity
	IPAddress  string                 // Client IP address
	UserAgent  string                 // Client user agent
	Details    map[string]interface{} // Stored as JSONB
}

// LogAmountMismatch logs a payment whose amount differs from the booking total
func (s *AuditService) LogAmountMismatch(ctx context.Context, actor models.Actor, bookingID uuid.UUID, expected, received float64) error {
	return s.logEvent(ctx, AuditEvent{
		UserID:     actorUserID(actor),
		Action:     "payment_amount_mismatch",
		EntityType: "booking",
		EntityID:   &bookingID,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Details: map[string]interface{}{
			"expected_amount": expected,
			"received_amount": received,
			"difference":      received - expected,
			"device_info":     utils.ParseUserAgent(actor.UserAgent),
		},
	})
}

// LogAdminCancellation logs an admin cancelling another user's booking
func (s *AuditService) LogAdminCancellation(ctx context.Context, actor models.Actor, booking *models.Booking, reason string) error {
	id := booking.ID
	return s.logEvent(ctx, AuditEvent{
		UserID:     actorUserID(actor),
		Action:     "booking_cancelled_by_admin",
		EntityType: "booking",
		EntityID:   &id,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Details: map[string]interface{}{
			"booking_reference": booking.Reference,
			"owner_id":          booking.UserID,
			"previous_status":   booking.BookingStatus,
			"reason":            reason,
			"device_info":       utils.ParseUserAgent(actor.UserAgent),
		},
	})
}

// LogRefund logs a completed refund
func (s *AuditService) LogRefund(ctx context.Context, actor models.Actor, payment *models.Payment, amount float64) error {
	id := payment.ID
	details := map[string]interface{}{
		"booking_id":     payment.BookingID,
		"payment_amount": payment.Amount,
		"refund_amount":  amount,
		"partial":        amount < payment.Amount,
		"device_info":    utils.ParseUserAgent(actor.UserAgent),
	}
	if payment.RefundReference != nil {
		details["refund_reference"] = *payment.RefundReference
	}

	return s.logEvent(ctx, AuditEvent{
		UserID:     actorUserID(actor),
		Action:     "payment_refunded",
		EntityType: "payment",
		EntityID:   &id,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Details:    details,
	})
}

func actorUserID(actor models.Actor) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

// logEvent writes to the audit_logs table
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	s.logger.WithFields(logrus.Fields{
		"action":      event.Action,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"user_id":     event.UserID,
		"ip":          event.IPAddress,
	}).Info("AUDIT")

	if !s.enabled || s.db == nil {
		return nil
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err = s.db.ExecContext(ctx, query,
		event.UserID,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.IPAddress,
		event.UserAgent,
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	cutoffTime := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
