package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/metrics"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/utils"
)

// PaymentService coordinates gateway charges and refunds with the booking lifecycle
type PaymentService struct {
	bookings  BookingStore
	payments  PaymentStore
	lifecycle *BookingService
	gateways  *GatewayRouter
	audits    PaymentAuditLogger
	auditor   SecurityAuditor
	tx        Transactor
	methods   []models.PaymentMethodInfo
	now       Clock
	logger    *logrus.Logger
}

// NewPaymentService creates a new payment service and registers it as the
// booking service's refunder
func NewPaymentService(
	bookings BookingStore,
	payments PaymentStore,
	lifecycle *BookingService,
	gateways *GatewayRouter,
	audits PaymentAuditLogger,
	auditor SecurityAuditor,
	tx Transactor,
	now Clock,
	logger *logrus.Logger,
) *PaymentService {
	if now == nil {
		now = time.Now
	}
	s := &PaymentService{
		bookings:  bookings,
		payments:  payments,
		lifecycle: lifecycle,
		gateways:  gateways,
		audits:    audits,
		auditor:   auditor,
		tx:        tx,
		methods:   models.DefaultPaymentMethods(),
		now:       now,
		logger:    logger,
	}
	lifecycle.SetRefunder(s)
	return s
}

// Methods returns the active payment methods
func (s *PaymentService) Methods() []models.PaymentMethodInfo {
	active := make([]models.PaymentMethodInfo, 0, len(s.methods))
	for _, m := range s.methods {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}

func (s *PaymentService) findMethod(id string) (models.PaymentMethodInfo, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, m := range s.methods {
		if string(m.ID) == id && m.IsActive {
			return m, true
		}
	}
	return models.PaymentMethodInfo{}, false
}

// ============================================================================
// AUTHORIZE
// ============================================================================

// AuthorizePayment charges the booking total through the method's gateway and
// confirms the booking on success. No lock is held during the gateway call;
// the booking is re-validated before confirmation and a late success on a
// lapsed booking is refunded.
func (s *PaymentService) AuthorizePayment(ctx context.Context, actor models.Actor, req *models.ProcessPaymentRequest) (*models.PaymentResult, error) {
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, models.NewValidationError("booking_id must be a valid id")
	}
	method, ok := s.findMethod(req.PaymentMethod)
	if !ok {
		return nil, models.NewValidationError("Unsupported payment method: %s", req.PaymentMethod)
	}

	// 1. Load and check the booking
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load booking", err)
	}
	if booking == nil || !actor.CanAccess(booking.UserID) {
		return nil, models.NewNotFoundError("Booking")
	}
	now := s.now()
	if err := booking.CheckPayable(now); err != nil {
		return nil, err
	}

	// 2. The client amount must equal the server-computed total
	if !models.AmountsMatch(booking.TotalAmount, req.Amount) {
		s.rejectAmountMismatch(ctx, actor, booking, method, req.Amount)
		return nil, models.NewAmountMismatchError(booking.TotalAmount, req.Amount)
	}
	if !method.AcceptsAmount(booking.TotalAmount) {
		return nil, models.NewValidationError("Amount %.2f is outside the limits of %s", booking.TotalAmount, method.Name)
	}

	// 3. Record the attempt. Only one active payment per booking is allowed.
	reference, err := utils.GenerateTransactionReference(string(method.ID), now)
	if err != nil {
		return nil, models.NewInternalError("Failed to generate transaction reference", err)
	}
	gateway := s.gateways.For(method.ID)
	payment := &models.Payment{
		ID:                   uuid.New(),
		BookingID:            booking.ID,
		Amount:               booking.TotalAmount,
		Currency:             booking.Currency,
		PaymentMethod:        method.ID,
		PaymentStatus:        models.PaymentStateProcessing,
		TransactionReference: reference,
		Gateway:              gateway.Name(),
		CreatedAt:            now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, database.ErrPaymentInProgress) {
			return nil, models.NewInvalidStateError("A payment for this booking is already in progress")
		}
		return nil, models.NewInternalError("Failed to record payment", err)
	}

	attempt := models.NewPaymentAudit(models.PaymentEventChargeAttempt, booking.ID).SetPayment(payment).SetActor(actor)
	attempt.SetAmounts(booking.TotalAmount, req.Amount)
	s.audit(ctx, attempt)

	// 4. Charge
	start := time.Now()
	resp, chargeErr := gateway.Charge(ctx, &ChargeRequest{
		PaymentID:            payment.ID,
		BookingReference:     booking.Reference,
		TransactionReference: reference,
		Amount:               payment.Amount,
		Currency:             payment.Currency,
		Method:               method.ID,
		Payload:              req.GatewayPayload,
	})
	metrics.PaymentDuration.Observe(time.Since(start).Seconds())

	if chargeErr != nil {
		s.logger.WithError(chargeErr).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
			"gateway":    gateway.Name(),
		}).Error("Payment gateway error")
		resp = &ChargeResponse{FailureReason: "Payment gateway unavailable, please try again"}
	}

	if !resp.Success {
		return nil, s.failCharge(ctx, actor, booking, payment, resp, start)
	}
	return s.completeCharge(ctx, actor, booking, payment, resp, start)
}

func (s *PaymentService) rejectAmountMismatch(ctx context.Context, actor models.Actor, booking *models.Booking, method models.PaymentMethodInfo, received float64) {
	entry := models.NewPaymentAudit(models.PaymentEventAmountMismatch, booking.ID).SetActor(actor)
	m := string(method.ID)
	entry.PaymentMethod = &m
	entry.SetAmounts(booking.TotalAmount, received)
	entry.SetOutcome("rejected", "").SetError("client amount does not match booking total")
	s.audit(ctx, entry)

	if err := s.auditor.LogAmountMismatch(ctx, actor, booking.ID, booking.TotalAmount, received); err != nil {
		s.logger.WithError(err).Warn("Failed to write security audit event")
	}
	metrics.Payments.WithLabelValues(m, "amount_mismatch").Inc()

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"user_id":    actor.UserID,
		"expected":   booking.TotalAmount,
		"received":   received,
		"ip":         actor.IPAddress,
	}).Warn("SECURITY: payment amount mismatch")
}

func (s *PaymentService) failCharge(ctx context.Context, actor models.Actor, booking *models.Booking, payment *models.Payment, resp *ChargeResponse, start time.Time) error {
	reason := resp.FailureReason
	if reason == "" {
		reason = "Payment was declined"
	}
	payment.GatewayResponse = models.JSONMap(resp.Response)

	if err := s.payments.MarkFailed(ctx, payment, reason, s.now()); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Error("Failed to mark payment failed")
	}
	if err := s.lifecycle.OnPaymentFailed(ctx, booking.ID); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to record payment failure on booking")
	}

	entry := models.NewPaymentAudit(models.PaymentEventChargeFailed, booking.ID).
		SetPayment(payment).SetActor(actor).
		SetOutcome("failed", "").
		SetResponsePayload(resp.Response).
		SetError(reason).
		SetProcessingTime(start)
	s.audit(ctx, entry)

	metrics.Payments.WithLabelValues(string(payment.PaymentMethod), "failed").Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment_id": payment.ID,
		"reason":     reason,
	}).Info("Payment declined")

	return models.NewGatewayFailureError(reason)
}

func (s *PaymentService) completeCharge(ctx context.Context, actor models.Actor, booking *models.Booking, payment *models.Payment, resp *ChargeResponse, start time.Time) (*models.PaymentResult, error) {
	gatewayRef := resp.GatewayReference
	payment.GatewayReference = &gatewayRef
	payment.GatewayResponse = models.JSONMap(resp.Response)

	if err := s.payments.MarkCompleted(ctx, payment, s.now()); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id":        payment.ID,
			"gateway_reference": gatewayRef,
		}).Error("CRITICAL: charge succeeded but payment could not be recorded")
		return nil, models.NewInternalError("Failed to record payment", err)
	}

	entry := models.NewPaymentAudit(models.PaymentEventChargeSucceeded, booking.ID).
		SetPayment(payment).SetActor(actor).
		SetOutcome("completed", gatewayRef).
		SetResponsePayload(resp.Response).
		SetProcessingTime(start)
	s.audit(ctx, entry)

	confirmed, err := s.lifecycle.OnPaymentSucceeded(ctx, booking.ID, string(payment.PaymentMethod), payment.TransactionReference)
	if errors.Is(err, ErrBookingNotConfirmable) {
		return nil, s.refundLateCharge(ctx, booking, payment)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
		}).Error("CRITICAL: payment completed but booking confirmation failed")
		return nil, err
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmed, booking.ID).
		SetPayment(payment).SetActor(actor).SetOutcome("confirmed", gatewayRef))

	metrics.Payments.WithLabelValues(string(payment.PaymentMethod), "completed").Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference,
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	}).Info("Payment completed and booking confirmed")

	return &models.PaymentResult{Payment: payment, Booking: confirmed}, nil
}

// refundLateCharge returns money taken for a booking that expired or was
// cancelled while the gateway call was in flight
func (s *PaymentService) refundLateCharge(ctx context.Context, booking *models.Booking, payment *models.Payment) error {
	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmFailed, booking.ID).
		SetPayment(payment).SetOutcome("refunding", "").
		SetError("booking no longer confirmable"))

	if _, err := s.RefundCompleted(ctx, models.SystemActor(), payment, nil); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
		}).Error("CRITICAL: automatic refund of late payment failed")
	}
	return models.NewInvalidStateError("Booking expired before payment completed; the payment has been refunded")
}

// ============================================================================
// REFUND
// ============================================================================

// RefundPayment refunds a completed payment the actor owns (or any, for admins)
func (s *PaymentService) RefundPayment(ctx context.Context, actor models.Actor, paymentID uuid.UUID, req *models.RefundPaymentRequest) (*models.RefundResult, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load payment", err)
	}
	if payment == nil {
		return nil, models.NewNotFoundError("Payment")
	}
	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load booking", err)
	}
	if booking == nil || !actor.CanAccess(booking.UserID) {
		return nil, models.NewNotFoundError("Payment")
	}

	var amount *float64
	if req != nil {
		amount = req.RefundAmount
	}
	return s.RefundCompleted(ctx, actor, payment, amount)
}

// RefundCompleted refunds a completed, never-refunded payment through the
// gateway that charged it. Seats are not touched.
func (s *PaymentService) RefundCompleted(ctx context.Context, actor models.Actor, payment *models.Payment, requested *float64) (*models.RefundResult, error) {
	if !payment.CanRefund() {
		return nil, models.NewInvalidStateError("Payment is %s and cannot be refunded", payment.PaymentStatus)
	}
	amount := payment.RefundAmountFor(requested)

	gatewayRef := payment.TransactionReference
	if payment.GatewayReference != nil && *payment.GatewayReference != "" {
		gatewayRef = *payment.GatewayReference
	}

	start := time.Now()
	gateway := s.gateways.ForName(payment.Gateway)
	refundRef, err := gateway.Refund(ctx, gatewayRef, amount)
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Error("Gateway refund failed")
		entry := models.NewPaymentAudit(models.PaymentEventRefundFailed, payment.BookingID).
			SetPayment(payment).SetActor(actor).
			SetOutcome("failed", "").
			SetError(err.Error()).
			SetProcessingTime(start)
		entry.SetAmounts(payment.Amount, amount)
		s.audit(ctx, entry)
		metrics.Refunds.WithLabelValues("failed").Inc()
		return nil, models.NewGatewayFailureError("Refund could not be processed by the payment provider")
	}

	now := s.now()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.payments.MarkRefunded(ctx, payment, amount, refundRef, now); err != nil {
			return err
		}
		// A late charge on an unconfirmed booking has no paid status to flip.
		if err := s.bookings.MarkRefunded(ctx, payment.BookingID, now); err != nil && !errors.Is(err, database.ErrBookingStateChanged) {
			return err
		}
		return nil
	})
	if errors.Is(err, database.ErrPaymentStateChanged) {
		return nil, models.NewInvalidStateError("Payment was already refunded")
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id":       payment.ID,
			"refund_reference": refundRef,
		}).Error("CRITICAL: refund issued but not recorded")
		return nil, models.NewInternalError("Failed to record refund", err)
	}

	entry := models.NewPaymentAudit(models.PaymentEventRefundCompleted, payment.BookingID).
		SetPayment(payment).SetActor(actor).
		SetOutcome("refunded", refundRef).
		SetProcessingTime(start)
	entry.SetAmounts(payment.Amount, amount)
	s.audit(ctx, entry)

	if err := s.auditor.LogRefund(ctx, actor, payment, amount); err != nil {
		s.logger.WithError(err).Warn("Failed to write security audit event")
	}
	metrics.Refunds.WithLabelValues("completed").Inc()

	s.logger.WithFields(logrus.Fields{
		"payment_id":       payment.ID,
		"booking_id":       payment.BookingID,
		"amount":           amount,
		"refund_reference": refundRef,
	}).Info("Payment refunded")

	return &models.RefundResult{
		PaymentID:       payment.ID,
		BookingID:       payment.BookingID,
		RefundAmount:    amount,
		RefundReference: refundRef,
		Status:          payment.PaymentStatus,
	}, nil
}

// ============================================================================
// VERIFY
// ============================================================================

// VerifyPayment looks a payment up by payment id, or the latest payment of a booking
func (s *PaymentService) VerifyPayment(ctx context.Context, actor models.Actor, paymentID, bookingID string) (*models.PaymentVerification, error) {
	var (
		payment *models.Payment
		booking *models.Booking
		err     error
	)

	switch {
	case paymentID != "":
		id, parseErr := uuid.Parse(paymentID)
		if parseErr != nil {
			return nil, models.NewValidationError("payment_id must be a valid id")
		}
		if payment, err = s.payments.GetByID(ctx, id); err != nil {
			return nil, models.NewInternalError("Failed to load payment", err)
		}
		if payment == nil {
			return nil, models.NewNotFoundError("Payment")
		}
		if booking, err = s.bookings.GetByID(ctx, payment.BookingID); err != nil {
			return nil, models.NewInternalError("Failed to load booking", err)
		}
	case bookingID != "":
		id, parseErr := uuid.Parse(bookingID)
		if parseErr != nil {
			return nil, models.NewValidationError("booking_id must be a valid id")
		}
		if booking, err = s.bookings.GetByID(ctx, id); err != nil {
			return nil, models.NewInternalError("Failed to load booking", err)
		}
		if booking != nil {
			if payment, err = s.payments.GetLatestByBooking(ctx, booking.ID); err != nil {
				return nil, models.NewInternalError("Failed to load payment", err)
			}
		}
	default:
		return nil, models.NewValidationError("payment_id or booking_id is required")
	}

	if booking == nil || !actor.CanAccess(booking.UserID) {
		return nil, models.NewNotFoundError("Payment")
	}
	if payment == nil {
		return nil, models.NewNotFoundError("Payment")
	}

	return &models.PaymentVerification{
		Payment:       payment,
		BookingStatus: booking.BookingStatus,
		PaymentStatus: booking.PaymentStatus,
		IsPaid:        payment.PaymentStatus == models.PaymentStateCompleted,
	}, nil
}

func (s *PaymentService) audit(ctx context.Context, entry *models.PaymentAudit) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("event", entry.EventType).Warn("Failed to write payment audit")
	}
}
