package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/config"
	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/metrics"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/utils"
)

// ErrBookingNotConfirmable is returned by OnPaymentSucceeded when the booking
// was cancelled, expired or lost its seats while the payment was in flight.
var ErrBookingNotConfirmable = errors.New("booking can no longer be confirmed")

// Refunder refunds a completed payment. It is implemented by PaymentService.
type Refunder interface {
	RefundCompleted(ctx context.Context, actor models.Actor, payment *models.Payment, amount *float64) (*models.RefundResult, error)
}

// BookingService drives a booking from creation to confirmation, cancellation or expiry
type BookingService struct {
	schedules ScheduleStore
	inventory *SeatInventoryService
	bookings  BookingStore
	payments  PaymentStore
	tx        Transactor
	auditor   SecurityAuditor
	refunder  Refunder
	config    config.BookingConfig
	now       Clock
	logger    *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	schedules ScheduleStore,
	inventory *SeatInventoryService,
	bookings BookingStore,
	payments PaymentStore,
	tx Transactor,
	auditor SecurityAuditor,
	cfg config.BookingConfig,
	now Clock,
	logger *logrus.Logger,
) *BookingService {
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		schedules: schedules,
		inventory: inventory,
		bookings:  bookings,
		payments:  payments,
		tx:        tx,
		auditor:   auditor,
		config:    cfg,
		now:       now,
		logger:    logger,
	}
}

// SetRefunder wires the payment side after both services exist
func (s *BookingService) SetRefunder(r Refunder) {
	s.refunder = r
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking validates the request, prices it on the server, holds the
// seats and persists a pending booking. The hold and the insert commit together.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, req *models.CreateBookingRequest) (*models.Booking, error) {
	// 1. Validate request shape
	if err := req.Validate(s.config.MaxPassengers); err != nil {
		return nil, err
	}
	scheduleID, _ := uuid.Parse(req.ScheduleID)
	travelDate, _ := models.ParseTravelDate(req.TravelDate)

	now := s.now()
	if models.IsPastDate(travelDate, now) {
		return nil, models.NewValidationError("Travel date cannot be in the past")
	}

	// 2. Check the schedule runs on that date and every seat exists on the bus
	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load schedule", err)
	}
	if schedule == nil {
		return nil, models.NewNotFoundError("Schedule")
	}
	if ok, reason := schedule.EligibleOn(travelDate); !ok {
		return nil, models.NewScheduleIneligibleError(reason)
	}
	for _, seat := range req.SeatNumbers {
		if !schedule.SeatInRange(seat) {
			return nil, models.NewValidationError("Seat %d does not exist on this bus (1-%d)", seat, schedule.TotalSeats)
		}
	}

	// 3. Price on the server
	price := models.CalculatePrice(
		schedule.Price, len(req.SeatNumbers),
		s.config.ServiceFee, s.config.TaxRate, s.config.Currency,
	)

	passengers := make(models.PassengerDetails, len(req.PassengerDetails))
	copy(passengers, req.PassengerDetails)
	for i := range passengers {
		passengers[i].SeatNumber = req.SeatNumbers[i]
	}

	reference, err := utils.GenerateBookingReference(now)
	if err != nil {
		return nil, models.NewInternalError("Failed to generate booking reference", err)
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		Reference:        reference,
		UserID:           actor.UserID,
		ScheduleID:       schedule.ID,
		TravelDate:       travelDate,
		PassengerCount:   len(req.SeatNumbers),
		SelectedSeats:    models.SeatNumbers(req.SeatNumbers),
		PassengerDetails: passengers,
		BaseFare:         price.BaseFare,
		ServiceFee:       price.ServiceFee,
		TaxAmount:        price.TaxAmount,
		TotalAmount:      price.Total,
		Currency:         price.Currency,
		BookingStatus:    models.BookingStatusPending,
		PaymentStatus:    models.PaymentStatusPending,
		HoldExpiresAt:    now.Add(s.config.HoldTTL),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// 4. Persist and hold atomically
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.bookings.Create(ctx, booking); err != nil {
			return err
		}
		return s.inventory.HoldSeatsUntil(ctx, models.HoldRequest{
			ScheduleID:  booking.ScheduleID,
			TravelDate:  booking.TravelDate,
			SeatNumbers: booking.SelectedSeats,
			BookingID:   booking.ID,
			Now:         now,
			ExpiresAt:   booking.HoldExpiresAt,
		})
	})
	if err != nil {
		if appErr, ok := models.AsAppError(err); ok {
			if appErr.Kind == models.ErrorKindSeatConflict {
				metrics.SeatConflicts.Inc()
				s.logger.WithFields(logrus.Fields{
					"schedule_id": booking.ScheduleID,
					"travel_date": req.TravelDate,
					"seats":       appErr.ConflictingSeats,
				}).Info("Seat conflict while creating booking")
			}
			return nil, appErr
		}
		return nil, models.NewInternalError("Failed to create booking", err)
	}

	metrics.BookingsCreated.Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"reference":   booking.Reference,
		"user_id":     booking.UserID,
		"seats":       booking.SelectedSeats,
		"total":       booking.TotalAmount,
		"hold_expiry": booking.HoldExpiresAt,
	}).Info("Booking created with seats held")

	return booking, nil
}

// ============================================================================
// READ
// ============================================================================

// GetBooking returns a booking the actor may see. Other users' bookings are reported as not found.
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, models.NewInternalError("Failed to load booking", err)
	}
	if booking == nil || !actor.CanAccess(booking.UserID) {
		return nil, models.NewNotFoundError("Booking")
	}
	return booking, nil
}

// ListBookings returns the actor's bookings, newest first
func (s *BookingService) ListBookings(ctx context.Context, actor models.Actor, limit, offset int) ([]models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	bookings, err := s.bookings.ListByUser(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError("Failed to list bookings", err)
	}
	return bookings, nil
}

// PaymentStatusForBooking returns the booking with its latest payment, if any
func (s *BookingService) PaymentStatusForBooking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.PaymentVerification, error) {
	booking, err := s.GetBooking(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.GetLatestByBooking(ctx, booking.ID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load payment", err)
	}
	return &models.PaymentVerification{
		Payment:       payment,
		BookingStatus: booking.BookingStatus,
		PaymentStatus: booking.PaymentStatus,
		IsPaid:        booking.PaymentStatus == models.PaymentStatusPaid,
	}, nil
}

// Stats returns booking counts for admins
func (s *BookingService) Stats(ctx context.Context) (*models.BookingStats, error) {
	stats, err := s.bookings.Stats(ctx)
	if err != nil {
		return nil, models.NewInternalError("Failed to load booking stats", err)
	}
	return stats, nil
}

// ============================================================================
// CANCEL
// ============================================================================

// CancelBooking cancels a pending or confirmed booking, frees its seats and
// refunds a completed payment. The state seen under the row lock decides both
// the cancellation and the refund.
func (s *BookingService) CancelBooking(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.CancelBookingResult, error) {
	current, err := s.GetBooking(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !current.CanCancel() {
		return nil, models.NewInvalidStateError("Booking is %s and cannot be cancelled", current.BookingStatus)
	}
	if reason == "" {
		reason = "Cancelled by customer"
	}

	now := s.now()
	var booking *models.Booking
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.bookings.GetByIDForUpdate(ctx, current.ID)
		if err != nil {
			return err
		}
		if locked == nil || !locked.CanCancel() {
			return database.ErrBookingStateChanged
		}
		if _, err := s.inventory.ReleaseSeats(ctx, locked.ID); err != nil {
			return err
		}
		if err := s.bookings.MarkCancelled(ctx, locked.ID, reason, now); err != nil {
			return err
		}
		booking = locked
		return nil
	})
	if errors.Is(err, database.ErrBookingStateChanged) {
		return nil, models.NewInvalidStateError("Booking can no longer be cancelled")
	}
	if err != nil {
		if appErr, ok := models.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, models.NewInternalError("Failed to cancel booking", err)
	}

	label := "customer"
	if actor.IsAdmin && actor.UserID != booking.UserID {
		label = "admin"
		if err := s.auditor.LogAdminCancellation(ctx, actor, booking, reason); err != nil {
			s.logger.WithError(err).Warn("Failed to audit admin cancellation")
		}
	}
	metrics.BookingsCancelled.WithLabelValues(label).Inc()

	result := &models.CancelBookingResult{}
	if booking.PaymentStatus == models.PaymentStatusPaid {
		result.Refund = s.refundOnCancel(ctx, actor, booking)
	}

	updated, err := s.bookings.GetByID(ctx, booking.ID)
	if err != nil || updated == nil {
		updated = booking
	}
	result.Booking = updated

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference,
		"reason":     reason,
		"refunded":   result.Refund != nil,
	}).Info("Booking cancelled")

	return result, nil
}

// refundOnCancel refunds the completed payment of a cancelled booking.
// A failed refund leaves the payment completed so it can be refunded later.
func (s *BookingService) refundOnCancel(ctx context.Context, actor models.Actor, booking *models.Booking) *models.RefundResult {
	if s.refunder == nil {
		return nil
	}
	payment, err := s.payments.GetCompletedByBooking(ctx, booking.ID)
	if err != nil || payment == nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("No completed payment found for paid booking")
		return nil
	}
	refund, err := s.refunder.RefundCompleted(ctx, actor, payment, nil)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
		}).Error("Refund after cancellation failed")
		return nil
	}
	return refund
}

// ============================================================================
// PAYMENT CALLBACKS
// ============================================================================

// OnPaymentSucceeded confirms a pending booking and occupies its seats.
// Calling it again for a confirmed booking is a no-op.
func (s *BookingService) OnPaymentSucceeded(ctx context.Context, bookingID uuid.UUID, method, paymentRef string) (*models.Booking, error) {
	now := s.now()
	var confirmed *models.Booking

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		booking, err := s.bookings.GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return models.NewNotFoundError("Booking")
		}
		if booking.IsConfirmed() {
			confirmed = booking
			return nil
		}
		if booking.BookingStatus != models.BookingStatusPending || booking.IsHoldExpired(now) {
			return ErrBookingNotConfirmable
		}

		n, err := s.inventory.ConfirmSeatsAt(ctx, booking.ID, now)
		if models.IsKind(err, models.ErrorKindNotFound) {
			return ErrBookingNotConfirmable
		}
		if err != nil {
			return err
		}
		if n != int64(len(booking.SelectedSeats)) {
			return ErrBookingNotConfirmable
		}

		if err := s.bookings.MarkConfirmed(ctx, booking.ID, method, paymentRef, now); err != nil {
			if errors.Is(err, database.ErrBookingStateChanged) {
				return ErrBookingNotConfirmable
			}
			return err
		}

		booking.BookingStatus = models.BookingStatusConfirmed
		booking.PaymentStatus = models.PaymentStatusPaid
		booking.PaymentMethod = &method
		booking.PaymentReference = &paymentRef
		booking.ConfirmedAt = &now
		booking.UpdatedAt = now
		confirmed = booking
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBookingNotConfirmable) {
			return nil, err
		}
		if _, ok := models.AsAppError(err); ok {
			return nil, err
		}
		return nil, models.NewInternalError("Failed to confirm booking", err)
	}
	return confirmed, nil
}

// OnPaymentFailed records a failed attempt. The booking stays pending and keeps its seats.
func (s *BookingService) OnPaymentFailed(ctx context.Context, bookingID uuid.UUID) error {
	err := s.bookings.MarkPaymentFailed(ctx, bookingID, s.now())
	if errors.Is(err, database.ErrBookingStateChanged) {
		return nil
	}
	if err != nil {
		return models.NewInternalError("Failed to record payment failure", err)
	}
	return nil
}

// OnHoldExpired cancels a pending unpaid booking whose hold lapsed and frees
// its seats. Other bookings are left alone.
func (s *BookingService) OnHoldExpired(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	now := s.now()
	expired := false

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		booking, err := s.bookings.GetByIDForUpdate(ctx, bookingID)
		if err != nil || booking == nil {
			return err
		}
		if booking.BookingStatus != models.BookingStatusPending ||
			booking.PaymentStatus == models.PaymentStatusPaid ||
			!booking.IsHoldExpired(now) {
			return nil
		}

		completed, err := s.payments.GetCompletedByBooking(ctx, booking.ID)
		if err != nil {
			return err
		}
		if completed != nil {
			return nil
		}

		if _, err := s.inventory.ReleaseSeats(ctx, booking.ID); err != nil {
			return err
		}
		if err := s.bookings.MarkCancelled(ctx, booking.ID, models.CancellationReasonHoldExpired, now); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, models.NewInternalError("Failed to expire booking", err)
	}

	if expired {
		metrics.HoldsExpired.Inc()
		metrics.BookingsCancelled.WithLabelValues("hold_expired").Inc()
		s.logger.WithField("booking_id", bookingID).Info("Booking cancelled after hold expired")
	}
	return expired, nil
}

// CompleteTravelled marks confirmed bookings for past travel dates as completed
func (s *BookingService) CompleteTravelled(ctx context.Context) (int64, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n, err := s.bookings.CompleteTravelledBefore(ctx, today, now)
	if err != nil {
		return 0, models.NewInternalError("Failed to complete bookings", err)
	}
	return n, nil
}
