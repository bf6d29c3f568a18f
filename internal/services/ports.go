package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/swiftbus/booking-backend/internal/models"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Transactor runs fn inside one database transaction
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScheduleStore is the read-only schedule catalog
type ScheduleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	FindCandidates(ctx context.Context, origin, destination string, travelDate time.Time) ([]models.Schedule, error)
	PopularRoutes(ctx context.Context, limit int) ([]models.PopularRoute, error)
}

// SeatStore is the seat inventory keyed by (schedule, travel date, seat)
type SeatStore interface {
	ListUnavailableSeats(ctx context.Context, scheduleID uuid.UUID, travelDate time.Time, now time.Time) ([]int, error)
	HoldSeats(ctx context.Context, req models.HoldRequest) error
	ConfirmSeats(ctx context.Context, bookingID uuid.UUID, now time.Time) (int64, error)
	ReleaseSeats(ctx context.Context, bookingID uuid.UUID) (int64, error)
	DeleteExpiredHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// BookingStore persists bookings. Mark* transitions are conditional on the
// current state and return database.ErrBookingStateChanged when it moved.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID, method, reference string, now time.Time) error
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
	MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) error
	CompleteTravelledBefore(ctx context.Context, date time.Time, now time.Time) (int64, error)
	Stats(ctx context.Context) (*models.BookingStats, error)
}

// PaymentStore persists payment attempts
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	MarkCompleted(ctx context.Context, payment *models.Payment, now time.Time) error
	MarkFailed(ctx context.Context, payment *models.Payment, reason string, now time.Time) error
	MarkRefunded(ctx context.Context, payment *models.Payment, amount float64, reference string, now time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetLatestByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	GetCompletedByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
}

// PaymentAuditLogger appends to the payment audit trail
type PaymentAuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// SecurityAuditor records security-relevant events
type SecurityAuditor interface {
	LogAmountMismatch(ctx context.Context, actor models.Actor, bookingID uuid.UUID, expected, received float64) error
	LogAdminCancellation(ctx context.Context, actor models.Actor, booking *models.Booking, reason string) error
	LogRefund(ctx context.Context, actor models.Actor, payment *models.Payment, amount float64) error
}
