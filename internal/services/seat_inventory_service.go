package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
)

// SeatInventoryService owns seat state per trip instance.
// A trip instance is (schedule_id, travel_date); seats without a row are free.
type SeatInventoryService struct {
	schedules ScheduleStore
	seats     SeatStore
	tx        Transactor
	holdTTL   time.Duration
	now       Clock
	logger    *logrus.Logger
}

// NewSeatInventoryService creates a new seat inventory service
func NewSeatInventoryService(
	schedules ScheduleStore,
	seats SeatStore,
	tx Transactor,
	holdTTL time.Duration,
	now Clock,
	logger *logrus.Logger,
) *SeatInventoryService {
	if now == nil {
		now = time.Now
	}
	return &SeatInventoryService{
		schedules: schedules,
		seats:     seats,
		tx:        tx,
		holdTTL:   holdTTL,
		now:       now,
		logger:    logger,
	}
}

// ListAvailableSeats returns the free seats of a trip instance in ascending order
func (s *SeatInventoryService) ListAvailableSeats(ctx context.Context, scheduleID uuid.UUID, dateStr string) (*models.SeatAvailability, error) {
	travelDate, err := models.ParseTravelDate(dateStr)
	if err != nil {
		return nil, models.NewValidationError("Invalid date, expected YYYY-MM-DD")
	}
	now := s.now()
	if models.IsPastDate(travelDate, now) {
		return nil, models.NewValidationError("Travel date cannot be in the past")
	}

	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load schedule", err)
	}
	if schedule == nil {
		return nil, models.NewNotFoundError("Schedule")
	}

	free, err := s.availableSeats(ctx, schedule, travelDate, now)
	if err != nil {
		return nil, err
	}

	return &models.SeatAvailability{
		ScheduleID:     schedule.ID,
		TravelDate:     travelDate.Format(models.DateLayout),
		TotalSeats:     schedule.TotalSeats,
		AvailableSeats: free,
		TotalAvailable: len(free),
	}, nil
}

// availableSeats is shared with search, which has already loaded the schedule
func (s *SeatInventoryService) availableSeats(ctx context.Context, schedule *models.Schedule, travelDate, now time.Time) ([]int, error) {
	unavailable, err := s.seats.ListUnavailableSeats(ctx, schedule.ID, travelDate, now)
	if err != nil {
		return nil, models.NewInternalError("Failed to load seat availability", err)
	}
	return models.FreeSeats(schedule.TotalSeats, unavailable), nil
}

// HoldSeats holds all seats for the booking until now+ttl, or none of them.
// Re-holding with the same booking refreshes its hold.
func (s *SeatInventoryService) HoldSeats(ctx context.Context, scheduleID uuid.UUID, travelDate time.Time, seatNumbers []int, bookingID uuid.UUID) (time.Time, error) {
	now := s.now()
	req := models.HoldRequest{
		ScheduleID:  scheduleID,
		TravelDate:  travelDate,
		SeatNumbers: seatNumbers,
		BookingID:   bookingID,
		Now:         now,
		ExpiresAt:   now.Add(s.holdTTL),
	}
	if err := s.HoldSeatsUntil(ctx, req); err != nil {
		return time.Time{}, err
	}
	return req.ExpiresAt, nil
}

// HoldSeatsUntil holds the seats with the caller's clock and deadline.
// Inside an open transaction it joins it, so the booking insert and the hold
// commit together.
func (s *SeatInventoryService) HoldSeatsUntil(ctx context.Context, req models.HoldRequest) error {
	if len(req.SeatNumbers) == 0 {
		return models.NewValidationError("At least one seat must be selected")
	}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.seats.HoldSeats(ctx, req)
	})
	if err != nil {
		if _, ok := models.AsAppError(err); ok {
			return err
		}
		return models.NewInternalError("Failed to hold seats", err)
	}
	return nil
}

// ConfirmSeats turns the booking's live holds into occupied seats
func (s *SeatInventoryService) ConfirmSeats(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	return s.ConfirmSeatsAt(ctx, bookingID, s.now())
}

// ConfirmSeatsAt is ConfirmSeats evaluated at now. A booking with no live
// hold left is reported as not found.
func (s *SeatInventoryService) ConfirmSeatsAt(ctx context.Context, bookingID uuid.UUID, now time.Time) (int64, error) {
	n, err := s.seats.ConfirmSeats(ctx, bookingID, now)
	if err != nil {
		return 0, models.NewInternalError("Failed to confirm seats", err)
	}
	if n == 0 {
		return 0, models.NewNotFoundError("Seat hold")
	}
	return n, nil
}

// ReleaseSeats frees every seat of the booking. It is idempotent.
func (s *SeatInventoryService) ReleaseSeats(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	n, err := s.seats.ReleaseSeats(ctx, bookingID)
	if err != nil {
		return 0, models.NewInternalError("Failed to release seats", err)
	}
	return n, nil
}

// ExpireStaleHolds frees every hold that lapsed at or before now and returns
// the bookings that lost seats
func (s *SeatInventoryService) ExpireStaleHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	ids, err := s.seats.DeleteExpiredHolds(ctx, now)
	if err != nil {
		return nil, models.NewInternalError("Failed to expire seat holds", err)
	}
	if len(ids) > 0 {
		s.logger.WithFields(logrus.Fields{
			"bookings": len(ids),
		}).Info("Released expired seat holds")
	}
	return ids, nil
}
