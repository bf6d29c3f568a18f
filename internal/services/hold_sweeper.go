package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
)

// SweepResult reports one expiry sweep
type SweepResult struct {
	BookingsExpired int `json:"bookings_expired"`
	HoldsReleased   int `json:"holds_released"`
	Failures        int `json:"failures"`
}

// HoldSweeper cancels pending bookings whose seat hold lapsed and removes
// expired hold rows. Reads already treat lapsed holds as free, so the sweep
// only has to keep booking state and the table tidy.
type HoldSweeper struct {
	bookings  BookingStore
	lifecycle *BookingService
	inventory *SeatInventoryService
	batchSize int
	now       Clock
	logger    *logrus.Logger
}

// NewHoldSweeper creates a new hold sweeper
func NewHoldSweeper(
	bookings BookingStore,
	lifecycle *BookingService,
	inventory *SeatInventoryService,
	batchSize int,
	now Clock,
	logger *logrus.Logger,
) *HoldSweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	if now == nil {
		now = time.Now
	}
	return &HoldSweeper{
		bookings:  bookings,
		lifecycle: lifecycle,
		inventory: inventory,
		batchSize: batchSize,
		now:       now,
		logger:    logger,
	}
}

// RunOnce runs a single expiry cycle
func (s *HoldSweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	now := s.now()

	// 1. Cancel expired pending bookings, one batch at a time
	for {
		expired, err := s.bookings.ListExpiredPending(ctx, now, s.batchSize)
		if err != nil {
			return result, models.NewInternalError("Failed to list expired bookings", err)
		}
		if len(expired) == 0 {
			break
		}

		progressed := 0
		for _, booking := range expired {
			ok, err := s.lifecycle.OnHoldExpired(ctx, booking.ID)
			if err != nil {
				result.Failures++
				s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire booking")
				continue
			}
			if ok {
				result.BookingsExpired++
				progressed++
			}
		}

		// A batch that changed nothing would be listed again forever.
		if len(expired) < s.batchSize || progressed == 0 {
			break
		}
	}

	// 2. Remove any hold rows that lapsed without a pending booking behind them
	ids, err := s.inventory.ExpireStaleHolds(ctx, now)
	if err != nil {
		return result, err
	}
	result.HoldsReleased = len(ids)

	if result.BookingsExpired > 0 || result.HoldsReleased > 0 || result.Failures > 0 {
		s.logger.WithFields(logrus.Fields{
			"bookings_expired": result.BookingsExpired,
			"holds_released":   result.HoldsReleased,
			"failures":         result.Failures,
		}).Info("Hold expiry sweep finished")
	}
	return result, nil
}
