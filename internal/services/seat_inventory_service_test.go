package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftbus/booking-backend/internal/models"
)

func TestListAvailableSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schedule := f.db.addSchedule(200, 6)

	avail, err := f.inventory.ListAvailableSeats(ctx, schedule.ID, testTravelDate)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, avail.AvailableSeats)
	assert.Equal(t, 6, avail.TotalSeats)
	assert.Equal(t, testTravelDate, avail.TravelDate)

	_, err = f.bookings.CreateBooking(ctx, customer(), bookingRequest(schedule.ID, 2, 5))
	require.NoError(t, err)

	avail, err = f.inventory.ListAvailableSeats(ctx, schedule.ID, testTravelDate)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 6}, avail.AvailableSeats)
	assert.Equal(t, 4, avail.TotalAvailable)

	// Holds are per travel date
	other, err := f.inventory.ListAvailableSeats(ctx, schedule.ID, "2026-10-26")
	require.NoError(t, err)
	assert.Len(t, other.AvailableSeats, 6)

	_, err = f.inventory.ListAvailableSeats(ctx, schedule.ID, "tomorrow")
	assert.True(t, models.IsKind(err, models.ErrorKindValidation))
	_, err = f.inventory.ListAvailableSeats(ctx, schedule.ID, "2026-10-01")
	assert.True(t, models.IsKind(err, models.ErrorKindValidation))
	_, err = f.inventory.ListAvailableSeats(ctx, uuid.New(), testTravelDate)
	assert.True(t, models.IsKind(err, models.ErrorKindNotFound))
}

func TestHoldSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schedule := f.db.addSchedule(200, 10)
	travelDate, err := models.ParseTravelDate(testTravelDate)
	require.NoError(t, err)

	first, second := uuid.New(), uuid.New()

	expires, err := f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{1, 2}, first)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), expires)

	t.Run("Conflict Lists Taken Seats", func(t *testing.T) {
		_, err := f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{2, 3, 1}, second)
		appErr, ok := models.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, []int{1, 2}, appErr.ConflictingSeats)
		assert.Empty(t, f.db.holdsFor(second), "no partial hold")
	})

	t.Run("Same Booking Refreshes", func(t *testing.T) {
		f.clock.Advance(5 * time.Minute)
		refreshed, err := f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{1, 2}, first)
		require.NoError(t, err)
		assert.True(t, refreshed.After(expires))
	})

	t.Run("Lapsed Hold Can Be Taken", func(t *testing.T) {
		f.clock.Advance(16 * time.Minute)
		_, err := f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{1}, second)
		require.NoError(t, err)
		holds := f.db.holdsFor(second)
		require.Len(t, holds, 1)
		assert.Equal(t, 1, holds[0].SeatNumber)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := f.inventory.HoldSeats(ctx, schedule.ID, travelDate, nil, second)
		assert.True(t, models.IsKind(err, models.ErrorKindValidation))
	})
}

func TestConfirmAndReleaseSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schedule := f.db.addSchedule(200, 10)
	travelDate, err := models.ParseTravelDate(testTravelDate)
	require.NoError(t, err)
	id := uuid.New()

	_, err = f.inventory.ConfirmSeats(ctx, id)
	assert.True(t, models.IsKind(err, models.ErrorKindNotFound))

	_, err = f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{4, 5}, id)
	require.NoError(t, err)

	n, err := f.inventory.ConfirmSeats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Occupied seats never lapse
	f.clock.Advance(24 * time.Hour)
	avail, err := f.inventory.ListAvailableSeats(ctx, schedule.ID, testTravelDate)
	require.NoError(t, err)
	assert.NotContains(t, avail.AvailableSeats, 4)
	assert.NotContains(t, avail.AvailableSeats, 5)

	n, err = f.inventory.ReleaseSeats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.inventory.ReleaseSeats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	avail, err = f.inventory.ListAvailableSeats(ctx, schedule.ID, testTravelDate)
	require.NoError(t, err)
	assert.Len(t, avail.AvailableSeats, 10)
}

func TestHoldSeatsKeepsOwnOccupiedSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schedule := f.db.addSchedule(200, 10)
	travelDate, err := models.ParseTravelDate(testTravelDate)
	require.NoError(t, err)
	id := uuid.New()

	_, err = f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{1, 2}, id)
	require.NoError(t, err)
	_, err = f.inventory.ConfirmSeats(ctx, id)
	require.NoError(t, err)

	_, err = f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{1, 2, 3}, id)
	require.NoError(t, err)

	holds := f.db.holdsFor(id)
	require.Len(t, holds, 3)
	assert.Equal(t, models.SeatStateOccupied, holds[0].State)
	assert.Nil(t, holds[0].HeldUntil)
	assert.Equal(t, models.SeatStateOccupied, holds[1].State)
	assert.Equal(t, models.SeatStateHeld, holds[2].State)

	_, err = f.inventory.HoldSeats(ctx, schedule.ID, travelDate, []int{2}, uuid.New())
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, []int{2}, appErr.ConflictingSeats)
}

func TestHoldSeatsUntilJoinsTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schedule := f.db.addSchedule(200, 10)
	travelDate, err := models.ParseTravelDate(testTravelDate)
	require.NoError(t, err)
	id := uuid.New()
	now := f.clock.Now()

	req := models.HoldRequest{
		ScheduleID:  schedule.ID,
		TravelDate:  travelDate,
		SeatNumbers: []int{7},
		BookingID:   id,
		Now:         now,
		ExpiresAt:   now.Add(time.Minute),
	}

	abort := errors.New("abort")
	err = f.db.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, f.inventory.HoldSeatsUntil(ctx, req))
		return abort
	})
	assert.ErrorIs(t, err, abort)
	assert.Empty(t, f.db.holdsFor(id), "outer rollback drops the hold")

	require.NoError(t, f.inventory.HoldSeatsUntil(ctx, req))
	holds := f.db.holdsFor(id)
	require.Len(t, holds, 1)
	assert.Equal(t, req.ExpiresAt, *holds[0].HeldUntil)
}
