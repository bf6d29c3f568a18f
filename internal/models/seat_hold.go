package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatState is the persisted non-free state of a seat. FREE has no row.
type SeatState string

const (
	SeatStateHeld     SeatState = "held"
	SeatStateOccupied SeatState = "occupied"
)

// SeatHold is one row of the seat inventory, keyed by trip instance and seat number
type SeatHold struct {
	ScheduleID uuid.UUID  `json:"schedule_id" db:"schedule_id"`
	TravelDate time.Time  `json:"travel_date" db:"travel_date"`
	SeatNumber int        `json:"seat_number" db:"seat_number"`
	BookingID  uuid.UUID  `json:"booking_id" db:"booking_id"`
	State      SeatState  `json:"state" db:"state"`
	HeldUntil  *time.Time `json:"held_until,omitempty" db:"held_until"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// BlocksAt reports whether the row makes the seat unavailable at now.
// Expired holds count as free.
func (h *SeatHold) BlocksAt(now time.Time) bool {
	if h.State == SeatStateOccupied {
		return true
	}
	return h.HeldUntil != nil && h.HeldUntil.After(now)
}

// HoldRequest asks the inventory to hold seats for a booking
type HoldRequest struct {
	ScheduleID  uuid.UUID
	TravelDate  time.Time
	SeatNumbers []int
	BookingID   uuid.UUID
	Now         time.Time
	ExpiresAt   time.Time
}

// SeatAvailability is the response for the available seats query
type SeatAvailability struct {
	ScheduleID     uuid.UUID `json:"schedule_id"`
	TravelDate     string    `json:"date"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats []int     `json:"available_seats"`
	TotalAvailable int       `json:"total_available"`
}

// FreeSeats returns 1..totalSeats minus the unavailable seats, ascending
func FreeSeats(totalSeats int, unavailable []int) []int {
	taken := make(map[int]bool, len(unavailable))
	for _, s := range unavailable {
		taken[s] = true
	}
	free := make([]int, 0, totalSeats)
	for seat := 1; seat <= totalSeats; seat++ {
		if !taken[seat] {
			free = append(free, seat)
		}
	}
	return free
}
