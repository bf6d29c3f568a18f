package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/swiftbus/booking-backend/pkg/validator"
)

var phoneValidator = validator.NewPhoneValidator()

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// CancellationReasonHoldExpired is recorded when the seat hold lapses unpaid
const CancellationReasonHoldExpired = "hold expired"

// PassengerDetail holds per-passenger information
type PassengerDetail struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Age        *int   `json:"age,omitempty"`
	SeatNumber int    `json:"seat_number,omitempty"`
}

// PassengerDetails is stored as JSONB
type PassengerDetails []PassengerDetail

// Value implements driver.Valuer for JSONB
func (p PassengerDetails) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB
func (p *PassengerDetails) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, p)
}

// Booking is a reservation of seats on one trip instance
type Booking struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	Reference          string           `json:"booking_reference" db:"booking_reference"`
	UserID             uuid.UUID        `json:"user_id" db:"user_id"`
	ScheduleID         uuid.UUID        `json:"schedule_id" db:"schedule_id"`
	TravelDate         time.Time        `json:"-" db:"travel_date"`
	PassengerCount     int              `json:"passenger_count" db:"passenger_count"`
	SelectedSeats      SeatNumbers      `json:"selected_seats" db:"selected_seats"`
	PassengerDetails   PassengerDetails `json:"passenger_details" db:"passenger_details"`
	BaseFare           float64          `json:"base_fare" db:"base_fare"`
	ServiceFee         float64          `json:"service_fee" db:"service_fee"`
	TaxAmount          float64          `json:"tax_amount" db:"tax_amount"`
	TotalAmount        float64          `json:"total_amount" db:"total_amount"`
	Currency           string           `json:"currency" db:"currency"`
	BookingStatus      BookingStatus    `json:"booking_status" db:"booking_status"`
	PaymentStatus      PaymentStatus    `json:"payment_status" db:"payment_status"`
	PaymentMethod      *string          `json:"payment_method,omitempty" db:"payment_method"`
	PaymentReference   *string          `json:"payment_reference,omitempty" db:"payment_reference"`
	HoldExpiresAt      time.Time        `json:"hold_expires_at" db:"hold_expires_at"`
	ConfirmedAt        *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancellationDate   *time.Time       `json:"cancellation_date,omitempty" db:"cancellation_date"`
	CancellationReason *string          `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// MarshalJSON renders travel_date as YYYY-MM-DD
func (b Booking) MarshalJSON() ([]byte, error) {
	type Alias Booking
	return json.Marshal(&struct {
		Alias
		TravelDate string `json:"travel_date"`
	}{
		Alias:      Alias(b),
		TravelDate: b.TravelDate.Format(DateLayout),
	})
}

// IsHoldExpired reports whether the seat hold has lapsed at now
func (b *Booking) IsHoldExpired(now time.Time) bool {
	return !now.Before(b.HoldExpiresAt)
}

// CheckPayable returns a reason when the booking cannot accept a payment
func (b *Booking) CheckPayable(now time.Time) error {
	if b.PaymentStatus == PaymentStatusPaid {
		return NewInvalidStateError("Booking is already paid")
	}
	if b.BookingStatus != BookingStatusPending {
		return NewInvalidStateError("Booking is %s and cannot be paid", b.BookingStatus)
	}
	if b.PaymentStatus == PaymentStatusRefunded {
		return NewInvalidStateError("Booking payment was refunded")
	}
	if b.IsHoldExpired(now) {
		return NewInvalidStateError("Seat hold expired at %s", b.HoldExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// CanCancel reports whether the booking may still be cancelled
func (b *Booking) CanCancel() bool {
	return b.BookingStatus == BookingStatusPending || b.BookingStatus == BookingStatusConfirmed
}

// IsConfirmed reports the confirmed/paid terminal state of a successful payment
func (b *Booking) IsConfirmed() bool {
	return b.BookingStatus == BookingStatusConfirmed && b.PaymentStatus == PaymentStatusPaid
}

// ============================================================================
// PRICING
// ============================================================================

// PriceBreakdown is the server-computed price of a booking
type PriceBreakdown struct {
	BaseFare   float64 `json:"base_fare"`
	ServiceFee float64 `json:"service_fee"`
	TaxAmount  float64 `json:"tax_amount"`
	Total      float64 `json:"total_amount"`
	Currency   string  `json:"currency"`
}

// CalculatePrice computes price*n + serviceFee + taxRate*(price*n)
func CalculatePrice(price float64, seats int, serviceFee, taxRate float64, currency string) PriceBreakdown {
	base := roundMoney(price * float64(seats))
	tax := roundMoney(base * taxRate)
	return PriceBreakdown{
		BaseFare:   base,
		ServiceFee: roundMoney(serviceFee),
		TaxAmount:  tax,
		Total:      roundMoney(base + serviceFee + tax),
		Currency:   currency,
	}
}

// AmountsMatch compares money values with a one-cent tolerance
func AmountsMatch(a, b float64) bool {
	return math.Abs(a-b) <= 0.01
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// ============================================================================
// REQUESTS
// ============================================================================

// CreateBookingRequest is the client payload for a new booking.
// Any client-supplied amount is ignored; the server computes the total.
type CreateBookingRequest struct {
	ScheduleID       string            `json:"schedule_id" binding:"required"`
	TravelDate       string            `json:"travel_date" binding:"required"`
	SeatNumbers      []int             `json:"seat_numbers"`
	PassengerCount   *int              `json:"passenger_count,omitempty"`
	PassengerDetails []PassengerDetail `json:"passenger_details"`
}

// Validate checks request shape. maxPassengers bounds a single booking.
func (r *CreateBookingRequest) Validate(maxPassengers int) error {
	if _, err := uuid.Parse(r.ScheduleID); err != nil {
		return NewValidationError("schedule_id must be a valid id")
	}
	if _, err := ParseTravelDate(r.TravelDate); err != nil {
		return NewValidationError("travel_date must be in YYYY-MM-DD format")
	}
	if len(r.SeatNumbers) == 0 {
		return NewValidationError("At least one seat must be selected")
	}
	if maxPassengers > 0 && len(r.SeatNumbers) > maxPassengers {
		return NewValidationError("A booking may contain at most %d seats", maxPassengers)
	}

	seen := make(map[int]bool, len(r.SeatNumbers))
	for _, seat := range r.SeatNumbers {
		if seat <= 0 {
			return NewValidationError("Seat number %d is invalid", seat)
		}
		if seen[seat] {
			return NewValidationError("Seat %d is selected more than once", seat)
		}
		seen[seat] = true
	}

	count := len(r.PassengerDetails)
	if r.PassengerCount != nil && *r.PassengerCount != count {
		return NewValidationError("passenger_count %d does not match %d passenger details", *r.PassengerCount, count)
	}
	if count != len(r.SeatNumbers) {
		return NewValidationError("Number of seats (%d) must match passenger count (%d)", len(r.SeatNumbers), count)
	}
	for i, p := range r.PassengerDetails {
		if strings.TrimSpace(p.Name) == "" {
			return NewValidationError("Passenger %d name is required", i+1)
		}
		if p.Phone != "" {
			phone, err := phoneValidator.Validate(p.Phone)
			if err != nil {
				return NewValidationError("Passenger %d phone: %v", i+1, err)
			}
			r.PassengerDetails[i].Phone = phone
		}
	}
	return nil
}

// CancelBookingRequest carries an optional reason
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CancelBookingResult reports the cancellation and any refund it triggered
type CancelBookingResult struct {
	Booking *Booking      `json:"booking"`
	Refund  *RefundResult `json:"refund,omitempty"`
}

// BookingStats summarises bookings for admins
type BookingStats struct {
	TotalBookings     int     `json:"total_bookings" db:"total_bookings"`
	PendingBookings   int     `json:"pending_bookings" db:"pending_bookings"`
	ConfirmedBookings int     `json:"confirmed_bookings" db:"confirmed_bookings"`
	CancelledBookings int     `json:"cancelled_bookings" db:"cancelled_bookings"`
	CompletedBookings int     `json:"completed_bookings" db:"completed_bookings"`
	PaidBookings      int     `json:"paid_bookings" db:"paid_bookings"`
	TotalRevenue      float64 `json:"total_revenue" db:"total_revenue"`
}

// QRPayload is the text encoded on an e-ticket
func (b *Booking) QRPayload(passenger, route string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"booking_id": b.Reference,
		"passenger":  passenger,
		"route":      route,
		"date":       b.TravelDate.Format(DateLayout),
		"seats":      b.SelectedSeats,
	})
	return string(payload)
}

// String is used in log lines
func (b *Booking) String() string {
	return fmt.Sprintf("booking %s (%s)", b.Reference, b.ID)
}
