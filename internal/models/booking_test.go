package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *CreateBookingRequest {
	return &CreateBookingRequest{
		ScheduleID:  uuid.NewString(),
		TravelDate:  "2026-10-25",
		SeatNumbers: []int{5, 6},
		PassengerDetails: []PassengerDetail{
			{Name: "Abebe Kebede"},
			{Name: "Sara Tesfaye", Phone: "+251 911 234 567"},
		},
	}
}

func TestCalculatePrice(t *testing.T) {
	price := CalculatePrice(200, 2, 25, 0.10, "ETB")
	assert.Equal(t, 400.0, price.BaseFare)
	assert.Equal(t, 40.0, price.TaxAmount)
	assert.Equal(t, 465.0, price.Total)
	assert.Equal(t, "ETB", price.Currency)

	single := CalculatePrice(333.33, 1, 25, 0.10, "ETB")
	assert.Equal(t, 391.66, single.Total)
}

func TestAmountsMatch(t *testing.T) {
	assert.True(t, AmountsMatch(465, 465.005))
	assert.True(t, AmountsMatch(465, 464.99))
	assert.False(t, AmountsMatch(465, 465.02))
}

func TestCreateBookingRequestValidate(t *testing.T) {
	t.Run("Valid And Normalizes Phone", func(t *testing.T) {
		req := validRequest()
		require.NoError(t, req.Validate(10))
		assert.Equal(t, "0911234567", req.PassengerDetails[1].Phone)
		assert.Empty(t, req.PassengerDetails[0].Phone)
	})

	mismatch := 3
	tests := []struct {
		name   string
		mutate func(r *CreateBookingRequest)
	}{
		{"Bad Schedule ID", func(r *CreateBookingRequest) { r.ScheduleID = "sched-1" }},
		{"Bad Date", func(r *CreateBookingRequest) { r.TravelDate = "25/10/2026" }},
		{"No Seats", func(r *CreateBookingRequest) { r.SeatNumbers = nil }},
		{"Zero Seat", func(r *CreateBookingRequest) { r.SeatNumbers = []int{0, 6} }},
		{"Duplicate Seat", func(r *CreateBookingRequest) { r.SeatNumbers = []int{6, 6} }},
		{"Count Mismatch", func(r *CreateBookingRequest) { r.SeatNumbers = []int{5, 6, 7} }},
		{"Declared Count Mismatch", func(r *CreateBookingRequest) { r.PassengerCount = &mismatch }},
		{"Blank Name", func(r *CreateBookingRequest) { r.PassengerDetails[0].Name = "  " }},
		{"Bad Phone", func(r *CreateBookingRequest) { r.PassengerDetails[0].Phone = "12345" }},
		{"Too Many Seats", func(r *CreateBookingRequest) {
			r.SeatNumbers = []int{1, 2, 3}
			r.PassengerDetails = append(r.PassengerDetails, PassengerDetail{Name: "Third"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate(2)
			require.Error(t, err)
			assert.True(t, IsKind(err, ErrorKindValidation))
		})
	}
}

func TestCheckPayable(t *testing.T) {
	now := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	pending := func() *Booking {
		return &Booking{
			BookingStatus: BookingStatusPending,
			PaymentStatus: PaymentStatusPending,
			HoldExpiresAt: now.Add(15 * time.Minute),
		}
	}

	assert.NoError(t, pending().CheckPayable(now))

	failed := pending()
	failed.PaymentStatus = PaymentStatusFailed
	assert.NoError(t, failed.CheckPayable(now), "a declined payment can be retried")

	paid := pending()
	paid.PaymentStatus = PaymentStatusPaid
	assert.True(t, IsKind(paid.CheckPayable(now), ErrorKindInvalidState))

	cancelled := pending()
	cancelled.BookingStatus = BookingStatusCancelled
	assert.True(t, IsKind(cancelled.CheckPayable(now), ErrorKindInvalidState))

	lapsed := pending()
	assert.True(t, IsKind(lapsed.CheckPayable(now.Add(15*time.Minute)), ErrorKindInvalidState))
}

func TestPaymentMethodLimits(t *testing.T) {
	limits := map[PaymentMethod][2]float64{}
	for _, m := range DefaultPaymentMethods() {
		limits[m.ID] = [2]float64{m.MinAmount, m.MaxAmount}
	}
	assert.Equal(t, [2]float64{10, 50000}, limits[PaymentMethodMobileMoney])
	assert.Equal(t, [2]float64{50, 100000}, limits[PaymentMethodBankTransfer])
	assert.Equal(t, [2]float64{10, 200000}, limits[PaymentMethodCard])
	assert.Equal(t, [2]float64{0, 0}, limits[PaymentMethodCash])

	for _, m := range DefaultPaymentMethods() {
		switch m.ID {
		case PaymentMethodBankTransfer:
			assert.False(t, m.AcceptsAmount(49.99))
			assert.True(t, m.AcceptsAmount(465))
		case PaymentMethodMobileMoney:
			assert.False(t, m.AcceptsAmount(50000.01))
		case PaymentMethodCash:
			assert.True(t, m.AcceptsAmount(1_000_000))
		}
	}
}

func TestRefundAmountFor(t *testing.T) {
	p := &Payment{Amount: 465, PaymentStatus: PaymentStateCompleted}
	require.True(t, p.CanRefund())

	partial := 100.0
	tooMuch := 500.0
	negative := -5.0
	assert.Equal(t, 465.0, p.RefundAmountFor(nil))
	assert.Equal(t, 100.0, p.RefundAmountFor(&partial))
	assert.Equal(t, 465.0, p.RefundAmountFor(&tooMuch))
	assert.Equal(t, 465.0, p.RefundAmountFor(&negative))
}

func TestScheduleEligibleOn(t *testing.T) {
	until := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	s := &Schedule{
		IsActive:       true,
		DaysOfWeek:     StringArray{"monday", "Sunday"},
		EffectiveFrom:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveUntil: &until,
	}

	sunday, _ := ParseTravelDate("2026-10-25")
	ok, reason := s.EligibleOn(sunday)
	assert.True(t, ok)
	assert.Empty(t, reason)

	tuesday, _ := ParseTravelDate("2026-10-27")
	ok, reason = s.EligibleOn(tuesday)
	assert.False(t, ok)
	assert.Contains(t, reason, "tuesday")

	nextYear, _ := ParseTravelDate("2027-01-04")
	ok, _ = s.EligibleOn(nextYear)
	assert.False(t, ok)

	s.IsActive = false
	ok, _ = s.EligibleOn(sunday)
	assert.False(t, ok)
}

func TestSeatHoldBlocksAt(t *testing.T) {
	now := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	held := &SeatHold{State: SeatStateHeld, HeldUntil: &until}
	assert.True(t, held.BlocksAt(now))
	assert.True(t, held.BlocksAt(until.Add(-time.Second)))
	assert.False(t, held.BlocksAt(until))

	occupied := &SeatHold{State: SeatStateOccupied}
	assert.True(t, occupied.BlocksAt(now.Add(24*time.Hour)))

	assert.Equal(t, []int{1, 3, 5}, FreeSeats(5, []int{2, 4}))
}

func TestActorCanAccess(t *testing.T) {
	owner := uuid.New()
	assert.True(t, Actor{UserID: owner}.CanAccess(owner))
	assert.False(t, Actor{UserID: uuid.New()}.CanAccess(owner))
	assert.True(t, Actor{UserID: uuid.New(), IsAdmin: true}.CanAccess(owner))
}
