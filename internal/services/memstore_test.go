package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/config"
	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/models"
)

// memDB is an in-memory stand-in for PostgreSQL. Transactions take a global
// lock and restore a snapshot on error, which gives the same all-or-nothing
// and serialization guarantees the seat_holds upsert relies on.
type memDB struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]models.Schedule
	bookings  map[uuid.UUID]models.Booking
	holds     map[seatKey]models.SeatHold
	payments  map[uuid.UUID]models.Payment
	audits    []models.PaymentAudit
	security  []string
}

type seatKey struct {
	scheduleID uuid.UUID
	date       string
	seat       int
}

type inTxKey struct{}

func newMemDB() *memDB {
	return &memDB{
		schedules: make(map[uuid.UUID]models.Schedule),
		bookings:  make(map[uuid.UUID]models.Booking),
		holds:     make(map[seatKey]models.SeatHold),
		payments:  make(map[uuid.UUID]models.Payment),
	}
}

func (m *memDB) lock(ctx context.Context) func() {
	if ctx.Value(inTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// WithinTransaction implements Transactor
func (m *memDB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapBookings := make(map[uuid.UUID]models.Booking, len(m.bookings))
	for k, v := range m.bookings {
		snapBookings[k] = v
	}
	snapHolds := make(map[seatKey]models.SeatHold, len(m.holds))
	for k, v := range m.holds {
		snapHolds[k] = v
	}
	snapPayments := make(map[uuid.UUID]models.Payment, len(m.payments))
	for k, v := range m.payments {
		snapPayments[k] = v
	}

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		m.bookings = snapBookings
		m.holds = snapHolds
		m.payments = snapPayments
		return err
	}
	return nil
}

func (m *memDB) addSchedule(price float64, totalSeats int) models.Schedule {
	s := models.Schedule{
		ID:              uuid.New(),
		ScheduleCode:    "SCH-" + uuid.New().String()[:4],
		DepartureTime:   "08:00",
		ArrivalTime:     "14:00",
		DaysOfWeek:      models.StringArray{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"},
		Price:           price,
		IsActive:        true,
		EffectiveFrom:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TotalSeats:      totalSeats,
		BusNumber:       "AA-1234",
		BusType:         "standard",
		CompanyName:     "Selam Bus",
		OriginCode:      "ADD",
		OriginName:      "Addis Ababa",
		DestinationCode: "BDR",
		DestinationName: "Bahir Dar",
	}
	m.mu.Lock()
	m.schedules[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *memDB) booking(id uuid.UUID) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id]
}

func (m *memDB) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

func (m *memDB) holdsFor(bookingID uuid.UUID) []models.SeatHold {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SeatHold
	for _, h := range m.holds {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out
}

func (m *memDB) auditEvents() []models.PaymentEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PaymentEventType, len(m.audits))
	for i, a := range m.audits {
		out[i] = a.EventType
	}
	return out
}

// ============================================================================
// SCHEDULES
// ============================================================================

type memSchedules struct{ db *memDB }

func (s memSchedules) GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	defer s.db.lock(ctx)()
	sc, ok := s.db.schedules[id]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (s memSchedules) FindCandidates(ctx context.Context, origin, destination string, travelDate time.Time) ([]models.Schedule, error) {
	defer s.db.lock(ctx)()
	out := []models.Schedule{}
	for _, sc := range s.db.schedules {
		if sc.OriginCode == origin && sc.DestinationCode == destination {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s memSchedules) PopularRoutes(ctx context.Context, limit int) ([]models.PopularRoute, error) {
	return []models.PopularRoute{{RouteCode: "ADD-BDR", OriginCode: "ADD", DestinationCode: "BDR"}}, nil
}

// ============================================================================
// SEATS
// ============================================================================

type memSeats struct{ db *memDB }

func blocks(h models.SeatHold, now time.Time) bool {
	return h.BlocksAt(now)
}

func (s memSeats) ListUnavailableSeats(ctx context.Context, scheduleID uuid.UUID, travelDate time.Time, now time.Time) ([]int, error) {
	defer s.db.lock(ctx)()
	date := travelDate.Format(models.DateLayout)
	seats := []int{}
	for k, h := range s.db.holds {
		if k.scheduleID == scheduleID && k.date == date && blocks(h, now) {
			seats = append(seats, k.seat)
		}
	}
	sort.Ints(seats)
	return seats, nil
}

func (s memSeats) HoldSeats(ctx context.Context, req models.HoldRequest) error {
	defer s.db.lock(ctx)()
	date := req.TravelDate.Format(models.DateLayout)
	expires := req.ExpiresAt

	var conflicts []int
	for _, seat := range req.SeatNumbers {
		key := seatKey{req.ScheduleID, date, seat}
		existing, ok := s.db.holds[key]
		if ok {
			own := existing.BookingID == req.BookingID
			lapsed := existing.State == models.SeatStateHeld && !existing.HeldUntil.After(req.Now)
			if !own && !lapsed {
				conflicts = append(conflicts, seat)
				continue
			}
			if own && existing.State == models.SeatStateOccupied {
				continue
			}
		}
		s.db.holds[key] = models.SeatHold{
			ScheduleID: req.ScheduleID,
			TravelDate: req.TravelDate,
			SeatNumber: seat,
			BookingID:  req.BookingID,
			State:      models.SeatStateHeld,
			HeldUntil:  &expires,
			CreatedAt:  req.Now,
			UpdatedAt:  req.Now,
		}
	}
	if len(conflicts) > 0 {
		sort.Ints(conflicts)
		return models.NewSeatConflictError(conflicts)
	}
	return nil
}

func (s memSeats) ConfirmSeats(ctx context.Context, bookingID uuid.UUID, now time.Time) (int64, error) {
	defer s.db.lock(ctx)()
	var n int64
	for k, h := range s.db.holds {
		if h.BookingID == bookingID && blocks(h, now) {
			h.State = models.SeatStateOccupied
			h.HeldUntil = nil
			h.UpdatedAt = now
			s.db.holds[k] = h
			n++
		}
	}
	return n, nil
}

func (s memSeats) ReleaseSeats(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	defer s.db.lock(ctx)()
	var n int64
	for k, h := range s.db.holds {
		if h.BookingID == bookingID {
			delete(s.db.holds, k)
			n++
		}
	}
	return n, nil
}

func (s memSeats) DeleteExpiredHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	defer s.db.lock(ctx)()
	seen := map[uuid.UUID]bool{}
	ids := []uuid.UUID{}
	for k, h := range s.db.holds {
		if h.State == models.SeatStateHeld && !h.HeldUntil.After(now) {
			delete(s.db.holds, k)
			if !seen[h.BookingID] {
				seen[h.BookingID] = true
				ids = append(ids, h.BookingID)
			}
		}
	}
	return ids, nil
}

// ============================================================================
// BOOKINGS
// ============================================================================

type memBookings struct{ db *memDB }

func (b memBookings) Create(ctx context.Context, booking *models.Booking) error {
	defer b.db.lock(ctx)()
	b.db.bookings[booking.ID] = *booking
	return nil
}

func (b memBookings) get(id uuid.UUID) (*models.Booking, error) {
	bk, ok := b.db.bookings[id]
	if !ok {
		return nil, nil
	}
	return &bk, nil
}

func (b memBookings) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	defer b.db.lock(ctx)()
	return b.get(id)
}

func (b memBookings) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	defer b.db.lock(ctx)()
	return b.get(id)
}

func (b memBookings) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	defer b.db.lock(ctx)()
	out := []models.Booking{}
	for _, bk := range b.db.bookings {
		if bk.UserID == userID {
			out = append(out, bk)
		}
	}
	return out, nil
}

func (b memBookings) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	defer b.db.lock(ctx)()
	out := []models.Booking{}
	for _, bk := range b.db.bookings {
		if bk.BookingStatus == models.BookingStatusPending &&
			bk.PaymentStatus != models.PaymentStatusPaid &&
			!bk.HoldExpiresAt.After(now) && len(out) < limit {
			out = append(out, bk)
		}
	}
	return out, nil
}

func (b memBookings) transition(ctx context.Context, id uuid.UUID, cond func(models.Booking) bool, apply func(*models.Booking)) error {
	defer b.db.lock(ctx)()
	bk, ok := b.db.bookings[id]
	if !ok || !cond(bk) {
		return database.ErrBookingStateChanged
	}
	apply(&bk)
	b.db.bookings[id] = bk
	return nil
}

func (b memBookings) MarkConfirmed(ctx context.Context, id uuid.UUID, method, reference string, now time.Time) error {
	return b.transition(ctx, id,
		func(bk models.Booking) bool { return bk.BookingStatus == models.BookingStatusPending },
		func(bk *models.Booking) {
			bk.BookingStatus = models.BookingStatusConfirmed
			bk.PaymentStatus = models.PaymentStatusPaid
			bk.PaymentMethod = &method
			bk.PaymentReference = &reference
			bk.ConfirmedAt = &now
		})
}

func (b memBookings) MarkPaymentFailed(ctx context.Context, id uuid.UUID, now time.Time) error {
	return b.transition(ctx, id,
		func(bk models.Booking) bool {
			return bk.BookingStatus == models.BookingStatusPending && bk.PaymentStatus != models.PaymentStatusPaid
		},
		func(bk *models.Booking) { bk.PaymentStatus = models.PaymentStatusFailed })
}

func (b memBookings) MarkCancelled(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	return b.transition(ctx, id,
		func(bk models.Booking) bool { return bk.CanCancel() },
		func(bk *models.Booking) {
			bk.BookingStatus = models.BookingStatusCancelled
			bk.CancellationReason = &reason
			bk.CancellationDate = &now
		})
}

func (b memBookings) MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) error {
	return b.transition(ctx, id,
		func(bk models.Booking) bool { return bk.PaymentStatus == models.PaymentStatusPaid },
		func(bk *models.Booking) { bk.PaymentStatus = models.PaymentStatusRefunded })
}

func (b memBookings) CompleteTravelledBefore(ctx context.Context, date time.Time, now time.Time) (int64, error) {
	defer b.db.lock(ctx)()
	var n int64
	for id, bk := range b.db.bookings {
		if bk.BookingStatus == models.BookingStatusConfirmed && bk.TravelDate.Before(date) {
			bk.BookingStatus = models.BookingStatusCompleted
			b.db.bookings[id] = bk
			n++
		}
	}
	return n, nil
}

func (b memBookings) Stats(ctx context.Context) (*models.BookingStats, error) {
	defer b.db.lock(ctx)()
	stats := &models.BookingStats{}
	for _, bk := range b.db.bookings {
		stats.TotalBookings++
		switch bk.BookingStatus {
		case models.BookingStatusPending:
			stats.PendingBookings++
		case models.BookingStatusConfirmed:
			stats.ConfirmedBookings++
		case models.BookingStatusCancelled:
			stats.CancelledBookings++
		case models.BookingStatusCompleted:
			stats.CompletedBookings++
		}
		if bk.PaymentStatus == models.PaymentStatusPaid {
			stats.PaidBookings++
			stats.TotalRevenue += bk.TotalAmount
		}
	}
	return stats, nil
}

// ============================================================================
// PAYMENTS
// ============================================================================

type memPayments struct{ db *memDB }

func (p memPayments) Create(ctx context.Context, payment *models.Payment) error {
	defer p.db.lock(ctx)()
	for _, existing := range p.db.payments {
		if existing.BookingID == payment.BookingID &&
			(existing.PaymentStatus == models.PaymentStateProcessing || existing.PaymentStatus == models.PaymentStateCompleted) {
			return database.ErrPaymentInProgress
		}
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	p.db.payments[payment.ID] = *payment
	return nil
}

func (p memPayments) update(ctx context.Context, payment *models.Payment, cond func(models.Payment) bool, apply func(*models.Payment)) error {
	defer p.db.lock(ctx)()
	stored, ok := p.db.payments[payment.ID]
	if !ok || !cond(stored) {
		return database.ErrPaymentStateChanged
	}
	apply(payment)
	p.db.payments[payment.ID] = *payment
	return nil
}

func (p memPayments) MarkCompleted(ctx context.Context, payment *models.Payment, now time.Time) error {
	return p.update(ctx, payment,
		func(s models.Payment) bool { return s.PaymentStatus == models.PaymentStateProcessing },
		func(pm *models.Payment) {
			pm.PaymentStatus = models.PaymentStateCompleted
			pm.PaymentDate = &now
		})
}

func (p memPayments) MarkFailed(ctx context.Context, payment *models.Payment, reason string, now time.Time) error {
	return p.update(ctx, payment,
		func(s models.Payment) bool {
			return s.PaymentStatus == models.PaymentStateProcessing || s.PaymentStatus == models.PaymentStatePending
		},
		func(pm *models.Payment) {
			pm.PaymentStatus = models.PaymentStateFailed
			pm.FailureReason = &reason
		})
}

func (p memPayments) MarkRefunded(ctx context.Context, payment *models.Payment, amount float64, reference string, now time.Time) error {
	return p.update(ctx, payment,
		func(s models.Payment) bool {
			return s.PaymentStatus == models.PaymentStateCompleted && s.RefundAmount == 0
		},
		func(pm *models.Payment) {
			pm.PaymentStatus = models.PaymentStateRefunded
			pm.RefundAmount = amount
			pm.RefundReference = &reference
			pm.RefundDate = &now
		})
}

func (p memPayments) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	defer p.db.lock(ctx)()
	pm, ok := p.db.payments[id]
	if !ok {
		return nil, nil
	}
	return &pm, nil
}

func (p memPayments) latest(bookingID uuid.UUID, filter func(models.Payment) bool) *models.Payment {
	var found *models.Payment
	for _, pm := range p.db.payments {
		if pm.BookingID != bookingID || !filter(pm) {
			continue
		}
		if found == nil || pm.CreatedAt.After(found.CreatedAt) {
			cp := pm
			found = &cp
		}
	}
	return found
}

func (p memPayments) GetLatestByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	defer p.db.lock(ctx)()
	return p.latest(bookingID, func(models.Payment) bool { return true }), nil
}

func (p memPayments) GetCompletedByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	defer p.db.lock(ctx)()
	return p.latest(bookingID, func(pm models.Payment) bool {
		return pm.PaymentStatus == models.PaymentStateCompleted
	}), nil
}

// ============================================================================
// AUDIT
// ============================================================================

type memAudit struct{ db *memDB }

func (a memAudit) Log(ctx context.Context, audit *models.PaymentAudit) error {
	defer a.db.lock(ctx)()
	a.db.audits = append(a.db.audits, *audit)
	return nil
}

func (a memAudit) record(ctx context.Context, action string) error {
	defer a.db.lock(ctx)()
	a.db.security = append(a.db.security, action)
	return nil
}

func (a memAudit) LogAmountMismatch(ctx context.Context, actor models.Actor, bookingID uuid.UUID, expected, received float64) error {
	return a.record(ctx, "payment_amount_mismatch")
}

func (a memAudit) LogAdminCancellation(ctx context.Context, actor models.Actor, booking *models.Booking, reason string) error {
	return a.record(ctx, "booking_cancelled_by_admin")
}

func (a memAudit) LogRefund(ctx context.Context, actor models.Actor, payment *models.Payment, amount float64) error {
	return a.record(ctx, "payment_refunded")
}

// ============================================================================
// GATEWAY AND CLOCK
// ============================================================================

type fakeGateway struct {
	mu       sync.Mutex
	decline  string
	err      error
	onCharge func()
	charges  int
	refunds  []float64
}

func (g *fakeGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	g.mu.Lock()
	g.charges++
	hook := g.onCharge
	decline, err := g.decline, g.err
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if decline != "" {
		return &ChargeResponse{FailureReason: decline, Response: map[string]interface{}{"status": "failed"}}, nil
	}
	return &ChargeResponse{
		Success:          true,
		GatewayReference: "GW-" + req.TransactionReference,
		Response:         map[string]interface{}{"status": "success"},
	}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, gatewayReference string, amount float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, amount)
	return "REF-" + gatewayReference, nil
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ============================================================================
// FIXTURE
// ============================================================================

const testTravelDate = "2026-10-25"

type fixture struct {
	db        *memDB
	clock     *testClock
	gateway   *fakeGateway
	inventory *SeatInventoryService
	bookings  *BookingService
	payments  *PaymentService
	search    *SearchService
	sweeper   *HoldSweeper
	tickets   *TicketService
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test wrap the booking store the services see
func newFixtureWith(t *testing.T, wrap func(BookingStore) BookingStore) *fixture {
	t.Helper()

	db := newMemDB()
	clock := newTestClock()
	logger := testLogger()
	gateway := &fakeGateway{}

	cfg := config.BookingConfig{
		HoldTTL:        15 * time.Minute,
		ServiceFee:     25,
		TaxRate:        0.10,
		Currency:       "ETB",
		MaxPassengers:  10,
		SweepBatchSize: 2,
	}

	schedules := memSchedules{db}
	seats := memSeats{db}
	var bookingStore BookingStore = memBookings{db}
	if wrap != nil {
		bookingStore = wrap(bookingStore)
	}
	paymentStore := memPayments{db}
	audit := memAudit{db}

	inventory := NewSeatInventoryService(schedules, seats, db, cfg.HoldTTL, clock.Now, logger)
	bookings := NewBookingService(schedules, inventory, bookingStore, paymentStore, db, audit, cfg, clock.Now, logger)
	payments := NewPaymentService(bookingStore, paymentStore, bookings, NewGatewayRouter(gateway), audit, audit, db, clock.Now, logger)

	return &fixture{
		db:        db,
		clock:     clock,
		gateway:   gateway,
		inventory: inventory,
		bookings:  bookings,
		payments:  payments,
		search:    NewSearchService(schedules, inventory, cfg.Currency, clock.Now, logger),
		sweeper:   NewHoldSweeper(bookingStore, bookings, inventory, cfg.SweepBatchSize, clock.Now, logger),
		tickets:   NewTicketService(bookings, schedules, logger),
	}
}

func customer() models.Actor {
	return models.Actor{UserID: uuid.New(), IPAddress: "10.0.0.1", UserAgent: "Mozilla/5.0"}
}

func bookingRequest(scheduleID uuid.UUID, seats ...int) *models.CreateBookingRequest {
	passengers := make([]models.PassengerDetail, len(seats))
	for i := range seats {
		passengers[i] = models.PassengerDetail{Name: "Passenger", Phone: "+251911000000"}
	}
	return &models.CreateBookingRequest{
		ScheduleID:       scheduleID.String(),
		TravelDate:       testTravelDate,
		SeatNumbers:      seats,
		PassengerDetails: passengers,
	}
}

func (f *fixture) pay(actor models.Actor, booking *models.Booking) (*models.PaymentResult, error) {
	return f.payments.AuthorizePayment(context.Background(), actor, &models.ProcessPaymentRequest{
		BookingID:     booking.ID.String(),
		PaymentMethod: string(models.PaymentMethodMobileMoney),
		Amount:        booking.TotalAmount,
	})
}

// interleavedBookings runs afterGet once, right after the next GetByID returns.
// It places a concurrent writer between a read and the write that follows it.
type interleavedBookings struct {
	BookingStore
	mu       sync.Mutex
	afterGet func()
}

func (b *interleavedBookings) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := b.BookingStore.GetByID(ctx, id)
	b.mu.Lock()
	hook := b.afterGet
	b.afterGet = nil
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return booking, err
}

func (b *interleavedBookings) arm(hook func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.afterGet = hook
}
