package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phpdave11/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
)

// Ticket is a rendered e-ticket
type Ticket struct {
	Filename string
	PDF      []byte
}

// TicketService renders e-tickets for confirmed bookings
type TicketService struct {
	bookings  *BookingService
	schedules ScheduleStore
	logger    *logrus.Logger
}

// NewTicketService creates a new ticket service
func NewTicketService(bookings *BookingService, schedules ScheduleStore, logger *logrus.Logger) *TicketService {
	return &TicketService{
		bookings:  bookings,
		schedules: schedules,
		logger:    logger,
	}
}

// GenerateTicket renders a PDF with one section per passenger.
// Only confirmed or completed bookings have tickets.
func (s *TicketService) GenerateTicket(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*Ticket, error) {
	booking, err := s.bookings.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.BookingStatus != models.BookingStatusConfirmed && booking.BookingStatus != models.BookingStatusCompleted {
		return nil, models.NewInvalidStateError("Tickets are only available for confirmed bookings")
	}

	schedule, err := s.schedules.GetByID(ctx, booking.ScheduleID)
	if err != nil {
		return nil, models.NewInternalError("Failed to load schedule", err)
	}
	if schedule == nil {
		return nil, models.NewNotFoundError("Schedule")
	}

	pdf, err := buildTicketPDF(booking, schedule)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to render ticket")
		return nil, models.NewInternalError("Failed to render ticket", err)
	}

	return &Ticket{
		Filename: fmt.Sprintf("ticket-%s.pdf", booking.Reference),
		PDF:      pdf,
	}, nil
}

func buildTicketPDF(b *models.Booking, sc *models.Schedule) ([]byte, error) {
	route := fmt.Sprintf("%s - %s", sc.OriginName, sc.DestinationName)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+b.Reference, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "SWIFTBUS E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Booking reference : " + b.Reference,
		"Operator          : " + safe(sc.CompanyName, "-"),
		"Bus               : " + safe(sc.BusNumber, "-") + " (" + safe(sc.BusType, "-") + ")",
		"Route             : " + route,
		"Travel date       : " + b.TravelDate.Format(models.DateLayout),
		"Departure         : " + safe(sc.DepartureTime, "-"),
		"Arrival           : " + safe(sc.ArrivalTime, "-"),
		"Seats             : " + joinSeats(b.SelectedSeats),
		fmt.Sprintf("Total paid        : %.2f %s", b.TotalAmount, b.Currency),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	for i, p := range b.PassengerDetails {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, fmt.Sprintf("Passenger %d: %s (seat %d)", i+1, p.Name, p.SeatNumber))
		pdf.Ln(9)

		pdf.SetFont("Courier", "", 9)
		pdf.MultiCell(0, 5, b.QRPayload(p.Name, route), "1", "", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Present this ticket and a valid ID at boarding. The boxed code is scanned at the gate.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinSeats(seats models.SeatNumbers) string {
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = fmt.Sprint(s)
	}
	return strings.Join(parts, ", ")
}

func safe(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
