package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/services"
)

// BookingHandler handles the booking lifecycle endpoints
type BookingHandler struct {
	bookings *services.BookingService
	tickets  *services.TicketService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings *services.BookingService, tickets *services.TicketService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		tickets:  tickets,
		logger:   logger,
	}
}

// CreateBooking holds the requested seats and creates a pending booking
// @Summary Create a booking
// @Description Holds the seats for 15 minutes. The total is computed by the server.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.Booking "Booking created"
// @Failure 400 {object} map[string]interface{} "Invalid request or schedule not operating"
// @Failure 401 {object} map[string]interface{} "Unauthorized"
// @Failure 404 {object} map[string]interface{} "Schedule not found"
// @Failure 409 {object} map[string]interface{} "Seats not available"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, models.NewValidationError("Invalid request body"))
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusCreated, "Booking created. Complete payment before the hold expires.", booking)
}

// ListBookings returns the caller's bookings, newest first
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Security BearerAuth
// @Router /api/v1/bookings [get]
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	bookings, err := h.bookings.ListBookings(c.Request.Context(), actor, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Bookings retrieved successfully", gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// GetBooking returns one booking owned by the caller
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, h.logger, "booking_id", "Booking")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Booking retrieved successfully", booking)
}

// CancelBooking cancels a pending or confirmed booking
// @Summary Cancel a booking
// @Description Releases the seats and refunds a completed payment
// @Tags Bookings
// @Accept json
// @Produce json
// @Param booking_id path string true "Booking ID"
// @Param request body models.CancelBookingRequest false "Cancellation reason"
// @Success 200 {object} models.CancelBookingResult
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Failure 409 {object} map[string]interface{} "Booking cannot be cancelled"
// @Security BearerAuth
// @Router /api/v1/bookings/{booking_id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, h.logger, "booking_id", "Booking")
	if !ok {
		return
	}

	// The body is optional
	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, h.logger, models.NewValidationError("Invalid request body"))
			return
		}
	}

	result, err := h.bookings.CancelBooking(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Booking cancelled successfully"
	if result.Refund != nil {
		message = "Booking cancelled and payment refunded"
	}
	respondSuccess(c, http.StatusOK, message, result)
}

// GetPaymentStatus returns the latest payment of a booking
func (h *BookingHandler) GetPaymentStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, h.logger, "booking_id", "Booking")
	if !ok {
		return
	}

	status, err := h.bookings.PaymentStatusForBooking(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Payment status retrieved successfully", status)
}

// DownloadTicket streams the e-ticket PDF
func (h *BookingHandler) DownloadTicket(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, h.logger, "booking_id", "Booking")
	if !ok {
		return
	}

	ticket, err := h.tickets.GenerateTicket(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+ticket.Filename+`"`)
	c.Data(http.StatusOK, "application/pdf", ticket.PDF)
}
