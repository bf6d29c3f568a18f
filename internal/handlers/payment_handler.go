package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/services"
)

// PaymentHandler handles payment authorization, verification and refunds
type PaymentHandler struct {
	payments *services.PaymentService
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *services.PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
	}
}

// GetPaymentMethods handles GET /api/v1/payments/methods
func (h *PaymentHandler) GetPaymentMethods(c *gin.Context) {
	methods := h.payments.Methods()
	respondSuccess(c, http.StatusOK, "Payment methods retrieved successfully", gin.H{
		"methods": methods,
		"count":   len(methods),
	})
}

// ProcessPayment charges a pending booking
// @Summary Pay for a booking
// @Description The amount must equal the booking total. A declined charge keeps the seats held until the hold expires.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body models.ProcessPaymentRequest true "Payment request"
// @Success 200 {object} models.PaymentResult
// @Failure 400 {object} map[string]interface{} "Invalid request or amount mismatch"
// @Failure 402 {object} map[string]interface{} "Payment declined"
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Failure 409 {object} map[string]interface{} "Booking cannot be paid"
// @Security BearerAuth
// @Router /api/v1/payments [post]
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req models.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, models.NewValidationError("booking_id, payment_method and amount are required"))
		return
	}

	result, err := h.payments.AuthorizePayment(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Payment completed and booking confirmed", result)
}

// VerifyPayment handles GET /api/v1/payments/verify?payment_id=|booking_id=
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	verification, err := h.payments.VerifyPayment(c.Request.Context(), actor, c.Query("payment_id"), c.Query("booking_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Payment verified", verification)
}

// RefundPayment refunds a completed payment, in full unless an amount is given
// @Summary Refund a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param payment_id path string true "Payment ID"
// @Param request body models.RefundPaymentRequest false "Partial refund amount"
// @Success 200 {object} models.RefundResult
// @Failure 404 {object} map[string]interface{} "Payment not found"
// @Failure 409 {object} map[string]interface{} "Payment cannot be refunded"
// @Security BearerAuth
// @Router /api/v1/payments/{payment_id}/refund [post]
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, h.logger, "payment_id", "Payment")
	if !ok {
		return
	}

	var req models.RefundPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, h.logger, models.NewValidationError("Invalid request body"))
			return
		}
	}

	result, err := h.payments.RefundPayment(c.Request.Context(), actor, id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Payment refunded successfully", result)
}
