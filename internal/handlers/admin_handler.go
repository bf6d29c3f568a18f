package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/services"
)

// AdminHandler handles admin-only operations
type AdminHandler struct {
	bookings *services.BookingService
	cron     *services.CronService
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(bookings *services.BookingService, cron *services.CronService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		bookings: bookings,
		cron:     cron,
		logger:   logger,
	}
}

// GetBookingStats handles GET /api/v1/admin/bookings/stats
func (h *AdminHandler) GetBookingStats(c *gin.Context) {
	stats, err := h.bookings.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Booking statistics retrieved successfully", stats)
}

// RunHoldSweep handles POST /api/v1/admin/holds/sweep
func (h *AdminHandler) RunHoldSweep(c *gin.Context) {
	if actor, ok := actorFromContext(c); ok {
		h.logger.WithFields(logrus.Fields{
			"admin_id": actor.UserID,
			"ip":       actor.IPAddress,
		}).Info("Manual hold sweep requested")
	}

	result, err := h.cron.RunHoldSweepNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Hold sweep completed", result)
}

// GetCronStatus handles GET /api/v1/admin/cron/status
func (h *AdminHandler) GetCronStatus(c *gin.Context) {
	respondSuccess(c, http.StatusOK, "Cron status retrieved successfully", h.cron.GetJobStatus())
}
