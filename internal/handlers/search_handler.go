package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/services"
)

// SearchHandler handles schedule search and seat availability
type SearchHandler struct {
	search    *services.SearchService
	inventory *services.SeatInventoryService
	logger    *logrus.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(search *services.SearchService, inventory *services.SeatInventoryService, logger *logrus.Logger) *SearchHandler {
	return &SearchHandler{
		search:    search,
		inventory: inventory,
		logger:    logger,
	}
}

// SearchSchedules handles GET /api/v1/search/schedules
// @Summary Search for available schedules
// @Description Search bus schedules between two cities on a travel date
// @Tags Search
// @Produce json
// @Param origin query string true "Origin city code"
// @Param destination query string true "Destination city code"
// @Param date query string true "Travel date (YYYY-MM-DD)"
// @Param passengers query int false "Passenger count" default(1)
// @Success 200 {object} models.SearchResponse
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/search/schedules [get]
func (h *SearchHandler) SearchSchedules(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, h.logger, models.NewValidationError("Invalid search parameters"))
		return
	}

	response, err := h.search.SearchSchedules(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Schedules retrieved successfully", response)
}

// GetAvailableSeats handles GET /api/v1/schedules/:schedule_id/seats?date=
// @Summary List free seats for a schedule on a date
// @Tags Search
// @Produce json
// @Param schedule_id path string true "Schedule ID"
// @Param date query string true "Travel date (YYYY-MM-DD)"
// @Success 200 {object} models.SeatAvailability
// @Failure 400 {object} map[string]interface{} "Invalid date"
// @Failure 404 {object} map[string]interface{} "Schedule not found"
// @Router /api/v1/schedules/{schedule_id}/seats [get]
func (h *SearchHandler) GetAvailableSeats(c *gin.Context) {
	scheduleID, ok := parseIDParam(c, h.logger, "schedule_id", "Schedule")
	if !ok {
		return
	}

	date := c.Query("date")
	if date == "" {
		respondError(c, h.logger, models.NewValidationError("Parameter 'date' is required"))
		return
	}

	availability, err := h.inventory.ListAvailableSeats(c.Request.Context(), scheduleID, date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Available seats retrieved successfully", availability)
}

// GetSchedule handles GET /api/v1/schedules/:schedule_id
func (h *SearchHandler) GetSchedule(c *gin.Context) {
	scheduleID, ok := parseIDParam(c, h.logger, "schedule_id", "Schedule")
	if !ok {
		return
	}

	details, err := h.search.ScheduleDetails(c.Request.Context(), scheduleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Schedule retrieved successfully", details)
}

// GetPopularRoutes handles GET /api/v1/routes/popular
func (h *SearchHandler) GetPopularRoutes(c *gin.Context) {
	routes, err := h.search.PopularRoutes(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, "Popular routes retrieved successfully", gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}
