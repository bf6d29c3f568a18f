package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/middleware"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/utils"
)

// respondSuccess writes the {success, message, data} envelope
func respondSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// statusForKind maps a core error kind to its HTTP status
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindValidation, models.ErrorKindScheduleIneligible, models.ErrorKindAmountMismatch:
		return http.StatusBadRequest
	case models.ErrorKindSeatConflict, models.ErrorKindInvalidState:
		return http.StatusConflict
	case models.ErrorKindGatewayFailure:
		return http.StatusPaymentRequired
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the {success:false, message, error_code} envelope.
// Internal causes are logged, never returned.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	appErr, ok := models.AsAppError(err)
	if !ok {
		appErr = models.NewInternalError("Internal server error", err)
	}

	status := statusForKind(appErr.Kind)
	body := gin.H{
		"success":    false,
		"message":    appErr.Message,
		"error_code": appErr.Code,
	}
	if appErr.Kind == models.ErrorKindSeatConflict {
		body["conflicting_seats"] = appErr.ConflictingSeats
	}

	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request failed")
		body["message"] = "Something went wrong. Please try again later."
	}

	c.AbortWithStatusJSON(status, body)
}

// actorFromContext builds the request actor from the authenticated user
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		return models.Actor{}, false
	}
	return models.Actor{
		UserID:    userCtx.UserID,
		IsAdmin:   userCtx.IsAdmin(),
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}, true
}

// requireActor aborts with 401 when no identity is attached
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success":    false,
			"message":    "Authentication required",
			"error_code": "MISSING_AUTH",
		})
	}
	return actor, ok
}

// parseIDParam parses a uuid path parameter, answering 404 for malformed ids
func parseIDParam(c *gin.Context, logger *logrus.Logger, name, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, logger, models.NewNotFoundError(entity))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
