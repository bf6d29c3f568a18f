package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/swiftbus/booking-backend/internal/config"
	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/middleware"
	"github.com/swiftbus/booking-backend/internal/services"
	"github.com/swiftbus/booking-backend/pkg/jwt"
)

type testServer struct {
	router *gin.Engine
	mock   sqlmock.Sqlmock
	jwt    *jwt.Service
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// newTestServer wires the real services over a sqlmock database and mounts
// the same routes as cmd/server
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")
	logger := quietLogger()

	bookingCfg := config.BookingConfig{
		HoldTTL:        15 * time.Minute,
		ServiceFee:     25,
		TaxRate:        0.10,
		Currency:       "ETB",
		MaxPassengers:  10,
		SweepBatchSize: 100,
	}

	scheduleRepo := database.NewScheduleRepository(db)
	seatRepo := database.NewSeatInventoryRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)
	tx := database.NewTxManager(db, logger)
	audit := services.NewAuditService(db, false, logger)
	gateways := services.NewGatewayRouter(services.NewSimulatedGateway(services.SimulatedGatewayConfig{SuccessRate: 1}))

	inventory := services.NewSeatInventoryService(scheduleRepo, seatRepo, tx, bookingCfg.HoldTTL, time.Now, logger)
	bookings := services.NewBookingService(scheduleRepo, inventory, bookingRepo, paymentRepo, tx, audit, bookingCfg, time.Now, logger)
	payments := services.NewPaymentService(bookingRepo, paymentRepo, bookings, gateways, auditRepo, audit, tx, time.Now, logger)
	search := services.NewSearchService(scheduleRepo, inventory, bookingCfg.Currency, time.Now, logger)
	tickets := services.NewTicketService(bookings, scheduleRepo, logger)
	sweeper := services.NewHoldSweeper(bookingRepo, bookings, inventory, bookingCfg.SweepBatchSize, time.Now, logger)
	cron := services.NewCronService(config.CronConfig{}, sweeper, bookings, audit, logger)

	jwtService := jwt.NewService("test-secret", "swiftbus", time.Hour)

	searchHandler := NewSearchHandler(search, inventory, logger)
	bookingHandler := NewBookingHandler(bookings, tickets, logger)
	paymentHandler := NewPaymentHandler(payments, logger)
	adminHandler := NewAdminHandler(bookings, cron, logger)

	router := gin.New()
	auth := middleware.AuthMiddleware(jwtService, "session_token", logger)

	v1 := router.Group("/api/v1")
	v1.GET("/search/schedules", searchHandler.SearchSchedules)
	v1.GET("/schedules/:schedule_id", searchHandler.GetSchedule)
	v1.GET("/schedules/:schedule_id/seats", searchHandler.GetAvailableSeats)
	v1.GET("/payments/methods", paymentHandler.GetPaymentMethods)

	b := v1.Group("/bookings", auth)
	b.POST("", bookingHandler.CreateBooking)
	b.GET("", bookingHandler.ListBookings)
	b.GET("/:booking_id", bookingHandler.GetBooking)
	b.POST("/:booking_id/cancel", bookingHandler.CancelBooking)
	b.GET("/:booking_id/payment", bookingHandler.GetPaymentStatus)
	b.GET("/:booking_id/ticket", bookingHandler.DownloadTicket)

	p := v1.Group("/payments", auth)
	p.POST("", paymentHandler.ProcessPayment)
	p.GET("/verify", paymentHandler.VerifyPayment)
	p.POST("/:payment_id/refund", paymentHandler.RefundPayment)

	a := v1.Group("/admin", auth, middleware.RequireRole(middleware.RoleAdmin))
	a.GET("/bookings/stats", adminHandler.GetBookingStats)
	a.POST("/holds/sweep", adminHandler.RunHoldSweep)
	a.GET("/cron/status", adminHandler.GetCronStatus)

	return &testServer{router: router, mock: mock, jwt: jwtService}
}

func (s *testServer) token(t *testing.T, roles ...string) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{"customer"}
	}
	token, err := s.jwt.GenerateAccessToken(uuid.New(), "rider@example.com", roles)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, _ := json.Marshal(b)
			reader = bytes.NewBuffer(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) map[string]interface{} {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decode(t, w)
	require.Equal(t, false, body["success"])
	require.Equal(t, code, body["error_code"])
	return body
}
