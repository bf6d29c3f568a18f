package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/config"
	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/handlers"
	"github.com/swiftbus/booking-backend/internal/metrics"
	"github.com/swiftbus/booking-backend/internal/middleware"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/services"
	"github.com/swiftbus/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SwiftBus Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	scheduleRepo := database.NewScheduleRepository(db.DB)
	seatRepo := database.NewSeatInventoryRepository(db.DB)
	bookingRepo := database.NewBookingRepository(db.DB)
	paymentRepo := database.NewPaymentRepository(db.DB)
	paymentAuditRepo := database.NewPaymentAuditRepository(db.DB, logger)
	txManager := database.NewTxManager(db.DB, logger)

	// Payment gateways: simulated for every method, Stripe for cards when configured
	gateways := services.NewGatewayRouter(services.NewSimulatedGateway(services.SimulatedGatewayConfig{
		Delay:       cfg.Payment.SimulatedDelay,
		SuccessRate: cfg.Payment.SimulatedSuccessRate,
	}))
	if cfg.Payment.StripeSecretKey != "" {
		stripeGateway, err := services.NewStripeGateway(cfg.Payment.StripeSecretKey)
		if err != nil {
			logger.Fatalf("Failed to configure Stripe gateway: %v", err)
		}
		gateways.Use(models.PaymentMethodCard, stripeGateway)
		logger.Info("Stripe gateway enabled for card payments")
	}

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(db.DB, cfg.Security.EnableAuditLog, logger)

	inventoryService := services.NewSeatInventoryService(scheduleRepo, seatRepo, txManager, cfg.Booking.HoldTTL, time.Now, logger)
	bookingService := services.NewBookingService(scheduleRepo, inventoryService, bookingRepo, paymentRepo, txManager, auditService, cfg.Booking, time.Now, logger)
	paymentService := services.NewPaymentService(bookingRepo, paymentRepo, bookingService, gateways, paymentAuditRepo, auditService, txManager, time.Now, logger)
	searchService := services.NewSearchService(scheduleRepo, inventoryService, cfg.Booking.Currency, time.Now, logger)
	ticketService := services.NewTicketService(bookingService, scheduleRepo, logger)
	sweeper := services.NewHoldSweeper(bookingRepo, bookingService, inventoryService, cfg.Booking.SweepBatchSize, time.Now, logger)

	// Rate limiter
	limiter := middleware.NewIPRateLimiter(cfg.RateLimit)

	// Initialize and start cron service
	cronService := services.NewCronService(cfg.Cron, sweeper, bookingService, auditService, logger)
	cronService.AddCleanup(limiter.Cleanup)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Idempotency store (optional)
	var idempotencyStore middleware.IdempotencyStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, idempotency keys will fail open")
		}
		cancel()
		idempotencyStore = redisClient
		logger.Info("Idempotency keys enabled")
	}

	logger.Info("Services initialized")

	// Handlers
	searchHandler := handlers.NewSearchHandler(searchService, inventoryService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, ticketService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	adminHandler := handlers.NewAdminHandler(bookingService, cronService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(requestLogger(logger))
	}
	router.Use(metrics.Middleware())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check and metrics endpoints
	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.AuthMiddleware(jwtService, cfg.JWT.SessionCookieName, logger)
	idempotent := middleware.Idempotency(idempotencyStore, cfg.Redis.IdempotencyTTL, cfg.Redis.LockTTL, logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(limiter, logger))
	}
	{
		// Public catalog and availability
		v1.GET("/search/schedules", searchHandler.SearchSchedules)
		v1.GET("/schedules/:schedule_id", searchHandler.GetSchedule)
		v1.GET("/schedules/:schedule_id/seats", searchHandler.GetAvailableSeats)
		v1.GET("/routes/popular", searchHandler.GetPopularRoutes)
		v1.GET("/payments/methods", paymentHandler.GetPaymentMethods)

		bookings := v1.Group("/bookings")
		bookings.Use(auth)
		{
			bookings.POST("", idempotent, bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:booking_id", bookingHandler.GetBooking)
			bookings.POST("/:booking_id/cancel", bookingHandler.CancelBooking)
			bookings.GET("/:booking_id/payment", bookingHandler.GetPaymentStatus)
			bookings.GET("/:booking_id/ticket", bookingHandler.DownloadTicket)
		}

		payments := v1.Group("/payments")
		payments.Use(auth)
		{
			payments.POST("", idempotent, paymentHandler.ProcessPayment)
			payments.GET("/verify", paymentHandler.VerifyPayment)
			payments.POST("/:payment_id/refund", idempotent, paymentHandler.RefundPayment)
		}

		admin := v1.Group("/admin")
		admin.Use(auth, middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/bookings/stats", adminHandler.GetBookingStats)
			admin.POST("/holds/sweep", adminHandler.RunHoldSweep)
			admin.GET("/cron/status", adminHandler.GetCronStatus)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		// Add user context if available
		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
