package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig

	// Redis configuration (idempotency keys)
	Redis RedisConfig

	// Booking rules
	Booking BookingConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Security configuration
	Security SecurityConfig

	// Scheduled jobs
	Cron CronConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds identity token configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
	SessionCookieName string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled       bool
	Requests      int
	WindowSeconds int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// RedisConfig holds the idempotency store configuration. An empty URL disables it.
type RedisConfig struct {
	URL            string
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
}

// BookingConfig holds pricing and hold rules
type BookingConfig struct {
	HoldTTL        time.Duration
	ServiceFee     float64
	TaxRate        float64
	Currency       string
	MaxPassengers  int
	SweepBatchSize int
}

// PaymentConfig holds gateway configuration
type PaymentConfig struct {
	SimulatedDelay       time.Duration
	SimulatedSuccessRate float64
	StripeSecretKey      string // enables the card gateway when set
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool
}

// CronConfig holds job schedules in seconds-precision cron syntax
type CronConfig struct {
	HoldSweepSpec  string
	CompletionSpec string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 20),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "swiftbus"),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session_token"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", ""),
			IdempotencyTTL: time.Duration(getEnvAsInt("IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
			LockTTL:        time.Duration(getEnvAsInt("IDEMPOTENCY_LOCK_SECONDS", 30)) * time.Second,
		},
		Booking: BookingConfig{
			HoldTTL:        time.Duration(getEnvAsInt("BOOKING_HOLD_TTL_MINUTES", 15)) * time.Minute,
			ServiceFee:     getEnvAsFloat("BOOKING_SERVICE_FEE", 25),
			TaxRate:        getEnvAsFloat("BOOKING_TAX_RATE", 0.10),
			Currency:       getEnv("BOOKING_CURRENCY", "ETB"),
			MaxPassengers:  getEnvAsInt("BOOKING_MAX_PASSENGERS", 10),
			SweepBatchSize: getEnvAsInt("BOOKING_SWEEP_BATCH_SIZE", 100),
		},
		Payment: PaymentConfig{
			SimulatedDelay:       time.Duration(getEnvAsInt("PAYMENT_SIMULATED_DELAY_MS", 1000)) * time.Millisecond,
			SimulatedSuccessRate: getEnvAsFloat("PAYMENT_SIMULATED_SUCCESS_RATE", 1.0),
			StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
		Cron: CronConfig{
			HoldSweepSpec:  getEnv("CRON_HOLD_SWEEP", "0 * * * * *"),
			CompletionSpec: getEnv("CRON_BOOKING_COMPLETION", "0 0 2 * * *"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.HoldTTL <= 0 {
		return fmt.Errorf("BOOKING_HOLD_TTL_MINUTES must be positive")
	}

	if c.Booking.ServiceFee < 0 {
		return fmt.Errorf("BOOKING_SERVICE_FEE must not be negative")
	}

	if c.Booking.TaxRate < 0 || c.Booking.TaxRate >= 1 {
		return fmt.Errorf("BOOKING_TAX_RATE must be in [0, 1)")
	}

	if c.Booking.MaxPassengers < 1 {
		return fmt.Errorf("BOOKING_MAX_PASSENGERS must be at least 1")
	}

	if c.Payment.SimulatedSuccessRate < 0 || c.Payment.SimulatedSuccessRate > 1 {
		return fmt.Errorf("PAYMENT_SIMULATED_SUCCESS_RATE must be between 0 and 1")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.WindowSeconds <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
