package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/config"
)

// auditRetention is how long security audit rows are kept
const auditRetention = 365 * 24 * time.Hour

// jobTimeout bounds a single job run
const jobTimeout = 2 * time.Minute

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	config   config.CronConfig
	sweeper  *HoldSweeper
	bookings *BookingService
	audit    *AuditService
	cleanups []func(now time.Time) int
	logger   *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(cfg config.CronConfig, sweeper *HoldSweeper, bookings *BookingService, audit *AuditService, logger *logrus.Logger) *CronService {
	// Seconds precision: "0 * * * * *" runs at the top of every minute
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:     c,
		config:   cfg,
		sweeper:  sweeper,
		bookings: bookings,
		audit:    audit,
		logger:   logger,
	}
}

// AddCleanup registers an in-memory cleanup (e.g. the rate limiter) to run with the hold sweep
func (s *CronService) AddCleanup(fn func(now time.Time) int) {
	s.cleanups = append(s.cleanups, fn)
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: Expire lapsed seat holds
	if _, err := s.cron.AddFunc(s.config.HoldSweepSpec, s.holdSweepJob); err != nil {
		return fmt.Errorf("failed to schedule hold sweep job: %w", err)
	}
	s.logger.WithField("spec", s.config.HoldSweepSpec).Info("✓ Scheduled: Hold expiry sweep")

	// Job 2: Complete bookings whose travel date has passed
	if _, err := s.cron.AddFunc(s.config.CompletionSpec, s.completeTravelledJob); err != nil {
		return fmt.Errorf("failed to schedule completion job: %w", err)
	}
	s.logger.WithField("spec", s.config.CompletionSpec).Info("✓ Scheduled: Complete travelled bookings")

	// Job 3: Trim the security audit log weekly on Sunday at 4 AM
	if _, err := s.cron.AddFunc("0 0 4 * * 0", s.cleanupAuditJob); err != nil {
		return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Cleanup old audit logs (Sundays at 4:00 AM)")

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) holdSweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	startTime := time.Now()
	result, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Hold sweep failed")
		return
	}

	removed := 0
	for _, cleanup := range s.cleanups {
		removed += cleanup(startTime)
	}

	s.logger.WithFields(logrus.Fields{
		"bookings_expired": result.BookingsExpired,
		"holds_released":   result.HoldsReleased,
		"limiters_removed": removed,
		"duration_ms":      time.Since(startTime).Milliseconds(),
	}).Debug("[CRON] Hold sweep finished")
}

func (s *CronService) completeTravelledJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	startTime := time.Now()
	n, err := s.bookings.CompleteTravelled(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to complete travelled bookings")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"completed":   n,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("[CRON] ✓ Completed travelled bookings")
}

func (s *CronService) cleanupAuditJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.audit.CleanupOldAuditLogs(ctx, auditRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup audit logs")
		return
	}
	s.logger.WithField("deleted", n).Info("[CRON] ✓ Cleaned up old audit logs")
}

// RunHoldSweepNow runs the expiry sweep immediately (admin trigger)
func (s *CronService) RunHoldSweepNow(ctx context.Context) (*SweepResult, error) {
	s.logger.Info("[MANUAL] Running hold sweep now...")
	return s.sweeper.RunOnce(ctx)
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
