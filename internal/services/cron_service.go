package services

import (
	"context"
	"fmt"
	"time"

	"github.com/hrita/customer-portal/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CleanupFunc deletes stale rows and reports how many were removed
type CleanupFunc func(ctx context.Context) (int64, error)

// CleanupJob is one scheduled maintenance task
type CleanupJob struct {
	Name string
	Spec string
	Run  CleanupFunc
}

// CronService manages scheduled background jobs
type CronService struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	jobs    []CleanupJob
	timeout time.Duration
}

// NewCronService creates a new CronService for the given jobs.
// Specs use the standard five-field cron format.
func NewCronService(logger *logrus.Logger, jobs ...CleanupJob) *CronService {
	return &CronService{
		cron:    cron.New(),
		logger:  logger,
		jobs:    jobs,
		timeout: 5 * time.Minute,
	}
}

// MaintenanceJobs builds the standard cleanup jobs from configuration
func MaintenanceJobs(cfg config.MaintenanceConfig, otp *OTPService, rateLimit *RateLimitService, tokens CleanupFunc, audit *AuditService) []CleanupJob {
	retention := time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour

	return []CleanupJob{
		{Name: "otp_cleanup", Spec: cfg.OTPCleanupSpec, Run: otp.CleanupExpiredOTPs},
		{Name: "rate_limit_cleanup", Spec: cfg.OTPCleanupSpec, Run: rateLimit.CleanupExpiredRateLimits},
		{Name: "refresh_token_cleanup", Spec: cfg.TokenCleanupSpec, Run: tokens},
		{Name: "audit_log_cleanup", Spec: cfg.AuditCleanupSpec, Run: func(ctx context.Context) (int64, error) {
			return audit.CleanupOldAuditLogs(ctx, retention)
		}},
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	for _, job := range s.jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Spec, func() { s.runJob(job) }); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.Name, err)
		}
		s.logger.WithFields(logrus.Fields{"job": job.Name, "spec": job.Spec}).Info("Scheduled maintenance job")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunNow runs every job once, synchronously
func (s *CronService) RunNow() map[string]int64 {
	removed := make(map[string]int64, len(s.jobs))
	for _, job := range s.jobs {
		removed[job.Name] = s.runJob(job)
	}
	return removed
}

func (s *CronService) runJob(job CleanupJob) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	entry := s.logger.WithFields(logrus.Fields{
		"job":      job.Name,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Maintenance job failed")
		return 0
	}

	entry.WithField("removed", n).Info("Maintenance job finished")
	return n
}

// GetJobStatus returns the schedule of registered jobs
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
