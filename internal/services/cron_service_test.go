package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hrita/customer-portal/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCronService_RunNow(t *testing.T) {
	ok := CleanupJob{Name: "ok", Spec: "@hourly", Run: func(context.Context) (int64, error) { return 4, nil }}
	failing := CleanupJob{Name: "failing", Spec: "@hourly", Run: func(context.Context) (int64, error) {
		return 0, errors.New("db down")
	}}

	s := NewCronService(quietLogger(), ok, failing)
	removed := s.RunNow()

	assert.Equal(t, int64(4), removed["ok"])
	assert.Equal(t, int64(0), removed["failing"])
}

func TestCronService_StartRejectsBadSpec(t *testing.T) {
	s := NewCronService(quietLogger(), CleanupJob{Name: "bad", Spec: "not a spec", Run: func(context.Context) (int64, error) {
		return 0, nil
	}})

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestCronService_StartAndStop(t *testing.T) {
	s := NewCronService(quietLogger(), CleanupJob{Name: "noop", Spec: "*/15 * * * *", Run: func(context.Context) (int64, error) {
		return 0, nil
	}})

	require.NoError(t, s.Start())
	status := s.GetJobStatus()
	assert.Equal(t, 1, status["job_count"])
	s.Stop()
}

func TestMaintenanceJobs(t *testing.T) {
	db, mock := newMockDB(t)
	cfg := config.MaintenanceConfig{
		OTPCleanupSpec:     "*/15 * * * *",
		TokenCleanupSpec:   "0 3 * * *",
		AuditCleanupSpec:   "30 3 * * 0",
		AuditRetentionDays: 180,
	}

	tokens := func(context.Context) (int64, error) { return 2, nil }
	jobs := MaintenanceJobs(cfg,
		NewOTPService(db, testOTPConfig(), bcrypt.MinCost),
		NewRateLimitService(db, testRateLimitConfig()),
		tokens,
		NewAuditService(db),
	)
	require.Len(t, jobs, 4)

	mock.ExpectExec(`DELETE FROM otp_verifications`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM otp_rate_limits`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM audit_logs`).WillReturnResult(sqlmock.NewResult(0, 3))

	removed := NewCronService(quietLogger(), jobs...).RunNow()
	assert.Equal(t, map[string]int64{
		"otp_cleanup":           1,
		"rate_limit_cleanup":    2,
		"refresh_token_cleanup": 2,
		"audit_log_cleanup":     3,
	}, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
