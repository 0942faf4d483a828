package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_LogLogin(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewAuditService(db)
	userID := uuid.New()

	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(userID.String(), nil, "login", "user", userID.String(), "10.0.0.8", "portalctl/1.0", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := service.LogLogin(context.Background(), userID, clientPhone, "10.0.0.8", "portalctl/1.0")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogOTPRequest_Anonymous(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewAuditService(db)

	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(nil, nil, "otp_request", "otp", nil, "10.0.0.8", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := service.LogOTPRequest(context.Background(), clientPhone, "10.0.0.8", "", false, "rate limited")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_RecentActivity(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewAuditService(db)
	now := time.Now()

	mock.ExpectQuery(`FROM audit_logs a LEFT JOIN users u`).
		WithArgs(clientPhone, 5).
		WillReturnRows(sqlmock.NewRows([]string{"action", "subject_phone", "subject_name", "details", "created_at"}).
			AddRow("uploadEstimate", clientPhone, "Asha Rao", `{"stage":"EstimateProvided"}`, now).
			AddRow("addLead", clientPhone, nil, nil, now.Add(-time.Hour)))

	recents, err := service.RecentActivity(context.Background(), clientPhone, 5)
	require.NoError(t, err)
	require.Len(t, recents, 2)
	assert.Equal(t, "uploadEstimate", recents[0].Action)
	assert.True(t, recents[0].Details.Valid)
	assert.False(t, recents[1].SubjectName.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_CleanupOldAuditLogs(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewAuditService(db)

	mock.ExpectExec(`DELETE FROM audit_logs WHERE created_at`).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := service.CleanupOldAuditLogs(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
