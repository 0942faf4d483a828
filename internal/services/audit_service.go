package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/utils"
)

// AuditService writes security and portal events to audit_logs.
// Portal events carry a subject phone and feed the recents list.
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{
		db: db,
	}
}

// AuditEvent represents an event to be logged
type AuditEvent struct {
	UserID       *uuid.UUID             // nil for pre-authentication events
	SubjectPhone string                 // client the event is about, if any
	Action       string                 // e.g. "otp_request", "login", "uploadEstimate"
	EntityType   string                 // e.g. "otp", "user", "estimate"
	EntityID     *uuid.UUID             // affected record, if any
	IPAddress    string
	UserAgent    string
	Details      map[string]interface{} // stored as JSONB
}

// LogOTPRequest logs an OTP generation request
func (s *AuditService) LogOTPRequest(ctx context.Context, phone, ipAddress, userAgent string, success bool, reason string) error {
	details := map[string]interface{}{
		"phone":       phone,
		"success":     success,
		"device_info": utils.ParseUserAgent(userAgent),
	}
	if reason != "" {
		details["reason"] = reason
	}

	return s.logEvent(ctx, s.db, AuditEvent{
		Action:     "otp_request",
		EntityType: "otp",
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogOTPVerification logs an OTP verification attempt
func (s *AuditService) LogOTPVerification(ctx context.Context, userID *uuid.UUID, phone string, success bool, ipAddress, userAgent, failureReason string) error {
	details := map[string]interface{}{
		"phone":       phone,
		"success":     success,
		"device_info": utils.ParseUserAgent(userAgent),
	}
	if !success && failureReason != "" {
		details["failure_reason"] = failureReason
	}

	action := "otp_verify_failed"
	if success {
		action = "otp_verify_success"
	}

	return s.logEvent(ctx, s.db, AuditEvent{
		UserID:     userID,
		Action:     action,
		EntityType: "otp",
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogRateLimitViolation logs a rate limit violation event
func (s *AuditService) LogRateLimitViolation(ctx context.Context, phone, ipAddress, userAgent, limitType string, retryAfter time.Time) error {
	return s.logEvent(ctx, s.db, AuditEvent{
		Action:     "rate_limit_violation",
		EntityType: "rate_limit",
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details: map[string]interface{}{
			"phone":       phone,
			"limit_type":  limitType,
			"retry_after": retryAfter,
			"device_info": utils.ParseUserAgent(userAgent),
		},
	})
}

// LogLogin logs a successful login event
func (s *AuditService) LogLogin(ctx context.Context, userID uuid.UUID, phone, ipAddress, userAgent string) error {
	return s.logEvent(ctx, s.db, AuditEvent{
		UserID:     &userID,
		Action:     "login",
		EntityType: "user",
		EntityID:   &userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details: map[string]interface{}{
			"phone":       phone,
			"device_info": utils.ParseUserAgent(userAgent),
		},
	})
}

// LogLogout logs a logout event
func (s *AuditService) LogLogout(ctx context.Context, userID uuid.UUID, ipAddress, userAgent string, logoutAll bool) error {
	return s.logEvent(ctx, s.db, AuditEvent{
		UserID:     &userID,
		Action:     "logout",
		EntityType: "user",
		EntityID:   &userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details: map[string]interface{}{
			"logout_all":  logoutAll,
			"device_info": utils.ParseUserAgent(userAgent),
		},
	})
}

// LogTokenRefresh logs a refresh token usage event
func (s *AuditService) LogTokenRefresh(ctx context.Context, userID uuid.UUID, ipAddress, userAgent string, success bool) error {
	action := "token_refresh_success"
	if !success {
		action = "token_refresh_failed"
	}

	return s.logEvent(ctx, s.db, AuditEvent{
		UserID:     &userID,
		Action:     action,
		EntityType: "token",
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    map[string]interface{}{"success": success},
	})
}

// LogPortalAction records a portal action inside the caller's transaction
func (s *AuditService) LogPortalAction(ctx context.Context, q database.Querier, event AuditEvent) error {
	return s.logEvent(ctx, q, event)
}

// logEvent writes one row to the audit_logs table
func (s *AuditService) logEvent(ctx context.Context, q database.Querier, event AuditEvent) error {
	var details models.NullString
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = models.NewNullString(string(raw))
	}

	query := `
		INSERT INTO audit_logs (user_id, subject_phone, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := q.ExecContext(ctx, query,
		nullUUID(event.UserID),
		models.NewNullString(event.SubjectPhone),
		event.Action,
		models.NewNullString(event.EntityType),
		nullUUID(event.EntityID),
		models.NewNullString(event.IPAddress),
		models.NewNullString(event.UserAgent),
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// RecentActivity returns the newest portal events. An empty subjectPhone
// returns events across all clients.
func (s *AuditService) RecentActivity(ctx context.Context, subjectPhone string, limit int) ([]models.RecentActivity, error) {
	recents := []models.RecentActivity{}
	query := `
		SELECT a.action, a.subject_phone, u.name AS subject_name, a.details, a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON u.phone = a.subject_phone
		WHERE a.subject_phone IS NOT NULL
		  AND ($1 = '' OR a.subject_phone = $1)
		ORDER BY a.created_at DESC
		LIMIT $2
	`

	if err := s.db.SelectContext(ctx, &recents, query, subjectPhone, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}

	return recents, nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
