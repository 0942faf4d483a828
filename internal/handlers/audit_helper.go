package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// logAuditError logs audit service errors without failing the request
func (h *AuthHandler) logAuditError(operation string, err error) {
	if err != nil {
		h.logger.WithError(err).WithField("operation", operation).Warn("Audit write failed")
	}
}

// Helper functions to log audit events with error handling

func (h *AuthHandler) safeLogOTPRequest(ctx context.Context, phone, ipAddress, userAgent string, success bool, reason string) {
	h.logAuditError("LogOTPRequest", h.auditService.LogOTPRequest(ctx, phone, ipAddress, userAgent, success, reason))
}

func (h *AuthHandler) safeLogOTPVerification(ctx context.Context, userID *uuid.UUID, phone string, success bool, ipAddress, userAgent, failureReason string) {
	h.logAuditError("LogOTPVerification", h.auditService.LogOTPVerification(ctx, userID, phone, success, ipAddress, userAgent, failureReason))
}

func (h *AuthHandler) safeLogRateLimitViolation(ctx context.Context, phone, ipAddress, userAgent, limitType string, retryAfter time.Time) {
	h.logAuditError("LogRateLimitViolation", h.auditService.LogRateLimitViolation(ctx, phone, ipAddress, userAgent, limitType, retryAfter))
}

func (h *AuthHandler) safeLogLogin(ctx context.Context, userID uuid.UUID, phone, ipAddress, userAgent string) {
	h.logAuditError("LogLogin", h.auditService.LogLogin(ctx, userID, phone, ipAddress, userAgent))
}

func (h *AuthHandler) safeLogLogout(ctx context.Context, userID uuid.UUID, ipAddress, userAgent string, logoutAll bool) {
	h.logAuditError("LogLogout", h.auditService.LogLogout(ctx, userID, ipAddress, userAgent, logoutAll))
}

func (h *AuthHandler) safeLogTokenRefresh(ctx context.Context, userID uuid.UUID, ipAddress, userAgent string, success bool) {
	h.logAuditError("LogTokenRefresh", h.auditService.LogTokenRefresh(ctx, userID, ipAddress, userAgent, success))
}
