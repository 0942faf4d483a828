package services

import (
	"context"
	"fmt"
	"time"

	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
)

// RateLimitService handles OTP request rate limiting
type RateLimitService struct {
	db     database.DB
	config RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxPhoneRequests int           // Max OTP requests per phone
	PhoneWindow      time.Duration // Time window for phone rate limit
	MaxIPRequests    int           // Max OTP requests per IP
	IPWindow         time.Duration // Time window for IP rate limit
}

// RateLimitConfigFrom derives limits from the OTP settings
func RateLimitConfigFrom(cfg config.OTPConfig) RateLimitConfig {
	return RateLimitConfig{
		MaxPhoneRequests: cfg.RateLimit,
		PhoneWindow:      time.Duration(cfg.RateWindowMinutes) * time.Minute,
		MaxIPRequests:    10,
		IPWindow:         time.Hour,
	}
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB, cfg RateLimitConfig) *RateLimitService {
	return &RateLimitService{
		db:     db,
		config: cfg,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "phone" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckOTPRateLimit checks if a phone number or IP has exceeded rate limits
func (s *RateLimitService) CheckOTPRateLimit(ctx context.Context, phone, ip string) error {
	if phone != "" {
		if err := s.check(ctx, phone, "phone", s.config.MaxPhoneRequests, s.config.PhoneWindow); err != nil {
			return err
		}
	}

	if ip != "" {
		if err := s.check(ctx, ip, "ip", s.config.MaxIPRequests, s.config.IPWindow); err != nil {
			return err
		}
	}

	return nil
}

func (s *RateLimitService) check(ctx context.Context, identifier, identifierType string, max int, window time.Duration) error {
	count, lastRequest, err := s.getRequestCount(ctx, identifier, identifierType, window)
	if err != nil {
		return fmt.Errorf("failed to check %s rate limit: %w", identifierType, err)
	}

	if count < max {
		return nil
	}

	retryAfter := lastRequest.Add(window)
	subject := "this phone number"
	if identifierType == "ip" {
		subject = "this IP address"
	}

	return &RateLimitError{
		Message:    fmt.Sprintf("Too many OTP requests for %s. Please try again after %s", subject, retryAfter.Format("15:04:05")),
		RetryAfter: retryAfter,
		Type:       identifierType,
	}
}

// getRequestCount gets the number of requests within the time window
func (s *RateLimitService) getRequestCount(ctx context.Context, identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	query := `
		SELECT COUNT(*), COALESCE(MAX(created_at), NOW())
		FROM otp_rate_limits
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var count int
	var lastRequest time.Time

	err := s.db.QueryRowxContext(ctx, query, identifier, identifierType, time.Now().Add(-window)).Scan(&count, &lastRequest)
	if err != nil {
		return 0, time.Time{}, err
	}

	return count, lastRequest, nil
}

// RecordOTPRequest records an OTP request for rate limiting
func (s *RateLimitService) RecordOTPRequest(ctx context.Context, phone, ip string) error {
	if phone != "" {
		if err := s.recordRequest(ctx, phone, "phone"); err != nil {
			return fmt.Errorf("failed to record phone request: %w", err)
		}
	}

	if ip != "" {
		if err := s.recordRequest(ctx, ip, "ip"); err != nil {
			return fmt.Errorf("failed to record IP request: %w", err)
		}
	}

	return nil
}

func (s *RateLimitService) recordRequest(ctx context.Context, identifier, identifierType string) error {
	query := `
		INSERT INTO otp_rate_limits (identifier, identifier_type, created_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.ExecContext(ctx, query, identifier, identifierType)
	return err
}

// CleanupExpiredRateLimits removes records older than the longest window
func (s *RateLimitService) CleanupExpiredRateLimits(ctx context.Context) (int64, error) {
	maxWindow := s.config.IPWindow
	if s.config.PhoneWindow > maxWindow {
		maxWindow = s.config.PhoneWindow
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM otp_rate_limits WHERE created_at < $1`, time.Now().Add(-maxWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
