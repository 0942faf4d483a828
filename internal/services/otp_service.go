package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrOTPExpired indicates the OTP has expired
	ErrOTPExpired = errors.New("OTP has expired")

	// ErrOTPInvalid indicates the OTP is incorrect
	ErrOTPInvalid = errors.New("invalid OTP code")

	// ErrMaxAttemptsExceeded indicates too many failed validation attempts
	ErrMaxAttemptsExceeded = errors.New("maximum OTP validation attempts exceeded")

	// ErrNoOTPFound indicates no OTP exists for the phone number
	ErrNoOTPFound = errors.New("no OTP found for this phone number")
)

// OTPService handles OTP generation and validation.
// Codes are stored as bcrypt hashes.
type OTPService struct {
	db          database.DB
	length      int
	expiry      time.Duration
	maxAttempts int
	bcryptCost  int
}

// NewOTPService creates a new OTP service
func NewOTPService(db database.DB, cfg config.OTPConfig, bcryptCost int) *OTPService {
	return &OTPService{
		db:          db,
		length:      cfg.Length,
		expiry:      time.Duration(cfg.ExpiryMinutes) * time.Minute,
		maxAttempts: cfg.MaxAttempts,
		bcryptCost:  bcryptCost,
	}
}

// Expiry returns how long a generated code stays valid
func (s *OTPService) Expiry() time.Duration {
	return s.expiry
}

// GenerateOTP generates a new OTP for the given phone number.
// Any outstanding code for the phone is invalidated first.
func (s *OTPService) GenerateOTP(ctx context.Context, phone, ipAddress, userAgent string) (string, error) {
	if err := s.InvalidateOTP(ctx, phone); err != nil {
		return "", fmt.Errorf("failed to invalidate existing OTP: %w", err)
	}

	otp, err := generateRandomOTP(s.length)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(otp), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash OTP: %w", err)
	}

	query := `
		INSERT INTO otp_verifications (phone, otp_hash, expires_at, attempts, max_attempts, ip_address, user_agent)
		VALUES ($1, $2, $3, 0, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		phone,
		string(hash),
		time.Now().Add(s.expiry),
		s.maxAttempts,
		models.NewNullString(ipAddress),
		models.NewNullString(userAgent),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store OTP: %w", err)
	}

	return otp, nil
}

// ValidateOTP validates an OTP for the given phone number.
// A successful validation consumes the code.
func (s *OTPService) ValidateOTP(ctx context.Context, phone, otp string) (bool, error) {
	otpRecord, err := s.getOTPRecord(ctx, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNoOTPFound
		}
		return false, fmt.Errorf("failed to get OTP record: %w", err)
	}

	if time.Now().After(otpRecord.ExpiresAt) {
		return false, ErrOTPExpired
	}

	if otpRecord.Attempts >= otpRecord.MaxAttempts {
		return false, ErrMaxAttemptsExceeded
	}

	if err := s.incrementAttempts(ctx, otpRecord.ID); err != nil {
		return false, err
	}

	if bcrypt.CompareHashAndPassword([]byte(otpRecord.OTPHash), []byte(otp)) != nil {
		return false, ErrOTPInvalid
	}

	if err := s.markAsVerified(ctx, otpRecord.ID); err != nil {
		return false, err
	}

	return true, nil
}

// InvalidateOTP invalidates any existing OTPs for the given phone number
func (s *OTPService) InvalidateOTP(ctx context.Context, phone string) error {
	query := `
		UPDATE otp_verifications
		SET verified = true
		WHERE phone = $1 AND verified = false
	`

	if _, err := s.db.ExecContext(ctx, query, phone); err != nil {
		return fmt.Errorf("failed to invalidate OTP: %w", err)
	}

	return nil
}

// GetRemainingAttempts returns the number of remaining validation attempts
func (s *OTPService) GetRemainingAttempts(ctx context.Context, phone string) (int, error) {
	otpRecord, err := s.getOTPRecord(ctx, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoOTPFound
		}
		return 0, fmt.Errorf("failed to get OTP record: %w", err)
	}

	remaining := otpRecord.MaxAttempts - otpRecord.Attempts
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

// CleanupExpiredOTPs removes all expired OTP records from the database
func (s *OTPService) CleanupExpiredOTPs(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM otp_verifications WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired OTPs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// getOTPRecord retrieves the newest unconsumed OTP record for the given phone number
func (s *OTPService) getOTPRecord(ctx context.Context, phone string) (*models.OTPVerification, error) {
	query := `
		SELECT id, phone, otp_hash, created_at, expires_at, verified, verified_at,
		       attempts, max_attempts, ip_address, user_agent
		FROM otp_verifications
		WHERE phone = $1 AND verified = false
		ORDER BY created_at DESC
		LIMIT 1
	`

	var otp models.OTPVerification
	if err := s.db.GetContext(ctx, &otp, query, phone); err != nil {
		return nil, err
	}

	return &otp, nil
}

func (s *OTPService) incrementAttempts(ctx context.Context, id int64) error {
	query := `UPDATE otp_verifications SET attempts = attempts + 1 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}

	return nil
}

func (s *OTPService) markAsVerified(ctx context.Context, id int64) error {
	query := `UPDATE otp_verifications SET verified = true, verified_at = $1 WHERE id = $2`

	if _, err := s.db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark OTP as verified: %w", err)
	}

	return nil
}

// generateRandomOTP generates a cryptographically secure numeric code of the given length
func generateRandomOTP(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}
