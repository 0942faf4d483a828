package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/models"
)

// ErrTokenNotRevocable is returned when a token is unknown or was already revoked
var ErrTokenNotRevocable = errors.New("token not found or already revoked")

// RefreshTokenRepository handles refresh token database operations
type RefreshTokenRepository struct {
	db Querier
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db Querier) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		db: db,
	}
}

// hashToken creates a SHA-256 hash of the token for storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// StoreRefreshToken stores a refresh token in the database
func (r *RefreshTokenRepository) StoreRefreshToken(
	ctx context.Context,
	userID uuid.UUID,
	token string,
	deviceType, ipAddress, userAgent string,
	expiresAt time.Time,
) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, device_type, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		userID,
		hashToken(token),
		models.NewNullString(deviceType),
		models.NewNullString(ipAddress),
		models.NewNullString(userAgent),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a refresh token by its hash
func (r *RefreshTokenRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken

	query := `
		SELECT id, user_id, token_hash, device_type,
		       ip_address, user_agent, created_at, expires_at,
		       last_used_at, revoked, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	err := r.db.GetContext(ctx, &refreshToken, query, hashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Token not found
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &refreshToken, nil
}

// IsTokenUsable reports whether a stored token exists, is not revoked and has not expired
func (r *RefreshTokenRepository) IsTokenUsable(ctx context.Context, token string) (bool, error) {
	refreshToken, err := r.GetRefreshToken(ctx, token)
	if err != nil {
		return false, err
	}

	if refreshToken == nil {
		return false, nil
	}

	return !refreshToken.Revoked && refreshToken.ExpiresAt.After(time.Now()), nil
}

// RevokeToken revokes a specific refresh token
func (r *RefreshTokenRepository) RevokeToken(ctx context.Context, token string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE,
		    revoked_at = $1
		WHERE token_hash = $2 AND revoked = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, time.Now(), hashToken(token))
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrTokenNotRevocable
	}

	return nil
}

// RevokeAllUserTokens revokes all refresh tokens for a user
func (r *RefreshTokenRepository) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE,
		    revoked_at = $1
		WHERE user_id = $2 AND revoked = FALSE
	`

	if _, err := r.db.ExecContext(ctx, query, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to revoke all user tokens: %w", err)
	}

	return nil
}

// UpdateLastUsed updates the last_used_at timestamp for a token
func (r *RefreshTokenRepository) UpdateLastUsed(ctx context.Context, token string) error {
	query := `
		UPDATE refresh_tokens
		SET last_used_at = $1
		WHERE token_hash = $2
	`

	if _, err := r.db.ExecContext(ctx, query, time.Now(), hashToken(token)); err != nil {
		return fmt.Errorf("failed to update last used timestamp: %w", err)
	}

	return nil
}

// CleanupExpiredTokens removes expired refresh tokens and revoked tokens older than a day
func (r *RefreshTokenRepository) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR (revoked = TRUE AND revoked_at < $2)
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, now, now.Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
