package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
)

var (
	// ErrDuplicatePhone is returned when a user with the phone already exists
	ErrDuplicatePhone = errors.New("a user with this phone number already exists")

	// ErrStageConflict is returned when the stored stage changed underneath an update
	ErrStageConflict = errors.New("client stage changed concurrently")
)

const userColumns = `id, phone, name, email, city, role, stage, status, last_login_at, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// CreateUser inserts a user. Clients start at the first stage.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Stage == "" {
		user.Stage = workflow.FirstStage()
	}
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, phone, name, email, city, role, stage, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Phone,
		user.Name,
		user.Email,
		user.City,
		user.Role,
		user.Stage,
		user.Status,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByPhone retrieves a user by phone number
func (r *UserRepository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`

	err := r.db.GetContext(ctx, &user, query, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}

	return &user, nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return &user, nil
}

// ListClients returns clients ordered by most recent activity
func (r *UserRepository) ListClients(ctx context.Context, limit int) ([]models.ClientSummary, error) {
	clients := []models.ClientSummary{}
	query := `
		SELECT phone, name, city, stage, updated_at
		FROM users
		WHERE role = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT $3
	`

	if err := r.db.SelectContext(ctx, &clients, query, workflow.RoleClient, models.UserStatusActive, limit); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	return clients, nil
}

// UpdateStage moves a client from one stage to another.
// The update only applies while the stored stage still equals from.
func (r *UserRepository) UpdateStage(ctx context.Context, phone string, from, to workflow.Stage) error {
	query := `
		UPDATE users
		SET stage = $1, updated_at = $2
		WHERE phone = $3 AND stage = $4
	`

	result, err := r.db.ExecContext(ctx, query, to, time.Now(), phone, from)
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStageConflict
	}

	return nil
}

// Touch bumps updated_at so the client moves up the admin list
func (r *UserRepository) Touch(ctx context.Context, phone string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET updated_at = $1 WHERE phone = $2`, time.Now(), phone)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last login timestamp
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`

	_, err := r.db.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// UpdateProfile updates the editable profile fields
func (r *UserRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, name, email, city string) error {
	query := `
		UPDATE users
		SET name = COALESCE(NULLIF($1, ''), name),
		    email = COALESCE(NULLIF($2, ''), email),
		    city = COALESCE(NULLIF($3, ''), city),
		    updated_at = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query, name, email, city, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// PhoneExists checks if a phone number is already registered
func (r *UserRepository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE phone = $1)`

	if err := r.db.QueryRowxContext(ctx, query, phone).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check phone existence: %w", err)
	}

	return exists, nil
}
