package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/models"
)

const estimateColumns = `id, client_phone, title, amount, currency, line_items, file_url, notes,
	status, version, review_note, created_by, created_at, updated_at`

// EstimateRepository handles estimate database operations
type EstimateRepository struct {
	db Querier
}

// NewEstimateRepository creates a new estimate repository
func NewEstimateRepository(db Querier) *EstimateRepository {
	return &EstimateRepository{db: db}
}

// Create inserts an estimate with the next version number for the client
func (r *EstimateRepository) Create(ctx context.Context, e *models.Estimate) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
		INSERT INTO estimates (
			id, client_phone, title, amount, currency, line_items, file_url, notes,
			status, version, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM estimates WHERE client_phone = $2),
			$10, $11, $12
		)
		RETURNING version
	`

	err := r.db.QueryRowxContext(ctx, query,
		e.ID,
		e.ClientPhone,
		e.Title,
		e.Amount,
		e.Currency,
		e.Items,
		e.FileURL,
		e.Notes,
		e.Status,
		e.CreatedBy,
		e.CreatedAt,
		e.UpdatedAt,
	).Scan(&e.Version)
	if err != nil {
		return fmt.Errorf("failed to create estimate: %w", err)
	}

	return nil
}

// GetByID retrieves an estimate
func (r *EstimateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Estimate, error) {
	var e models.Estimate
	query := `SELECT ` + estimateColumns + ` FROM estimates WHERE id = $1`

	if err := r.db.GetContext(ctx, &e, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get estimate: %w", err)
	}

	return &e, nil
}

// ListByClient returns all estimates of a client, newest first
func (r *EstimateRepository) ListByClient(ctx context.Context, phone string) ([]models.Estimate, error) {
	estimates := []models.Estimate{}
	query := `SELECT ` + estimateColumns + ` FROM estimates WHERE client_phone = $1 ORDER BY version DESC`

	if err := r.db.SelectContext(ctx, &estimates, query, phone); err != nil {
		return nil, fmt.Errorf("failed to list estimates: %w", err)
	}

	return estimates, nil
}

// LatestDraft returns the newest draft estimate of a client
func (r *EstimateRepository) LatestDraft(ctx context.Context, phone string) (*models.Estimate, error) {
	var e models.Estimate
	query := `
		SELECT ` + estimateColumns + `
		FROM estimates
		WHERE client_phone = $1 AND status = $2
		ORDER BY version DESC
		LIMIT 1
	`

	if err := r.db.GetContext(ctx, &e, query, phone, models.EstimateDraft); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get draft estimate: %w", err)
	}

	return &e, nil
}

// Update rewrites the editable fields of an estimate
func (r *EstimateRepository) Update(ctx context.Context, e *models.Estimate) error {
	e.UpdatedAt = time.Now()
	query := `
		UPDATE estimates
		SET title = $1, amount = $2, currency = $3, line_items = $4, file_url = $5,
		    notes = $6, status = $7, updated_at = $8
		WHERE id = $9
	`

	_, err := r.db.ExecContext(ctx, query,
		e.Title, e.Amount, e.Currency, e.Items, e.FileURL, e.Notes, e.Status, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update estimate: %w", err)
	}

	return nil
}

// SetStatus records a status change and an optional review note
func (r *EstimateRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.EstimateStatus, note string) error {
	query := `
		UPDATE estimates
		SET status = $1, review_note = NULLIF($2, ''), updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, status, note, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set estimate status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("estimate not found")
	}

	return nil
}

// SupersedeOpen marks every shared or changes-requested estimate of a client as superseded
func (r *EstimateRepository) SupersedeOpen(ctx context.Context, phone string) error {
	query := `
		UPDATE estimates
		SET status = $1, updated_at = $2
		WHERE client_phone = $3 AND status IN ($4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		models.EstimateSuperseded, time.Now(), phone, models.EstimateShared, models.EstimateChangesRequested)
	if err != nil {
		return fmt.Errorf("failed to supersede estimates: %w", err)
	}

	return nil
}
