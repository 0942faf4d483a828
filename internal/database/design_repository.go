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

const designColumns = `id, client_phone, title, file_urls, notes, status, version, review_note, created_at, updated_at`

// DesignRepository handles design database operations
type DesignRepository struct {
	db Querier
}

// NewDesignRepository creates a new design repository
func NewDesignRepository(db Querier) *DesignRepository {
	return &DesignRepository{db: db}
}

// Create inserts a design with the next version number for the client
func (r *DesignRepository) Create(ctx context.Context, d *models.Design) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	query := `
		INSERT INTO designs (id, client_phone, title, file_urls, notes, status, version, created_at, updated_at)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM designs WHERE client_phone = $2),
			$7, $8
		)
		RETURNING version
	`

	err := r.db.QueryRowxContext(ctx, query,
		d.ID, d.ClientPhone, d.Title, d.FileURLs, d.Notes, d.Status, d.CreatedAt, d.UpdatedAt,
	).Scan(&d.Version)
	if err != nil {
		return fmt.Errorf("failed to create design: %w", err)
	}

	return nil
}

// GetByID retrieves a design
func (r *DesignRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Design, error) {
	var d models.Design
	query := `SELECT ` + designColumns + ` FROM designs WHERE id = $1`

	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get design: %w", err)
	}

	return &d, nil
}

// ListByClient returns all designs of a client, newest first
func (r *DesignRepository) ListByClient(ctx context.Context, phone string) ([]models.Design, error) {
	designs := []models.Design{}
	query := `SELECT ` + designColumns + ` FROM designs WHERE client_phone = $1 ORDER BY version DESC`

	if err := r.db.SelectContext(ctx, &designs, query, phone); err != nil {
		return nil, fmt.Errorf("failed to list designs: %w", err)
	}

	return designs, nil
}

// SetStatus records a review outcome
func (r *DesignRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.DesignStatus, note string) error {
	query := `
		UPDATE designs
		SET status = $1, review_note = NULLIF($2, ''), updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, status, note, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set design status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("design not found")
	}

	return nil
}

// SupersedeOpen marks every shared or changes-requested design of a client as superseded
func (r *DesignRepository) SupersedeOpen(ctx context.Context, phone string) error {
	query := `
		UPDATE designs
		SET status = $1, updated_at = $2
		WHERE client_phone = $3 AND status IN ($4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		models.DesignSuperseded, time.Now(), phone, models.DesignShared, models.DesignChangesRequested)
	if err != nil {
		return fmt.Errorf("failed to supersede designs: %w", err)
	}

	return nil
}
