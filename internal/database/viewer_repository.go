package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hrita/customer-portal/internal/models"
)

// ViewerRepository handles read-only project access grants
type ViewerRepository struct {
	db Querier
}

// NewViewerRepository creates a new viewer repository
func NewViewerRepository(db Querier) *ViewerRepository {
	return &ViewerRepository{db: db}
}

// Add grants a viewer access to a client's project. Adding twice is a no-op.
func (r *ViewerRepository) Add(ctx context.Context, clientPhone, viewerPhone string) error {
	query := `
		INSERT INTO project_viewers (client_phone, viewer_phone, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_phone, viewer_phone) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, clientPhone, viewerPhone, time.Now()); err != nil {
		return fmt.Errorf("failed to add viewer: %w", err)
	}

	return nil
}

// ListByClient returns the viewers of a client's project
func (r *ViewerRepository) ListByClient(ctx context.Context, clientPhone string) ([]models.ProjectViewer, error) {
	viewers := []models.ProjectViewer{}
	query := `
		SELECT pv.client_phone, pv.viewer_phone, u.name AS viewer_name, pv.created_at
		FROM project_viewers pv
		JOIN users u ON u.phone = pv.viewer_phone
		WHERE pv.client_phone = $1
		ORDER BY pv.created_at
	`

	if err := r.db.SelectContext(ctx, &viewers, query, clientPhone); err != nil {
		return nil, fmt.Errorf("failed to list viewers: %w", err)
	}

	return viewers, nil
}

// ClientsForViewer returns the phones of the projects a viewer may see
func (r *ViewerRepository) ClientsForViewer(ctx context.Context, viewerPhone string) ([]string, error) {
	phones := []string{}
	query := `SELECT client_phone FROM project_viewers WHERE viewer_phone = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &phones, query, viewerPhone); err != nil {
		return nil, fmt.Errorf("failed to list viewer projects: %w", err)
	}

	return phones, nil
}

// CanView reports whether a viewer has been granted access to a client's project
func (r *ViewerRepository) CanView(ctx context.Context, clientPhone, viewerPhone string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM project_viewers WHERE client_phone = $1 AND viewer_phone = $2)`

	if err := r.db.QueryRowxContext(ctx, query, clientPhone, viewerPhone).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check viewer access: %w", err)
	}

	return exists, nil
}
