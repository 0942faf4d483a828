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

const opportunityColumns = `id, client_phone, phase, phase_status, requirements, budget, site_visit_at, created_at, updated_at`

// ErrPhaseConflict is returned when the stored phase state changed underneath an update
var ErrPhaseConflict = errors.New("opportunity phase changed concurrently")

// OpportunityRepository handles opportunity database operations
type OpportunityRepository struct {
	db Querier
}

// NewOpportunityRepository creates a new opportunity repository
func NewOpportunityRepository(db Querier) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

// Create inserts the opportunity of a new client at the initial phase state
func (r *OpportunityRepository) Create(ctx context.Context, phone string, requirements string) (*models.Opportunity, error) {
	now := time.Now()
	state := workflow.InitialPhaseState()
	o := &models.Opportunity{
		ID:           uuid.New(),
		ClientPhone:  phone,
		Phase:        state.Phase,
		PhaseStatus:  state.Status,
		Requirements: models.NewNullString(requirements),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO opportunities (id, client_phone, phase, phase_status, requirements, budget, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		o.ID, o.ClientPhone, o.Phase, o.PhaseStatus, o.Requirements, o.Budget, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create opportunity: %w", err)
	}

	return o, nil
}

// GetByClient retrieves the opportunity of a client
func (r *OpportunityRepository) GetByClient(ctx context.Context, phone string) (*models.Opportunity, error) {
	var o models.Opportunity
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE client_phone = $1`

	if err := r.db.GetContext(ctx, &o, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}

	return &o, nil
}

// UpdateState moves the opportunity from one phase state to another.
// The update only applies while the stored state still equals from.
func (r *OpportunityRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to workflow.PhaseState) error {
	query := `
		UPDATE opportunities
		SET phase = $1, phase_status = $2, updated_at = $3
		WHERE id = $4 AND phase = $5 AND phase_status = $6
	`

	result, err := r.db.ExecContext(ctx, query, to.Phase, to.Status, time.Now(), id, from.Phase, from.Status)
	if err != nil {
		return fmt.Errorf("failed to update opportunity state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPhaseConflict
	}

	return nil
}

// SetRequest stores the client's estimate request
func (r *OpportunityRepository) SetRequest(ctx context.Context, id uuid.UUID, requirements string, budget float64) error {
	query := `
		UPDATE opportunities
		SET requirements = $1, budget = $2, updated_at = $3
		WHERE id = $4
	`

	if _, err := r.db.ExecContext(ctx, query, requirements, budget, time.Now(), id); err != nil {
		return fmt.Errorf("failed to store estimate request: %w", err)
	}

	return nil
}

// SetSiteVisit stores the scheduled site visit time
func (r *OpportunityRepository) SetSiteVisit(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE opportunities SET site_visit_at = $1, updated_at = $2 WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, at, time.Now(), id); err != nil {
		return fmt.Errorf("failed to schedule site visit: %w", err)
	}

	return nil
}
