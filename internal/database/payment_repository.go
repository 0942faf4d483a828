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

const paymentColumns = `id, client_phone, kind, amount, reference, status, note, created_at, verified_at`

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db Querier
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db Querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records a client-reported payment awaiting verification
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.PaymentPendingVerification
	p.CreatedAt = time.Now()

	query := `
		INSERT INTO payments (id, client_phone, kind, amount, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query, p.ID, p.ClientPhone, p.Kind, p.Amount, p.Reference, p.Status, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment reference %q was already submitted", p.Reference)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &p, nil
}

// ListByClient returns all payments of a client, newest first
func (r *PaymentRepository) ListByClient(ctx context.Context, phone string) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE client_phone = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &payments, query, phone); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}

// Resolve marks a pending payment verified or rejected
func (r *PaymentRepository) Resolve(ctx context.Context, id uuid.UUID, status models.PaymentStatus, note string) error {
	query := `
		UPDATE payments
		SET status = $1, note = NULLIF($2, ''), verified_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query, status, note, time.Now(), id, models.PaymentPendingVerification)
	if err != nil {
		return fmt.Errorf("failed to resolve payment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment not found or already resolved")
	}

	return nil
}
