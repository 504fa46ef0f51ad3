package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create создаёт спор. Частичный unique-индекс по milestone_id для
// статуса open гарантирует не более одного открытого спора на веху.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (contract_id, milestone_id, raised_by, reason, description, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		d.ContractID, d.MilestoneID, d.RaisedBy, d.Reason, d.Description, d.Status,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

// GetOpenByMilestone возвращает открытый спор по вехе, если он есть.
func (r *DisputeRepository) GetOpenByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE milestone_id = $1 AND status = $2
	`, milestoneID, models.DisputeStatusOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: get open by milestone %w", err)
	}
	return &d, nil
}

// Resolve закрывает спор условным обновлением open → resolved.
// Повторное закрытие проигрывает условие и возвращает ErrConflict.
func (r *DisputeRepository) Resolve(ctx context.Context, id uuid.UUID, resolution, notes string, resolvedBy uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolution_notes = $4, resolved_by = $5, resolved_at = NOW()
		WHERE id = $1 AND status = $6
		RETURNING *
	`, id, models.DisputeStatusResolved, resolution, notes, resolvedBy, models.DisputeStatusOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("dispute repository: resolve %w", err)
	}
	return &d, nil
}

// MarkOutcomeApplied фиксирует, что денежный исход решения дошёл до
// вехи. Остаётся FALSE, если веху погасила параллельная операция.
func (r *DisputeRepository) MarkOutcomeApplied(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET outcome_applied = TRUE WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("dispute repository: mark outcome applied %w", err)
	}
	return nil
}

// ListByUser возвращает споры по контрактам, где пользователь сторона.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN contracts c ON d.contract_id = c.id
		WHERE c.employer_id = $1 OR c.contractor_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return disputes, nil
}

// ListOpen возвращает открытые споры для арбитража.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, models.DisputeStatusOpen, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open %w", err)
	}
	return disputes, nil
}
