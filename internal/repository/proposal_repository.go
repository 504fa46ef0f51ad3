package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type ProposalRepository struct {
	db *sqlx.DB
}

func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create создаёт предложение исполнителя. Частичный unique-индекс
// запрещает второе активное предложение на ту же вакансию.
func (r *ProposalRepository) Create(ctx context.Context, p *models.Proposal) error {
	query := `
		INSERT INTO proposals (job_id, employer_id, contractor_id, rate, currency, cover_letter, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.JobID, p.EmployerID, p.ContractorID, p.Rate, p.Currency, p.CoverLetter, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("proposal repository: create %w", err)
	}
	return nil
}

// GetByID возвращает предложение по идентификатору.
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return common.GetByID[models.Proposal](ctx, r.db, "proposals", id, ErrProposalNotFound)
}

// UpdateStatus переводит предложение в новый статус условным обновлением.
// Ожидаемые статусы перечисляются явно, чтобы параллельное изменение
// не затёрло уже принятое решение. Перевод в accepted при уже принятом
// предложении по той же вакансии упирается в частичный unique-индекс
// и возвращает ErrAlreadyExists.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected []string, next string) error {
	query := `
		UPDATE proposals SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`
	result, err := r.db.ExecContext(ctx, query, id, next, pqStringArray(expected))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("proposal repository: update status %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("proposal repository: update status rows affected %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// ListByJob возвращает предложения по вакансии.
func (r *ProposalRepository) ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM proposals WHERE job_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: list by job %w", err)
	}
	return proposals, nil
}

// ListByContractor возвращает предложения исполнителя.
func (r *ProposalRepository) ListByContractor(ctx context.Context, contractorID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM proposals WHERE contractor_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, contractorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: list by contractor %w", err)
	}
	return proposals, nil
}
