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

type ContractRepository struct {
	db *sqlx.DB
}

func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create создаёт контракт вместе с вехами в одной транзакции.
// Unique-индекс на proposal_id гарантирует не более одного контракта
// на предложение.
func (r *ContractRepository) Create(ctx context.Context, c *models.Contract, milestones []models.Milestone) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("contract repository: begin tx %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO contracts (
			proposal_id, employer_id, contractor_id, title, total_amount, currency,
			payment_type, status, employer_signed, contractor_signed,
			auto_release, auto_release_days, starts_at, ends_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowxContext(ctx, query,
		c.ProposalID, c.EmployerID, c.ContractorID, c.Title, c.TotalAmount, c.Currency,
		c.PaymentType, c.Status, c.EmployerSigned, c.ContractorSigned,
		c.AutoRelease, c.AutoReleaseDays, c.StartsAt, c.EndsAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("contract repository: create %w", err)
	}

	for i := range milestones {
		m := &milestones[i]
		m.ContractID = c.ID
		if err := insertMilestone(ctx, tx, m); err != nil {
			return err
		}
	}
	c.Milestones = milestones

	return tx.Commit()
}

func insertMilestone(ctx context.Context, tx *sqlx.Tx, m *models.Milestone) error {
	query := `
		INSERT INTO milestones (contract_id, order_index, title, amount, due_at, status, escrow_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		m.ContractID, m.OrderIndex, m.Title, m.Amount, m.DueAt, m.Status, m.EscrowStatus,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("contract repository: insert milestone %w", err)
	}
	return nil
}

// GetByID возвращает контракт вместе с вехами.
func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	contract, err := common.GetByID[models.Contract](ctx, r.db, "contracts", id, ErrContractNotFound)
	if err != nil {
		return nil, err
	}

	err = r.db.SelectContext(ctx, &contract.Milestones, `
		SELECT * FROM milestones WHERE contract_id = $1 ORDER BY order_index ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("contract repository: load milestones %w", err)
	}
	return contract, nil
}

// ListByUser возвращает контракты, где пользователь является стороной.
func (r *ContractRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error) {
	var contracts []models.Contract
	err := r.db.SelectContext(ctx, &contracts, `
		SELECT * FROM contracts
		WHERE employer_id = $1 OR contractor_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("contract repository: list by user %w", err)
	}
	return contracts, nil
}

// MarkSigned переводит контракт draft → active подписью исполнителя.
// Повторный вызов проигрывает условие и возвращает ErrConflict.
func (r *ContractRepository) MarkSigned(ctx context.Context, id uuid.UUID) error {
	return r.conditionalExec(ctx, `
		UPDATE contracts
		SET status = $2, contractor_signed = TRUE, activated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3 AND contractor_signed = FALSE
	`, id, models.ContractStatusActive, models.ContractStatusDraft)
}

// MarkCompleted переводит контракт active → completed.
func (r *ContractRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.conditionalExec(ctx, `
		UPDATE contracts
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.ContractStatusCompleted, models.ContractStatusActive)
}

// MarkCancelled переводит контракт draft/active → cancelled с причиной.
func (r *ContractRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	return r.conditionalExec(ctx, `
		UPDATE contracts
		SET status = $2, cancel_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, models.ContractStatusCancelled, reason,
		pqStringArray([]string{models.ContractStatusDraft, models.ContractStatusActive}))
}

// MarkDisputed помечает активный контракт как спорный.
func (r *ContractRepository) MarkDisputed(ctx context.Context, id uuid.UUID) error {
	return r.conditionalExec(ctx, `
		UPDATE contracts SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.ContractStatusDisputed, models.ContractStatusActive)
}

// RestoreActive возвращает контракт из disputed в active после
// арбитража. Переход проходит только когда по контракту не осталось
// других открытых споров.
func (r *ContractRepository) RestoreActive(ctx context.Context, id uuid.UUID) error {
	return r.conditionalExec(ctx, `
		UPDATE contracts SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.contract_id = contracts.id AND d.status = $4
		  )
	`, id, models.ContractStatusActive, models.ContractStatusDisputed, models.DisputeStatusOpen)
}

// SetAutoReleasePolicy обновляет политику авто-выплаты контракта.
func (r *ContractRepository) SetAutoReleasePolicy(ctx context.Context, id uuid.UUID, enabled bool, days int) error {
	return r.conditionalExec(ctx, `
		UPDATE contracts SET auto_release = $2, auto_release_days = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, enabled, days,
		pqStringArray([]string{models.ContractStatusDraft, models.ContractStatusActive}))
}

// AddMilestone добавляет веху в конец списка вех контракта.
// Вставка проходит только пока контракт в draft/active и суммарный
// объём вех не превышает сумму контракта (жёсткий потолок).
func (r *ContractRepository) AddMilestone(ctx context.Context, m *models.Milestone) error {
	query := `
		INSERT INTO milestones (contract_id, order_index, title, amount, due_at, status, escrow_status)
		SELECT c.id,
		       COALESCE((SELECT MAX(order_index) FROM milestones WHERE contract_id = c.id), 0) + 1,
		       $2, $3, $4, $5, $6
		FROM contracts c
		WHERE c.id = $1
		  AND c.status = ANY($7)
		  AND COALESCE((SELECT SUM(amount) FROM milestones WHERE contract_id = c.id), 0) + $3 <= c.total_amount
		RETURNING id, order_index, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		m.ContractID, m.Title, m.Amount, m.DueAt, m.Status, m.EscrowStatus,
		pqStringArray([]string{models.ContractStatusDraft, models.ContractStatusActive}),
	).Scan(&m.ID, &m.OrderIndex, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("contract repository: add milestone %w", err)
	}
	return nil
}

// GetMilestone возвращает веху по идентификатору.
func (r *ContractRepository) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, ErrMilestoneNotFound)
}

// SubmitMilestone фиксирует сдачу работы исполнителем.
// Переход разрешён из pending/in_progress/revision_requested и
// запрещён при открытом споре.
func (r *ContractRepository) SubmitMilestone(ctx context.Context, id uuid.UUID, summary, deliverables string, hours *int) error {
	return r.conditionalExec(ctx, `
		UPDATE milestones
		SET status = $2, work_summary = $3, deliverables = $4, hours_spent = $5,
		    submitted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = ANY($6)
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.milestone_id = milestones.id AND d.status = $7
		  )
	`, id, models.MilestoneStatusSubmitted, summary, deliverables, hours,
		pqStringArray([]string{
			models.MilestoneStatusPending,
			models.MilestoneStatusInProgress,
			models.MilestoneStatusRevisionRequested,
		}),
		models.DisputeStatusOpen)
}

// ApproveMilestone фиксирует приёмку работы работодателем.
func (r *ContractRepository) ApproveMilestone(ctx context.Context, id uuid.UUID) error {
	return r.conditionalExec(ctx, `
		UPDATE milestones
		SET status = $2, approved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.milestone_id = milestones.id AND d.status = $4
		  )
	`, id, models.MilestoneStatusApproved, models.MilestoneStatusSubmitted, models.DisputeStatusOpen)
}

// RequestRevision возвращает веху в работу с обязательным комментарием.
func (r *ContractRepository) RequestRevision(ctx context.Context, id uuid.UUID, feedback string) error {
	return r.conditionalExec(ctx, `
		UPDATE milestones
		SET status = $2, feedback = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.milestone_id = milestones.id AND d.status = $5
		  )
	`, id, models.MilestoneStatusRevisionRequested, feedback, models.MilestoneStatusSubmitted, models.DisputeStatusOpen)
}

// ListAutoReleaseCandidates возвращает вехи, готовые к авто-выплате:
// сданы, профинансированы, без открытого спора, контракт ещё живой,
// и срок ожидания по политике контракта истёк.
func (r *ContractRepository) ListAutoReleaseCandidates(ctx context.Context, limit int) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT m.* FROM milestones m
		JOIN contracts c ON c.id = m.contract_id
		WHERE m.status = $1
		  AND m.escrow_status = $2
		  AND c.auto_release = TRUE
		  AND c.status = ANY($5)
		  AND m.submitted_at IS NOT NULL
		  AND m.submitted_at <= NOW() - (c.auto_release_days || ' days')::interval
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.milestone_id = m.id AND d.status = $3
		  )
		ORDER BY m.submitted_at ASC
		LIMIT $4
	`, models.MilestoneStatusSubmitted, models.MilestoneEscrowFunded, models.DisputeStatusOpen, limit,
		pqStringArray([]string{models.ContractStatusActive, models.ContractStatusDisputed}))
	if err != nil {
		return nil, fmt.Errorf("contract repository: list auto release candidates %w", err)
	}
	return milestones, nil
}

// conditionalExec выполняет условное обновление и возвращает ErrConflict,
// если ни одна строка не подошла под ожидаемое состояние.
func (r *ContractRepository) conditionalExec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("contract repository: conditional update %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("contract repository: rows affected %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}
