package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

// EscrowRepository отвечает за журнал escrow-транзакций и за денежные
// переходы вехи. Все операции с деньгами выполняются одним условным
// обновлением внутри транзакции БД: параллельные release и refund по
// одной вехе не могут выиграть оба.
type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// CreatePendingFund записывает ожидающую транзакцию пополнения, ключом
// служит идентификатор checkout-сессии шлюза.
func (r *EscrowRepository) CreatePendingFund(ctx context.Context, t *models.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions
			(contract_id, milestone_id, type, status, amount, currency, from_user_id, to_user_id, session_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		t.ContractID, t.MilestoneID, t.Type, t.Status, t.Amount, t.Currency,
		t.FromUserID, t.ToUserID, t.SessionID, t.Description,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("escrow repository: create pending fund %w", err)
	}
	return nil
}

// GetBySessionID возвращает транзакцию пополнения по сессии шлюза.
func (r *EscrowRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.EscrowTransaction, error) {
	var t models.EscrowTransaction
	err := r.db.GetContext(ctx, &t, `SELECT * FROM escrow_transactions WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("escrow repository: get by session id %w", err)
	}
	return &t, nil
}

// ConfirmFund применяет успешный исход checkout-сессии к состоянию
// контракта. Идемпотентна по сессии: если транзакция уже в терминальном
// статусе, возвращает applied = false без побочных эффектов.
//
// При подтверждении атомарно: транзакция pending → paid, приращение
// contract.escrow_funded (с охраной escrow_funded ≤ total_amount) и,
// для вехи, escrow_status unfunded → funded. Если веха уже
// профинансирована параллельным пополнением, транзакция помечается
// failed и возвращается ErrConflict.
func (r *EscrowRepository) ConfirmFund(ctx context.Context, sessionID string) (*models.EscrowTransaction, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("escrow repository: begin tx %w", err)
	}
	defer tx.Rollback()

	var t models.EscrowTransaction
	err = tx.GetContext(ctx, &t, `SELECT * FROM escrow_transactions WHERE session_id = $1 FOR UPDATE`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrTransactionNotFound
		}
		return nil, false, fmt.Errorf("escrow repository: lock transaction %w", err)
	}

	// Повторный сигнал по уже завершённой сессии — no-op.
	if t.IsTerminal() {
		return &t, false, nil
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE contracts
		SET escrow_funded = escrow_funded + $2, updated_at = NOW()
		WHERE id = $1 AND escrow_funded + $2 <= total_amount AND status = ANY($3)
	`, t.ContractID, t.Amount,
		pqStringArray([]string{models.ContractStatusDraft, models.ContractStatusActive}))
	if err != nil {
		return nil, false, fmt.Errorf("escrow repository: increment escrow_funded %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		tx.Rollback()
		return r.failFund(ctx, sessionID)
	}

	if t.MilestoneID != nil {
		result, err = tx.ExecContext(ctx, `
			UPDATE milestones SET escrow_status = $2, updated_at = NOW()
			WHERE id = $1 AND escrow_status = $3
		`, *t.MilestoneID, models.MilestoneEscrowFunded, models.MilestoneEscrowUnfunded)
		if err != nil {
			return nil, false, fmt.Errorf("escrow repository: fund milestone %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			tx.Rollback()
			return r.failFund(ctx, sessionID)
		}
	}

	err = tx.GetContext(ctx, &t, `
		UPDATE escrow_transactions SET status = $2, completed_at = NOW()
		WHERE session_id = $1 AND status = $3
		RETURNING *
	`, sessionID, models.EscrowTxStatusPaid, models.EscrowTxStatusPending)
	if err != nil {
		return nil, false, fmt.Errorf("escrow repository: mark paid %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("escrow repository: commit confirm %w", err)
	}
	return &t, true, nil
}

// failFund помечает pending-транзакцию как неуспешную: средства пришли,
// но цель уже профинансирована или вышла из допустимого состояния.
func (r *EscrowRepository) failFund(ctx context.Context, sessionID string) (*models.EscrowTransaction, bool, error) {
	var t models.EscrowTransaction
	err := r.db.GetContext(ctx, &t, `
		UPDATE escrow_transactions SET status = $2, completed_at = NOW()
		WHERE session_id = $1 AND status = $3
		RETURNING *
	`, sessionID, models.EscrowTxStatusFailed, models.EscrowTxStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Транзакцию успели завершить параллельно: сущности для
			// возврата нет, исход остаётся конфликтом.
			return nil, false, ErrConflict
		}
		return nil, false, fmt.Errorf("escrow repository: mark failed %w", err)
	}
	return &t, false, ErrConflict
}

// MarkFailed переводит pending-транзакцию в failed по сигналу шлюза.
func (r *EscrowRepository) MarkFailed(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE escrow_transactions SET status = $2, completed_at = NOW()
		WHERE session_id = $1 AND status = $3
	`, sessionID, models.EscrowTxStatusFailed, models.EscrowTxStatusPending)
	if err != nil {
		return fmt.Errorf("escrow repository: mark failed %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Уже терминальна — идемпотентный no-op.
		return nil
	}
	return nil
}

// Release выплачивает средства вехи исполнителю. expectedStatus задаёт
// рабочий статус, из которого разрешён переход: approved для ручной
// выплаты, submitted для авто-выплаты по таймеру.
func (r *EscrowRepository) Release(ctx context.Context, contractID, milestoneID uuid.UUID, expectedStatus string, description string) (*models.EscrowTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: begin tx %w", err)
	}
	defer tx.Rollback()

	var m models.Milestone
	err = tx.GetContext(ctx, &m, `
		UPDATE milestones
		SET status = $3, escrow_status = $4, paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND contract_id = $2
		  AND status = $5 AND escrow_status = $6
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.milestone_id = milestones.id AND d.status = $7
		  )
		RETURNING *
	`, milestoneID, contractID,
		models.MilestoneStatusPaid, models.MilestoneEscrowReleased,
		expectedStatus, models.MilestoneEscrowFunded, models.DisputeStatusOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("escrow repository: release milestone %w", err)
	}

	t, err := r.settle(ctx, tx, &m, m.Amount, models.EscrowTxTypeRelease, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("escrow repository: commit release %w", err)
	}
	return t, nil
}

// Refund возвращает средства вехи работодателю. allowedStatuses
// ограничивает рабочие статусы: до сдачи работы для обычного возврата,
// любой непогашенный — по решению арбитража.
func (r *EscrowRepository) Refund(ctx context.Context, contractID, milestoneID uuid.UUID, allowedStatuses []string, description string) (*models.EscrowTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: begin tx %w", err)
	}
	defer tx.Rollback()

	var m models.Milestone
	err = tx.GetContext(ctx, &m, `
		UPDATE milestones
		SET escrow_status = $3, updated_at = NOW()
		WHERE id = $1 AND contract_id = $2
		  AND status = ANY($4) AND escrow_status = $5
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.milestone_id = milestones.id AND d.status = $6
		  )
		RETURNING *
	`, milestoneID, contractID, models.MilestoneEscrowRefunded,
		pqStringArray(allowedStatuses), models.MilestoneEscrowFunded, models.DisputeStatusOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("escrow repository: refund milestone %w", err)
	}

	var contract models.Contract
	if err := tx.GetContext(ctx, &contract, `SELECT * FROM contracts WHERE id = $1`, contractID); err != nil {
		return nil, fmt.Errorf("escrow repository: load contract %w", err)
	}

	t := &models.EscrowTransaction{
		ContractID:  contractID,
		MilestoneID: &m.ID,
		Type:        models.EscrowTxTypeRefund,
		Status:      models.EscrowTxStatusPaid,
		Amount:      m.Amount,
		Currency:    contract.Currency,
		FromUserID:  contract.EmployerID,
		ToUserID:    contract.EmployerID,
		Description: &description,
	}
	if err := insertSettledTransaction(ctx, tx, t); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("escrow repository: commit refund %w", err)
	}
	return t, nil
}

// ReleaseSplit делит профинансированную сумму вехи между сторонами по
// решению арбитража: часть исполнителю, остаток работодателю. Требует
// снятой заморозки (спор уже resolved) и выполняется одним условным
// обновлением, как и обычная выплата.
func (r *EscrowRepository) ReleaseSplit(ctx context.Context, contractID, milestoneID uuid.UUID, contractorAmount int64, description string) ([]models.EscrowTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: begin tx %w", err)
	}
	defer tx.Rollback()

	var m models.Milestone
	err = tx.GetContext(ctx, &m, `
		UPDATE milestones
		SET status = $3, escrow_status = $4, paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND contract_id = $2
		  AND status <> $3 AND escrow_status = $5
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.milestone_id = milestones.id AND d.status = $6
		  )
		RETURNING *
	`, milestoneID, contractID,
		models.MilestoneStatusPaid, models.MilestoneEscrowReleased,
		models.MilestoneEscrowFunded, models.DisputeStatusOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("escrow repository: split milestone %w", err)
	}

	if contractorAmount <= 0 || contractorAmount >= m.Amount {
		return nil, fmt.Errorf("escrow repository: split amount %d out of range (0, %d)", contractorAmount, m.Amount)
	}

	releaseTx, err := r.settle(ctx, tx, &m, contractorAmount, models.EscrowTxTypeRelease, description)
	if err != nil {
		return nil, err
	}

	var contract models.Contract
	if err := tx.GetContext(ctx, &contract, `SELECT * FROM contracts WHERE id = $1`, contractID); err != nil {
		return nil, fmt.Errorf("escrow repository: load contract %w", err)
	}

	refundTx := &models.EscrowTransaction{
		ContractID:  contractID,
		MilestoneID: &m.ID,
		Type:        models.EscrowTxTypeRefund,
		Status:      models.EscrowTxStatusPaid,
		Amount:      m.Amount - contractorAmount,
		Currency:    contract.Currency,
		FromUserID:  contract.EmployerID,
		ToUserID:    contract.EmployerID,
		Description: &description,
	}
	if err := insertSettledTransaction(ctx, tx, refundTx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("escrow repository: commit split %w", err)
	}
	return []models.EscrowTransaction{*releaseTx, *refundTx}, nil
}

// settle увеличивает total_paid контракта под охраной инварианта
// total_paid ≤ escrow_funded и добавляет запись о выплате исполнителю.
func (r *EscrowRepository) settle(ctx context.Context, tx *sqlx.Tx, m *models.Milestone, amount int64, txType, description string) (*models.EscrowTransaction, error) {
	var contract models.Contract
	err := tx.GetContext(ctx, &contract, `
		UPDATE contracts
		SET total_paid = total_paid + $2, updated_at = NOW()
		WHERE id = $1 AND total_paid + $2 <= escrow_funded
		RETURNING *
	`, m.ContractID, amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("escrow repository: increment total_paid %w", err)
	}

	t := &models.EscrowTransaction{
		ContractID:  m.ContractID,
		MilestoneID: &m.ID,
		Type:        txType,
		Status:      models.EscrowTxStatusPaid,
		Amount:      amount,
		Currency:    contract.Currency,
		FromUserID:  contract.EmployerID,
		ToUserID:    contract.ContractorID,
		Description: &description,
	}
	if err := insertSettledTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func insertSettledTransaction(ctx context.Context, tx *sqlx.Tx, t *models.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions
			(contract_id, milestone_id, type, status, amount, currency, from_user_id, to_user_id, description, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at, completed_at
	`
	err := tx.QueryRowxContext(ctx, query,
		t.ContractID, t.MilestoneID, t.Type, t.Status, t.Amount, t.Currency,
		t.FromUserID, t.ToUserID, t.Description,
	).Scan(&t.ID, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return fmt.Errorf("escrow repository: insert transaction %w", err)
	}
	return nil
}

// ListByContract возвращает журнал транзакций контракта.
func (r *EscrowRepository) ListByContract(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	var transactions []models.EscrowTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM escrow_transactions
		WHERE contract_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, contractID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: list by contract %w", err)
	}
	return transactions, nil
}
