package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/metrics"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// ReleaseLedger описывает денежные переходы вехи в хранилище.
type ReleaseLedger interface {
	Release(ctx context.Context, contractID, milestoneID uuid.UUID, expectedStatus string, description string) (*models.EscrowTransaction, error)
	Refund(ctx context.Context, contractID, milestoneID uuid.UUID, allowedStatuses []string, description string) (*models.EscrowTransaction, error)
	ReleaseSplit(ctx context.Context, contractID, milestoneID uuid.UUID, contractorAmount int64, description string) ([]models.EscrowTransaction, error)
}

// ReleaseContractRepo описывает чтение контрактов и поиск кандидатов
// на автовыплату.
type ReleaseContractRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	ListAutoReleaseCandidates(ctx context.Context, limit int) ([]models.Milestone, error)
}

// ReleaseService — единственная точка, через которую деньги покидают
// escrow: выплата исполнителю, возврат работодателю, исходы арбитража и
// автовыплата по таймеру. Гонки разрешает условное обновление в
// хранилище; сервис добавляет проверки прав и точные сообщения.
type ReleaseService struct {
	ledger    ReleaseLedger
	contracts ReleaseContractRepo
	disputes  DisputeChecker
	notifier  Notifier
}

func NewReleaseService(ledger ReleaseLedger, contracts ReleaseContractRepo, disputes DisputeChecker, notifier Notifier) *ReleaseService {
	return &ReleaseService{ledger: ledger, contracts: contracts, disputes: disputes, notifier: notifier}
}

func (s *ReleaseService) loadMilestone(ctx context.Context, contractID, milestoneID uuid.UUID) (*models.Contract, *models.Milestone, error) {
	milestone, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if milestone.ContractID != contractID {
		return nil, nil, apperror.ErrMilestoneNotFound
	}
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	return contract, milestone, nil
}

func (s *ReleaseService) checkFrozen(ctx context.Context, milestoneID uuid.UUID) error {
	_, err := s.disputes.GetOpenByMilestone(ctx, milestoneID)
	if err == nil {
		return apperror.New(apperror.ErrCodeConflict, "веха заморожена открытым спором")
	}
	if errors.Is(err, repository.ErrDisputeNotFound) {
		return nil
	}
	return storeError(err)
}

// Release выплачивает исполнителю средства принятой вехи. Требуется
// принятая работа и профинансированный escrow; выплата необратима.
func (s *ReleaseService) Release(ctx context.Context, employerID, contractID, milestoneID uuid.UUID) (*models.EscrowTransaction, error) {
	contract, milestone, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "выплатить средства может только работодатель")
	}
	if err := s.checkFrozen(ctx, milestoneID); err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusApproved {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "выплата возможна только по принятой работе; текущий статус: %s", milestone.Status)
	}
	if milestone.EscrowStatus != models.MilestoneEscrowFunded {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "веха не профинансирована; escrow-статус: %s", milestone.EscrowStatus)
	}

	transaction, err := s.ledger.Release(ctx, contractID, milestoneID, models.MilestoneStatusApproved, "выплата по принятой вехе")
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.New(apperror.ErrCodeConflict, "веха уже погашена или изменена параллельной операцией")
		}
		return nil, storeError(err)
	}

	metrics.MilestoneReleases.WithLabelValues("employer").Inc()
	notify(ctx, s.notifier, contract.ContractorID, models.EventMilestoneReleased, transaction)
	return transaction, nil
}

// Refund возвращает работодателю средства вехи, пока работа не сдана.
// После сдачи обычный возврат закрыт: остаются приёмка или спор.
func (s *ReleaseService) Refund(ctx context.Context, employerID, contractID, milestoneID uuid.UUID) (*models.EscrowTransaction, error) {
	contract, milestone, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "вернуть средства может только работодатель")
	}
	if err := s.checkFrozen(ctx, milestoneID); err != nil {
		return nil, err
	}
	allowed := []string{
		models.MilestoneStatusPending,
		models.MilestoneStatusInProgress,
		models.MilestoneStatusRevisionRequested,
	}
	if !statusIn(milestone.Status, allowed) {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "возврат возможен только до сдачи работы; текущий статус: %s", milestone.Status)
	}
	if milestone.EscrowStatus != models.MilestoneEscrowFunded {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "веха не профинансирована; escrow-статус: %s", milestone.EscrowStatus)
	}

	transaction, err := s.ledger.Refund(ctx, contractID, milestoneID, allowed, "возврат средств вехи работодателю")
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.New(apperror.ErrCodeConflict, "веха уже погашена или изменена параллельной операцией")
		}
		return nil, storeError(err)
	}

	metrics.MilestoneRefunds.WithLabelValues("employer").Inc()
	notify(ctx, s.notifier, contract.ContractorID, models.EventMilestoneRefunded, transaction)
	return transaction, nil
}

// ReleaseByDispute выплачивает исполнителю всю сумму вехи по решению
// арбитража. Рабочий статус фиксируется на момент чтения: если веха
// успела измениться, операция вернёт конфликт.
func (s *ReleaseService) ReleaseByDispute(ctx context.Context, contractID, milestoneID uuid.UUID) (*models.EscrowTransaction, error) {
	milestone, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, storeError(err)
	}
	transaction, err := s.ledger.Release(ctx, contractID, milestoneID, milestone.Status, "выплата исполнителю по решению спора")
	if err != nil {
		return nil, storeError(err)
	}
	metrics.MilestoneReleases.WithLabelValues("dispute").Inc()
	return transaction, nil
}

// RefundByDispute возвращает работодателю всю сумму вехи по решению
// арбитража. В отличие от обычного возврата допустим любой непогашенный
// рабочий статус.
func (s *ReleaseService) RefundByDispute(ctx context.Context, contractID, milestoneID uuid.UUID) (*models.EscrowTransaction, error) {
	allowed := []string{
		models.MilestoneStatusPending,
		models.MilestoneStatusInProgress,
		models.MilestoneStatusRevisionRequested,
		models.MilestoneStatusSubmitted,
		models.MilestoneStatusApproved,
	}
	transaction, err := s.ledger.Refund(ctx, contractID, milestoneID, allowed, "возврат работодателю по решению спора")
	if err != nil {
		return nil, storeError(err)
	}
	metrics.MilestoneRefunds.WithLabelValues("dispute").Inc()
	return transaction, nil
}

// SplitByDispute делит сумму вехи между сторонами по решению арбитража.
func (s *ReleaseService) SplitByDispute(ctx context.Context, contractID, milestoneID uuid.UUID, contractorAmount int64) ([]models.EscrowTransaction, error) {
	transactions, err := s.ledger.ReleaseSplit(ctx, contractID, milestoneID, contractorAmount, "раздел суммы вехи по решению спора")
	if err != nil {
		return nil, storeError(err)
	}
	metrics.MilestoneReleases.WithLabelValues("dispute").Inc()
	metrics.MilestoneRefunds.WithLabelValues("dispute").Inc()
	return transactions, nil
}

// RunAutoReleaseScan выплачивает вехи, по которым работодатель молчит
// дольше срока автовыплаты. Возвращает число выполненных выплат.
// Конфликт по отдельной вехе не прерывает прогон: кандидат мог быть
// погашен или оспорен между выборкой и выплатой.
func (s *ReleaseService) RunAutoReleaseScan(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	metrics.AutoReleaseScans.Inc()

	candidates, err := s.contracts.ListAutoReleaseCandidates(ctx, batchSize)
	if err != nil {
		return 0, storeError(err)
	}

	released := 0
	for _, m := range candidates {
		// Контракт мог быть расторгнут между выборкой и выплатой:
		// по неактивному контракту автовыплата не проходит.
		contract, err := s.contracts.GetByID(ctx, m.ContractID)
		if err != nil {
			return released, storeError(err)
		}
		if contract.Status != models.ContractStatusActive && contract.Status != models.ContractStatusDisputed {
			logger.Log.WithField("milestone_id", m.ID).Debug("автовыплата пропущена: контракт не активен")
			continue
		}

		transaction, err := s.ledger.Release(ctx, m.ContractID, m.ID, models.MilestoneStatusSubmitted, "автовыплата по истечении срока ожидания")
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				logger.Log.WithField("milestone_id", m.ID).Debug("автовыплата пропущена: веха изменена")
				continue
			}
			return released, storeError(err)
		}

		released++
		metrics.MilestoneReleases.WithLabelValues("auto").Inc()
		notify(ctx, s.notifier, transaction.FromUserID, models.EventMilestoneAutoReleased, transaction)
		notify(ctx, s.notifier, transaction.ToUserID, models.EventMilestoneAutoReleased, transaction)
	}
	return released, nil
}

func statusIn(status string, list []string) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}
