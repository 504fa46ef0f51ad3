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

// DisputeRepo описывает хранилище споров.
type DisputeRepo interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution, notes string, resolvedBy uuid.UUID) (*models.Dispute, error)
	MarkOutcomeApplied(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
}

// DisputeContractRepo описывает операции над контрактом при споре.
type DisputeContractRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	MarkDisputed(ctx context.Context, id uuid.UUID) error
	RestoreActive(ctx context.Context, id uuid.UUID) error
}

// SettlementExecutor применяет денежный исход арбитража к вехе.
type SettlementExecutor interface {
	ReleaseByDispute(ctx context.Context, contractID, milestoneID uuid.UUID) (*models.EscrowTransaction, error)
	RefundByDispute(ctx context.Context, contractID, milestoneID uuid.UUID) (*models.EscrowTransaction, error)
	SplitByDispute(ctx context.Context, contractID, milestoneID uuid.UUID, contractorAmount int64) ([]models.EscrowTransaction, error)
}

// DisputeResolutionInput описывает решение арбитра.
type DisputeResolutionInput struct {
	Resolution       string
	Notes            string
	ContractorAmount int64 // доля исполнителя, только для split
}

// DisputeService ведёт споры: открытие исполнителем и разрешение
// арбитром. Открытый спор замораживает веху; закрытие снимает
// заморозку и применяет денежный исход.
type DisputeService struct {
	disputes   DisputeRepo
	contracts  DisputeContractRepo
	settlement SettlementExecutor
	notifier   Notifier
}

func NewDisputeService(disputes DisputeRepo, contracts DisputeContractRepo, settlement SettlementExecutor, notifier Notifier) *DisputeService {
	return &DisputeService{disputes: disputes, contracts: contracts, settlement: settlement, notifier: notifier}
}

// Open открывает спор по вехе. Спор может поднять только исполнитель и
// только по непогашенной вехе; второй открытый спор по той же вехе
// отклоняется ограничением уникальности.
func (s *DisputeService) Open(ctx context.Context, contractorID, contractID, milestoneID uuid.UUID, reason, description string) (*models.Dispute, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "причина спора обязательна")
	}

	milestone, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, storeError(err)
	}
	if milestone.ContractID != contractID {
		return nil, apperror.ErrMilestoneNotFound
	}
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}
	if contract.ContractorID != contractorID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "открыть спор может только исполнитель")
	}
	if contract.Status != models.ContractStatusActive && contract.Status != models.ContractStatusDisputed {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "спор нельзя открыть в статусе контракта %s", contract.Status)
	}
	if milestone.IsEscrowTerminal() {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "веха уже погашена; escrow-статус: %s", milestone.EscrowStatus)
	}

	dispute := &models.Dispute{
		ContractID:  contractID,
		MilestoneID: milestoneID,
		RaisedBy:    contractorID,
		Reason:      reason,
		Description: description,
		Status:      models.DisputeStatusOpen,
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по вехе уже открыт спор")
		}
		return nil, storeError(err)
	}

	// Контракт помечается disputed по возможности: если он уже disputed
	// из-за другого спора, условное обновление проиграет — это не ошибка.
	if err := s.contracts.MarkDisputed(ctx, contractID); err != nil && !errors.Is(err, repository.ErrConflict) {
		logger.Log.WithError(err).WithField("contract_id", contractID).Warn("не удалось пометить контракт disputed")
	}

	metrics.DisputesOpened.Inc()
	notify(ctx, s.notifier, contract.EmployerID, models.EventDisputeOpened, dispute)
	return dispute, nil
}

// Resolve закрывает спор решением арбитра и применяет денежный исход:
// полная выплата исполнителю, полный возврат работодателю или раздел
// суммы. Закрыть спор может только администратор.
func (s *DisputeService) Resolve(ctx context.Context, adminID uuid.UUID, adminRole string, disputeID uuid.UUID, input DisputeResolutionInput) (*models.Dispute, error) {
	if adminRole != models.RoleAdmin {
		return nil, apperror.New(apperror.ErrCodeForbidden, "разрешать споры может только арбитраж")
	}
	if _, ok := models.ValidDisputeResolutions[input.Resolution]; !ok {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестный исход арбитража: %s", input.Resolution)
	}
	if input.Notes == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "обоснование решения обязательно")
	}

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, storeError(err)
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "спор уже разрешён")
	}

	if input.Resolution == models.DisputeResolutionSplit {
		milestone, err := s.contracts.GetMilestone(ctx, dispute.MilestoneID)
		if err != nil {
			return nil, storeError(err)
		}
		if input.ContractorAmount <= 0 || input.ContractorAmount >= milestone.Amount {
			return nil, apperror.Newf(apperror.ErrCodeValidation, "доля исполнителя должна быть в пределах (0, %d)", milestone.Amount)
		}
	}

	// Сначала снимается заморозка (спор закрывается), затем применяется
	// исход: условные обновления хранилища требуют отсутствия открытого
	// спора по вехе.
	resolved, err := s.disputes.Resolve(ctx, disputeID, input.Resolution, input.Notes, adminID)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.New(apperror.ErrCodeConflict, "спор уже разрешён параллельной операцией")
		}
		return nil, storeError(err)
	}

	if err := s.applyOutcome(ctx, resolved, input); err != nil {
		return nil, err
	}

	// Деньги дошли до вехи: резолюция помечается применённой. Ошибка
	// здесь не отменяет уже выполненный исход.
	if err := s.disputes.MarkOutcomeApplied(ctx, disputeID); err != nil {
		logger.Log.WithError(err).WithField("dispute_id", disputeID).Warn("не удалось пометить исход применённым")
	} else {
		resolved.OutcomeApplied = true
	}

	// Контракт возвращается в active, если других открытых споров нет.
	if err := s.contracts.RestoreActive(ctx, dispute.ContractID); err != nil && !errors.Is(err, repository.ErrConflict) {
		logger.Log.WithError(err).WithField("contract_id", dispute.ContractID).Warn("не удалось вернуть контракт в active")
	}

	metrics.DisputesResolved.WithLabelValues(input.Resolution).Inc()

	contract, err := s.contracts.GetByID(ctx, dispute.ContractID)
	if err == nil {
		notify(ctx, s.notifier, contract.EmployerID, models.EventDisputeResolved, resolved)
		notify(ctx, s.notifier, contract.ContractorID, models.EventDisputeResolved, resolved)
	}
	return resolved, nil
}

func (s *DisputeService) applyOutcome(ctx context.Context, dispute *models.Dispute, input DisputeResolutionInput) error {
	var err error
	switch input.Resolution {
	case models.DisputeResolutionRelease:
		_, err = s.settlement.ReleaseByDispute(ctx, dispute.ContractID, dispute.MilestoneID)
	case models.DisputeResolutionRefund:
		_, err = s.settlement.RefundByDispute(ctx, dispute.ContractID, dispute.MilestoneID)
	case models.DisputeResolutionSplit:
		_, err = s.settlement.SplitByDispute(ctx, dispute.ContractID, dispute.MilestoneID, input.ContractorAmount)
	}
	if err != nil {
		if apperror.IsConflict(err) {
			return apperror.New(apperror.ErrCodeConflict, "веха погашена до применения решения")
		}
		return err
	}
	return nil
}

// GetDispute возвращает спор сторонам контракта или арбитражу.
func (s *DisputeService) GetDispute(ctx context.Context, actorID uuid.UUID, actorRole string, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, storeError(err)
	}
	if actorRole == models.RoleAdmin {
		return dispute, nil
	}
	contract, err := s.contracts.GetByID(ctx, dispute.ContractID)
	if err != nil {
		return nil, storeError(err)
	}
	if !contract.IsParty(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "спор доступен только сторонам контракта")
	}
	return dispute, nil
}

// ListDisputes возвращает споры пользователя; арбитраж видит все
// открытые споры.
func (s *DisputeService) ListDisputes(ctx context.Context, actorID uuid.UUID, actorRole string, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var (
		disputes []models.Dispute
		err      error
	)
	if actorRole == models.RoleAdmin {
		disputes, err = s.disputes.ListOpen(ctx, limit, offset)
	} else {
		disputes, err = s.disputes.ListByUser(ctx, actorID, limit, offset)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return disputes, nil
}
