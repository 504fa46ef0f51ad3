package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// MilestoneRepo описывает операции хранилища над рабочей стороной вехи.
type MilestoneRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	SubmitMilestone(ctx context.Context, id uuid.UUID, summary, deliverables string, hours *int) error
	ApproveMilestone(ctx context.Context, id uuid.UUID) error
	RequestRevision(ctx context.Context, id uuid.UUID, feedback string) error
}

// DisputeChecker сообщает, есть ли открытый спор по вехе.
type DisputeChecker interface {
	GetOpenByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Dispute, error)
}

// WorkReport описывает сдаваемую исполнителем работу.
type WorkReport struct {
	Summary      string
	Deliverables string
	HoursSpent   *int
}

// MilestoneService владеет рабочей стороной вехи: сдача, приёмка и
// возврат на доработку. Денежная сторона (funded/released/refunded)
// управляется EscrowService и ReleaseService.
type MilestoneService struct {
	contracts MilestoneRepo
	disputes  DisputeChecker
	notifier  Notifier
}

func NewMilestoneService(contracts MilestoneRepo, disputes DisputeChecker, notifier Notifier) *MilestoneService {
	return &MilestoneService{contracts: contracts, disputes: disputes, notifier: notifier}
}

// loadMilestone возвращает веху и её контракт.
func (s *MilestoneService) loadMilestone(ctx context.Context, contractID, milestoneID uuid.UUID) (*models.Contract, *models.Milestone, error) {
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

// checkFrozen возвращает Conflict, если по вехе открыт спор.
// Пока спор не разрешён, веха полностью заморожена.
func (s *MilestoneService) checkFrozen(ctx context.Context, milestoneID uuid.UUID) error {
	_, err := s.disputes.GetOpenByMilestone(ctx, milestoneID)
	if err == nil {
		return apperror.New(apperror.ErrCodeConflict, "веха заморожена открытым спором")
	}
	if errors.Is(err, repository.ErrDisputeNotFound) {
		return nil
	}
	return storeError(err)
}

// Submit фиксирует сдачу работы исполнителем. Краткое описание
// обязательно; веха переходит в submitted.
func (s *MilestoneService) Submit(ctx context.Context, contractorID, contractID, milestoneID uuid.UUID, report WorkReport) (*models.Milestone, error) {
	if report.Summary == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "краткое описание работы обязательно")
	}

	contract, milestone, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.ContractorID != contractorID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "сдать работу может только исполнитель")
	}
	if err := s.checkFrozen(ctx, milestoneID); err != nil {
		return nil, err
	}
	if !milestone.CanSubmit() {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "сдать работу нельзя из статуса %s", milestone.Status)
	}

	if err := s.contracts.SubmitMilestone(ctx, milestoneID, report.Summary, report.Deliverables, report.HoursSpent); err != nil {
		return nil, storeError(err)
	}

	updated, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, storeError(err)
	}
	notify(ctx, s.notifier, contract.EmployerID, models.EventMilestoneSubmitted, updated)
	return updated, nil
}

// Approve фиксирует приёмку сданной работы работодателем.
// Приёмка не выплачивает деньги: выплата — отдельная операция.
func (s *MilestoneService) Approve(ctx context.Context, employerID, contractID, milestoneID uuid.UUID) (*models.Milestone, error) {
	contract, milestone, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "принять работу может только работодатель")
	}
	if err := s.checkFrozen(ctx, milestoneID); err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusSubmitted {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "принять можно только сданную работу; текущий статус: %s", milestone.Status)
	}

	if err := s.contracts.ApproveMilestone(ctx, milestoneID); err != nil {
		return nil, storeError(err)
	}

	updated, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, storeError(err)
	}
	notify(ctx, s.notifier, contract.ContractorID, models.EventMilestoneApproved, updated)
	return updated, nil
}

// RequestRevision возвращает сданную работу на доработку с обязательным
// комментарием; веха переходит в revision_requested.
func (s *MilestoneService) RequestRevision(ctx context.Context, employerID, contractID, milestoneID uuid.UUID, feedback string) (*models.Milestone, error) {
	if feedback == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "комментарий к доработке обязателен")
	}

	contract, milestone, err := s.loadMilestone(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "вернуть работу на доработку может только работодатель")
	}
	if err := s.checkFrozen(ctx, milestoneID); err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusSubmitted {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "на доработку возвращается только сданная работа; текущий статус: %s", milestone.Status)
	}

	if err := s.contracts.RequestRevision(ctx, milestoneID, feedback); err != nil {
		return nil, storeError(err)
	}

	updated, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, storeError(err)
	}
	notify(ctx, s.notifier, contract.ContractorID, models.EventMilestoneRevisionRequest, updated)
	return updated, nil
}
