package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// ProposalStore описывает хранилище предложений.
type ProposalStore interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected []string, next string) error
	ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]models.Proposal, error)
	ListByContractor(ctx context.Context, contractorID uuid.UUID, limit, offset int) ([]models.Proposal, error)
}

// CreateProposalInput задаёт новое предложение исполнителя.
type CreateProposalInput struct {
	JobID       uuid.UUID
	EmployerID  uuid.UUID
	Rate        int64
	Currency    string
	CoverLetter string
}

// ProposalService ведёт предложения до контракта: создание, решение
// работодателя и отзыв. Принятое предложение — входная точка
// ContractService.CreateFromProposal.
type ProposalService struct {
	proposals ProposalStore
	notifier  Notifier
}

func NewProposalService(proposals ProposalStore, notifier Notifier) *ProposalService {
	return &ProposalService{proposals: proposals, notifier: notifier}
}

// Create создаёт предложение исполнителя на вакансию.
func (s *ProposalService) Create(ctx context.Context, contractorID uuid.UUID, input CreateProposalInput) (*models.Proposal, error) {
	if input.Rate <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "ставка должна быть положительной")
	}
	if input.Currency == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "валюта обязательна")
	}
	if input.CoverLetter == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "сопроводительное письмо обязательно")
	}
	if contractorID == input.EmployerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя откликнуться на собственную вакансию")
	}

	proposal := &models.Proposal{
		JobID:        input.JobID,
		EmployerID:   input.EmployerID,
		ContractorID: contractorID,
		Rate:         input.Rate,
		Currency:     input.Currency,
		CoverLetter:  input.CoverLetter,
		Status:       models.ProposalStatusPending,
	}
	if err := s.proposals.Create(ctx, proposal); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по этой вакансии уже есть активное предложение")
		}
		return nil, storeError(err)
	}

	notify(ctx, s.notifier, proposal.EmployerID, models.EventProposalSubmitted, proposal)
	return proposal, nil
}

// Decide фиксирует решение работодателя: shortlisted, rejected или
// accepted. Принятие необратимо — из accepted переходов нет.
func (s *ProposalService) Decide(ctx context.Context, employerID, proposalID uuid.UUID, next string) (*models.Proposal, error) {
	switch next {
	case models.ProposalStatusShortlisted, models.ProposalStatusRejected, models.ProposalStatusAccepted:
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "недопустимое решение по предложению: %s", next)
	}

	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, storeError(err)
	}
	if proposal.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "решение принимает только работодатель вакансии")
	}

	expected := []string{models.ProposalStatusPending, models.ProposalStatusShortlisted}
	if err := s.proposals.UpdateStatus(ctx, proposalID, expected, next); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по этой вакансии уже принято другое предложение")
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.Newf(apperror.ErrCodeConflict, "предложение уже в статусе %s", proposal.Status)
		}
		return nil, storeError(err)
	}

	updated, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, storeError(err)
	}
	return updated, nil
}

// Withdraw отзывает предложение исполнителя, пока оно не принято.
func (s *ProposalService) Withdraw(ctx context.Context, contractorID, proposalID uuid.UUID) (*models.Proposal, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, storeError(err)
	}
	if proposal.ContractorID != contractorID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "отозвать предложение может только его автор")
	}

	expected := []string{models.ProposalStatusPending, models.ProposalStatusShortlisted}
	if err := s.proposals.UpdateStatus(ctx, proposalID, expected, models.ProposalStatusWithdrawn); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.Newf(apperror.ErrCodeConflict, "предложение нельзя отозвать из статуса %s", proposal.Status)
		}
		return nil, storeError(err)
	}

	updated, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, storeError(err)
	}
	return updated, nil
}

// GetProposal возвращает предложение его сторонам.
func (s *ProposalService) GetProposal(ctx context.Context, actorID uuid.UUID, proposalID uuid.UUID) (*models.Proposal, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, storeError(err)
	}
	if proposal.EmployerID != actorID && proposal.ContractorID != actorID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "предложение доступно только его сторонам")
	}
	return proposal, nil
}

// ListByJob возвращает предложения по вакансии работодателя.
func (s *ProposalService) ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	limit, offset = clampPage(limit, offset)
	proposals, err := s.proposals.ListByJob(ctx, jobID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	return proposals, nil
}

// ListByContractor возвращает предложения исполнителя.
func (s *ProposalService) ListByContractor(ctx context.Context, contractorID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	limit, offset = clampPage(limit, offset)
	proposals, err := s.proposals.ListByContractor(ctx, contractorID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	return proposals, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
