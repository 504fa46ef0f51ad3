package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

type mockContractStore struct {
	mock.Mock
}

func (m *mockContractStore) Create(ctx context.Context, c *models.Contract, milestones []models.Milestone) error {
	args := m.Called(ctx, c, milestones)
	return args.Error(0)
}

func (m *mockContractStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *mockContractStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Contract), args.Error(1)
}

func (m *mockContractStore) MarkSigned(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockContractStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockContractStore) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockContractStore) SetAutoReleasePolicy(ctx context.Context, id uuid.UUID, enabled bool, days int) error {
	args := m.Called(ctx, id, enabled, days)
	return args.Error(0)
}

func (m *mockContractStore) AddMilestone(ctx context.Context, milestone *models.Milestone) error {
	args := m.Called(ctx, milestone)
	return args.Error(0)
}

type mockProposalReader struct {
	mock.Mock
}

func (m *mockProposalReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func acceptedProposal(employerID, contractorID uuid.UUID) *models.Proposal {
	return &models.Proposal{
		ID:           uuid.New(),
		EmployerID:   employerID,
		ContractorID: contractorID,
		Rate:         1000_00,
		Currency:     "RUB",
		Status:       models.ProposalStatusAccepted,
	}
}

func TestContractService_CreateFromProposal_Success(t *testing.T) {
	contracts := new(mockContractStore)
	proposals := new(mockProposalReader)
	svc := NewContractService(contracts, proposals, quietNotifier())
	ctx := context.Background()

	employerID := uuid.New()
	proposal := acceptedProposal(employerID, uuid.New())
	proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)
	contracts.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)

	contract, err := svc.CreateFromProposal(ctx, employerID, CreateContractInput{
		ProposalID:  proposal.ID,
		Title:       "Разработка сервиса",
		TotalAmount: 100_000_00,
		PaymentType: models.PaymentTypeFixed,
		Milestones: []MilestoneInput{
			{Title: "Прототип", Amount: 40_000_00},
			{Title: "Релиз", Amount: 60_000_00},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, models.ContractStatusDraft, contract.Status)
	assert.True(t, contract.EmployerSigned)
	assert.False(t, contract.ContractorSigned)
	assert.Equal(t, proposal.Currency, contract.Currency)
	contracts.AssertExpectations(t)
}

func TestContractService_CreateFromProposal_NotAccepted(t *testing.T) {
	contracts := new(mockContractStore)
	proposals := new(mockProposalReader)
	svc := NewContractService(contracts, proposals, quietNotifier())
	ctx := context.Background()

	employerID := uuid.New()
	proposal := acceptedProposal(employerID, uuid.New())
	proposal.Status = models.ProposalStatusPending
	proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)

	_, err := svc.CreateFromProposal(ctx, employerID, CreateContractInput{
		ProposalID:  proposal.ID,
		Title:       "x",
		TotalAmount: 100,
		PaymentType: models.PaymentTypeFixed,
	})
	assert.True(t, apperror.IsConflict(err))
}

func TestContractService_CreateFromProposal_MilestonesExceedTotal(t *testing.T) {
	contracts := new(mockContractStore)
	proposals := new(mockProposalReader)
	svc := NewContractService(contracts, proposals, quietNotifier())
	ctx := context.Background()

	employerID := uuid.New()
	proposal := acceptedProposal(employerID, uuid.New())
	proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)

	_, err := svc.CreateFromProposal(ctx, employerID, CreateContractInput{
		ProposalID:  proposal.ID,
		Title:       "x",
		TotalAmount: 100,
		PaymentType: models.PaymentTypeFixed,
		Milestones: []MilestoneInput{
			{Title: "a", Amount: 80},
			{Title: "b", Amount: 30},
		},
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestContractService_CreateFromProposal_Duplicate(t *testing.T) {
	contracts := new(mockContractStore)
	proposals := new(mockProposalReader)
	svc := NewContractService(contracts, proposals, quietNotifier())
	ctx := context.Background()

	employerID := uuid.New()
	proposal := acceptedProposal(employerID, uuid.New())
	proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)
	contracts.On("Create", ctx, mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)

	_, err := svc.CreateFromProposal(ctx, employerID, CreateContractInput{
		ProposalID:  proposal.ID,
		Title:       "x",
		TotalAmount: 100,
		PaymentType: models.PaymentTypeFixed,
	})
	assert.True(t, apperror.IsConflict(err))
}

func TestContractService_Sign_Success(t *testing.T) {
	contracts := new(mockContractStore)
	svc := NewContractService(contracts, new(mockProposalReader), quietNotifier())
	ctx := context.Background()

	contractorID := uuid.New()
	draft := &models.Contract{
		ID:           uuid.New(),
		EmployerID:   uuid.New(),
		ContractorID: contractorID,
		Status:       models.ContractStatusDraft,
	}
	active := &models.Contract{
		ID:               draft.ID,
		EmployerID:       draft.EmployerID,
		ContractorID:     contractorID,
		Status:           models.ContractStatusActive,
		ContractorSigned: true,
	}

	contracts.On("GetByID", ctx, draft.ID).Return(draft, nil).Once()
	contracts.On("MarkSigned", ctx, draft.ID).Return(nil)
	contracts.On("GetByID", ctx, draft.ID).Return(active, nil).Once()

	updated, err := svc.Sign(ctx, contractorID, draft.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ContractStatusActive, updated.Status)
	contracts.AssertExpectations(t)
}

func TestContractService_Sign_ByEmployer(t *testing.T) {
	contracts := new(mockContractStore)
	svc := NewContractService(contracts, new(mockProposalReader), quietNotifier())
	ctx := context.Background()

	employerID := uuid.New()
	draft := &models.Contract{
		ID:           uuid.New(),
		EmployerID:   employerID,
		ContractorID: uuid.New(),
		Status:       models.ContractStatusDraft,
	}
	contracts.On("GetByID", ctx, draft.ID).Return(draft, nil)

	_, err := svc.Sign(ctx, employerID, draft.ID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestContractService_Complete_NotActive(t *testing.T) {
	contracts := new(mockContractStore)
	svc := NewContractService(contracts, new(mockProposalReader), quietNotifier())
	ctx := context.Background()

	employerID := uuid.New()
	contract := &models.Contract{
		ID:         uuid.New(),
		EmployerID: employerID,
		Status:     models.ContractStatusDraft,
	}
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.Complete(ctx, employerID, contract.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestContractService_Cancel_RequiresReason(t *testing.T) {
	svc := NewContractService(new(mockContractStore), new(mockProposalReader), quietNotifier())

	_, err := svc.Cancel(context.Background(), uuid.New(), uuid.New(), "")
	assert.True(t, apperror.IsValidation(err))
}

func TestContractService_AddMilestone_ExceedsCeiling(t *testing.T) {
	contracts := new(mockContractStore)
	svc := NewContractService(contracts, new(mockProposalReader), quietNotifier())
	ctx := context.Background()

	employerID := uuid.New()
	contract := &models.Contract{
		ID:          uuid.New(),
		EmployerID:  employerID,
		Status:      models.ContractStatusActive,
		TotalAmount: 100,
		Milestones: []models.Milestone{
			{Amount: 90},
		},
	}
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.AddMilestone(ctx, employerID, contract.ID, MilestoneInput{Title: "ещё", Amount: 20})
	assert.True(t, apperror.IsValidation(err))
}

func TestContractService_SetAutoReleasePolicy_LooseningByContractor(t *testing.T) {
	contracts := new(mockContractStore)
	svc := NewContractService(contracts, new(mockProposalReader), quietNotifier())
	ctx := context.Background()

	contractorID := uuid.New()
	contract := &models.Contract{
		ID:           uuid.New(),
		EmployerID:   uuid.New(),
		ContractorID: contractorID,
		Status:       models.ContractStatusActive,
		AutoRelease:  false,
	}
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	// Включение авто-выплаты расширяет политику — исполнителю нельзя.
	_, err := svc.SetAutoReleasePolicy(ctx, contractorID, contract.ID, true, 14)
	assert.True(t, apperror.IsForbidden(err))
}

func TestContractService_SetAutoReleasePolicy_TighteningByContractor(t *testing.T) {
	contracts := new(mockContractStore)
	svc := NewContractService(contracts, new(mockProposalReader), quietNotifier())
	ctx := context.Background()

	contractorID := uuid.New()
	contract := &models.Contract{
		ID:              uuid.New(),
		EmployerID:      uuid.New(),
		ContractorID:    contractorID,
		Status:          models.ContractStatusActive,
		AutoRelease:     true,
		AutoReleaseDays: 30,
	}
	tightened := &models.Contract{
		ID:              contract.ID,
		EmployerID:      contract.EmployerID,
		ContractorID:    contractorID,
		AutoRelease:     true,
		AutoReleaseDays: 7,
	}

	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil).Once()
	contracts.On("SetAutoReleasePolicy", ctx, contract.ID, true, 7).Return(nil)
	contracts.On("GetByID", ctx, contract.ID).Return(tightened, nil).Once()

	updated, err := svc.SetAutoReleasePolicy(ctx, contractorID, contract.ID, true, 7)
	assert.NoError(t, err)
	assert.Equal(t, 7, updated.AutoReleaseDays)
	contracts.AssertExpectations(t)
}

func TestContractService_GetContract_AdminAccess(t *testing.T) {
	contracts := new(mockContractStore)
	svc := NewContractService(contracts, new(mockProposalReader), quietNotifier())
	ctx := context.Background()

	contract := &models.Contract{ID: uuid.New(), EmployerID: uuid.New(), ContractorID: uuid.New()}
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	got, err := svc.GetContract(ctx, uuid.New(), models.RoleAdmin, contract.ID)
	assert.NoError(t, err)
	assert.Equal(t, contract.ID, got.ID)
}
