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

type mockReleaseLedger struct {
	mock.Mock
}

func (m *mockReleaseLedger) Release(ctx context.Context, contractID, milestoneID uuid.UUID, expectedStatus string, description string) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, contractID, milestoneID, expectedStatus, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowTransaction), args.Error(1)
}

func (m *mockReleaseLedger) Refund(ctx context.Context, contractID, milestoneID uuid.UUID, allowedStatuses []string, description string) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, contractID, milestoneID, allowedStatuses, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowTransaction), args.Error(1)
}

func (m *mockReleaseLedger) ReleaseSplit(ctx context.Context, contractID, milestoneID uuid.UUID, contractorAmount int64, description string) ([]models.EscrowTransaction, error) {
	args := m.Called(ctx, contractID, milestoneID, contractorAmount, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EscrowTransaction), args.Error(1)
}

type mockReleaseContracts struct {
	mock.Mock
}

func (m *mockReleaseContracts) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *mockReleaseContracts) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockReleaseContracts) ListAutoReleaseCandidates(ctx context.Context, limit int) ([]models.Milestone, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Milestone), args.Error(1)
}

func TestReleaseService_Release_Success(t *testing.T) {
	ledger := new(mockReleaseLedger)
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(ledger, contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusApproved, models.MilestoneEscrowFunded)
	tx := &models.EscrowTransaction{ID: uuid.New(), Type: models.EscrowTxTypeRelease, Amount: milestone.Amount}

	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	ledger.On("Release", ctx, contract.ID, milestone.ID, models.MilestoneStatusApproved, mock.Anything).Return(tx, nil)

	got, err := svc.Release(ctx, contract.EmployerID, contract.ID, milestone.ID)
	assert.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	ledger.AssertExpectations(t)
}

func TestReleaseService_Release_NotApproved(t *testing.T) {
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(new(mockReleaseLedger), contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusSubmitted, models.MilestoneEscrowFunded)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.Release(ctx, contract.EmployerID, contract.ID, milestone.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestReleaseService_Release_Unfunded(t *testing.T) {
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(new(mockReleaseLedger), contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusApproved, models.MilestoneEscrowUnfunded)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.Release(ctx, contract.EmployerID, contract.ID, milestone.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestReleaseService_Release_Frozen(t *testing.T) {
	contracts := new(mockReleaseContracts)
	disputes := new(mockDisputeChecker)
	svc := NewReleaseService(new(mockReleaseLedger), contracts, disputes, quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusApproved, models.MilestoneEscrowFunded)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	disputes.On("GetOpenByMilestone", ctx, milestone.ID).Return(&models.Dispute{ID: uuid.New()}, nil)

	_, err := svc.Release(ctx, contract.EmployerID, contract.ID, milestone.ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestReleaseService_Release_RaceLost(t *testing.T) {
	ledger := new(mockReleaseLedger)
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(ledger, contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusApproved, models.MilestoneEscrowFunded)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	ledger.On("Release", ctx, contract.ID, milestone.ID, mock.Anything, mock.Anything).Return(nil, repository.ErrConflict)

	_, err := svc.Release(ctx, contract.EmployerID, contract.ID, milestone.ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestReleaseService_Refund_AfterSubmit(t *testing.T) {
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(new(mockReleaseLedger), contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusSubmitted, models.MilestoneEscrowFunded)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	// После сдачи работы обычный возврат закрыт.
	_, err := svc.Refund(ctx, contract.EmployerID, contract.ID, milestone.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestReleaseService_Refund_BeforeSubmit(t *testing.T) {
	ledger := new(mockReleaseLedger)
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(ledger, contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusInProgress, models.MilestoneEscrowFunded)
	tx := &models.EscrowTransaction{ID: uuid.New(), Type: models.EscrowTxTypeRefund}

	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	ledger.On("Refund", ctx, contract.ID, milestone.ID,
		[]string{models.MilestoneStatusPending, models.MilestoneStatusInProgress, models.MilestoneStatusRevisionRequested},
		mock.Anything).Return(tx, nil)

	got, err := svc.Refund(ctx, contract.EmployerID, contract.ID, milestone.ID)
	assert.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
}

func TestReleaseService_Refund_ByContractor(t *testing.T) {
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(new(mockReleaseLedger), contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contract, milestone := milestoneFixture(models.MilestoneStatusInProgress, models.MilestoneEscrowFunded)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.Refund(ctx, contract.ContractorID, contract.ID, milestone.ID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestReleaseService_RunAutoReleaseScan_SkipsConflicts(t *testing.T) {
	ledger := new(mockReleaseLedger)
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(ledger, contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	first := models.Milestone{ID: uuid.New(), ContractID: uuid.New(), Amount: 100}
	second := models.Milestone{ID: uuid.New(), ContractID: uuid.New(), Amount: 200}
	tx := &models.EscrowTransaction{ID: uuid.New(), FromUserID: uuid.New(), ToUserID: uuid.New()}

	contracts.On("ListAutoReleaseCandidates", ctx, 50).Return([]models.Milestone{first, second}, nil)
	contracts.On("GetByID", ctx, first.ContractID).
		Return(&models.Contract{ID: first.ContractID, Status: models.ContractStatusActive}, nil)
	contracts.On("GetByID", ctx, second.ContractID).
		Return(&models.Contract{ID: second.ContractID, Status: models.ContractStatusActive}, nil)
	// Первый кандидат погашен параллельно: прогон продолжается.
	ledger.On("Release", ctx, first.ContractID, first.ID, models.MilestoneStatusSubmitted, mock.Anything).
		Return(nil, repository.ErrConflict)
	ledger.On("Release", ctx, second.ContractID, second.ID, models.MilestoneStatusSubmitted, mock.Anything).
		Return(tx, nil)

	released, err := svc.RunAutoReleaseScan(ctx, 50)
	assert.NoError(t, err)
	assert.Equal(t, 1, released)
	ledger.AssertExpectations(t)
}

func TestReleaseService_RunAutoReleaseScan_SkipsCancelledContract(t *testing.T) {
	ledger := new(mockReleaseLedger)
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(ledger, contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	// Контракт расторгнут между выборкой кандидатов и выплатой.
	candidate := models.Milestone{ID: uuid.New(), ContractID: uuid.New(), Amount: 100}
	contracts.On("ListAutoReleaseCandidates", ctx, 50).Return([]models.Milestone{candidate}, nil)
	contracts.On("GetByID", ctx, candidate.ContractID).
		Return(&models.Contract{ID: candidate.ContractID, Status: models.ContractStatusCancelled}, nil)

	released, err := svc.RunAutoReleaseScan(ctx, 50)
	assert.NoError(t, err)
	assert.Equal(t, 0, released)
	ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReleaseService_RunAutoReleaseScan_Empty(t *testing.T) {
	contracts := new(mockReleaseContracts)
	svc := NewReleaseService(new(mockReleaseLedger), contracts, noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contracts.On("ListAutoReleaseCandidates", ctx, 50).Return([]models.Milestone{}, nil)

	released, err := svc.RunAutoReleaseScan(ctx, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestReleaseService_SplitByDispute(t *testing.T) {
	ledger := new(mockReleaseLedger)
	svc := NewReleaseService(ledger, new(mockReleaseContracts), noOpenDispute(), quietNotifier())
	ctx := context.Background()

	contractID := uuid.New()
	milestoneID := uuid.New()
	txs := []models.EscrowTransaction{
		{ID: uuid.New(), Type: models.EscrowTxTypeRelease, Amount: 300},
		{ID: uuid.New(), Type: models.EscrowTxTypeRefund, Amount: 700},
	}
	ledger.On("ReleaseSplit", ctx, contractID, milestoneID, int64(300), mock.Anything).Return(txs, nil)

	got, err := svc.SplitByDispute(ctx, contractID, milestoneID, 300)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
}
