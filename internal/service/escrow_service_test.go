package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

type mockEscrowLedger struct {
	mock.Mock
}

func (m *mockEscrowLedger) CreatePendingFund(ctx context.Context, t *models.EscrowTransaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockEscrowLedger) GetBySessionID(ctx context.Context, sessionID string) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowTransaction), args.Error(1)
}

func (m *mockEscrowLedger) ConfirmFund(ctx context.Context, sessionID string) (*models.EscrowTransaction, bool, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.EscrowTransaction), args.Bool(1), args.Error(2)
}

func (m *mockEscrowLedger) MarkFailed(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockEscrowLedger) ListByContract(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	args := m.Called(ctx, contractID, limit, offset)
	return args.Get(0).([]models.EscrowTransaction), args.Error(1)
}

type mockPaymentGateway struct {
	mock.Mock
}

func (m *mockPaymentGateway) CreateCheckout(ctx context.Context, amount int64, currency string, metadata map[string]string) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, amount, currency, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func (m *mockPaymentGateway) CheckStatus(ctx context.Context, sessionID string) (string, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Error(1)
}

type mockFundingContracts struct {
	mock.Mock
}

func (m *mockFundingContracts) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *mockFundingContracts) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func fundingFixture() *models.Contract {
	return &models.Contract{
		ID:           uuid.New(),
		EmployerID:   uuid.New(),
		ContractorID: uuid.New(),
		TotalAmount:  100_000_00,
		EscrowFunded: 0,
		Currency:     "RUB",
		Status:       models.ContractStatusActive,
	}
}

func TestEscrowService_Fund_MilestoneSuccess(t *testing.T) {
	ledger := new(mockEscrowLedger)
	contracts := new(mockFundingContracts)
	gw := new(mockPaymentGateway)
	svc := NewEscrowService(ledger, contracts, gw, quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	milestone := &models.Milestone{
		ID:           uuid.New(),
		ContractID:   contract.ID,
		Amount:       40_000_00,
		Status:       models.MilestoneStatusPending,
		EscrowStatus: models.MilestoneEscrowUnfunded,
	}

	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	gw.On("CreateCheckout", ctx, milestone.Amount, "RUB", mock.Anything).
		Return(&gateway.CheckoutSession{SessionID: "cs_123", RedirectURL: "https://pay.example/cs_123"}, nil)
	ledger.On("CreatePendingFund", ctx, mock.MatchedBy(func(tx *models.EscrowTransaction) bool {
		return tx.Type == models.EscrowTxTypeFund &&
			tx.Status == models.EscrowTxStatusPending &&
			tx.SessionID != nil && *tx.SessionID == "cs_123"
	})).Return(nil)

	intent, err := svc.Fund(ctx, contract.EmployerID, contract.ID, &milestone.ID, milestone.Amount, "RUB")
	assert.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_123", intent.RedirectURL)
	assert.Equal(t, milestone.Amount, intent.Transaction.Amount)
	ledger.AssertExpectations(t)
}

func TestEscrowService_Fund_MilestonePartialAmount(t *testing.T) {
	ledger := new(mockEscrowLedger)
	contracts := new(mockFundingContracts)
	svc := NewEscrowService(ledger, contracts, new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	milestone := &models.Milestone{
		ID:           uuid.New(),
		ContractID:   contract.ID,
		Amount:       40_000_00,
		EscrowStatus: models.MilestoneEscrowUnfunded,
	}
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)

	_, err := svc.Fund(ctx, contract.EmployerID, contract.ID, &milestone.ID, 10_000_00, "RUB")
	assert.True(t, apperror.IsValidation(err))
}

func TestEscrowService_Fund_MilestoneAlreadyFunded(t *testing.T) {
	ledger := new(mockEscrowLedger)
	contracts := new(mockFundingContracts)
	svc := NewEscrowService(ledger, contracts, new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	milestone := &models.Milestone{
		ID:           uuid.New(),
		ContractID:   contract.ID,
		Amount:       40_000_00,
		EscrowStatus: models.MilestoneEscrowFunded,
	}
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	contracts.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)

	_, err := svc.Fund(ctx, contract.EmployerID, contract.ID, &milestone.ID, milestone.Amount, "RUB")
	assert.True(t, apperror.IsInvalidState(err))
}

func TestEscrowService_Fund_CurrencyMismatch(t *testing.T) {
	contracts := new(mockFundingContracts)
	svc := NewEscrowService(new(mockEscrowLedger), contracts, new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.Fund(ctx, contract.EmployerID, contract.ID, nil, 100, "USD")
	assert.True(t, apperror.IsValidation(err))
}

func TestEscrowService_Fund_NotEmployer(t *testing.T) {
	contracts := new(mockFundingContracts)
	svc := NewEscrowService(new(mockEscrowLedger), contracts, new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.Fund(ctx, contract.ContractorID, contract.ID, nil, 100, "RUB")
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscrowService_Fund_ContractOverRemaining(t *testing.T) {
	contracts := new(mockFundingContracts)
	svc := NewEscrowService(new(mockEscrowLedger), contracts, new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	contract.EscrowFunded = 90_000_00
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.Fund(ctx, contract.EmployerID, contract.ID, nil, 20_000_00, "RUB")
	assert.True(t, apperror.IsValidation(err))
}

func TestEscrowService_Fund_GatewayDown(t *testing.T) {
	contracts := new(mockFundingContracts)
	gw := new(mockPaymentGateway)
	svc := NewEscrowService(new(mockEscrowLedger), contracts, gw, quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	gw.On("CreateCheckout", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := svc.Fund(ctx, contract.EmployerID, contract.ID, nil, 100, "RUB")
	assert.Equal(t, apperror.ErrCodeGateway, apperror.CodeOf(err))
}

func TestEscrowService_HandleWebhook_PaidAppliesOnce(t *testing.T) {
	ledger := new(mockEscrowLedger)
	notifier := new(mockNotifier)
	svc := NewEscrowService(ledger, new(mockFundingContracts), new(mockPaymentGateway), notifier)
	ctx := context.Background()

	milestoneID := uuid.New()
	tx := &models.EscrowTransaction{
		ID:          uuid.New(),
		MilestoneID: &milestoneID,
		Status:      models.EscrowTxStatusPaid,
		FromUserID:  uuid.New(),
		ToUserID:    uuid.New(),
	}
	ledger.On("ConfirmFund", ctx, "cs_1").Return(tx, true, nil)
	notifier.On("NotifyUser", ctx, tx.FromUserID, models.EventMilestoneFunded, tx).Return(nil)
	notifier.On("NotifyUser", ctx, tx.ToUserID, models.EventMilestoneFunded, tx).Return(nil)

	got, err := svc.HandleWebhook(ctx, "cs_1", gateway.CheckoutStatusPaid)
	assert.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	notifier.AssertExpectations(t)
}

func TestEscrowService_HandleWebhook_PaidReplayIsNoop(t *testing.T) {
	ledger := new(mockEscrowLedger)
	notifier := new(mockNotifier)
	svc := NewEscrowService(ledger, new(mockFundingContracts), new(mockPaymentGateway), notifier)
	ctx := context.Background()

	tx := &models.EscrowTransaction{ID: uuid.New(), Status: models.EscrowTxStatusPaid}
	ledger.On("ConfirmFund", ctx, "cs_1").Return(tx, false, nil)

	got, err := svc.HandleWebhook(ctx, "cs_1", gateway.CheckoutStatusPaid)
	assert.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	// Повторная доставка не рассылает уведомлений.
	notifier.AssertNotCalled(t, "NotifyUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_HandleWebhook_TargetAlreadyFunded(t *testing.T) {
	ledger := new(mockEscrowLedger)
	svc := NewEscrowService(ledger, new(mockFundingContracts), new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	// Хранилище при проигранной гонке не возвращает сущность,
	// только конфликт.
	ledger.On("ConfirmFund", ctx, "cs_1").Return(nil, false, repository.ErrConflict)

	transaction, err := svc.HandleWebhook(ctx, "cs_1", gateway.CheckoutStatusPaid)
	assert.Nil(t, transaction)
	assert.True(t, apperror.IsConflict(err))
}

func TestEscrowService_HandleWebhook_UnknownStatus(t *testing.T) {
	svc := NewEscrowService(new(mockEscrowLedger), new(mockFundingContracts), new(mockPaymentGateway), quietNotifier())

	_, err := svc.HandleWebhook(context.Background(), "cs_1", "chargeback")
	assert.True(t, apperror.IsValidation(err))
}

func TestEscrowService_HandleWebhook_EmptySession(t *testing.T) {
	svc := NewEscrowService(new(mockEscrowLedger), new(mockFundingContracts), new(mockPaymentGateway), quietNotifier())

	_, err := svc.HandleWebhook(context.Background(), "", gateway.CheckoutStatusPaid)
	assert.True(t, apperror.IsValidation(err))
}

func TestEscrowService_PollCheckout_TerminalSkipsGateway(t *testing.T) {
	ledger := new(mockEscrowLedger)
	contracts := new(mockFundingContracts)
	gw := new(mockPaymentGateway)
	svc := NewEscrowService(ledger, contracts, gw, quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	tx := &models.EscrowTransaction{
		ID:         uuid.New(),
		ContractID: contract.ID,
		Status:     models.EscrowTxStatusPaid,
	}
	ledger.On("GetBySessionID", ctx, "cs_1").Return(tx, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	got, err := svc.PollCheckout(ctx, contract.EmployerID, "cs_1")
	assert.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	gw.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestEscrowService_PollCheckout_Stranger(t *testing.T) {
	ledger := new(mockEscrowLedger)
	contracts := new(mockFundingContracts)
	svc := NewEscrowService(ledger, contracts, new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	tx := &models.EscrowTransaction{ID: uuid.New(), ContractID: contract.ID, Status: models.EscrowTxStatusPending}
	ledger.On("GetBySessionID", ctx, "cs_1").Return(tx, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.PollCheckout(ctx, uuid.New(), "cs_1")
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscrowService_PollCheckout_AppliesPaid(t *testing.T) {
	ledger := new(mockEscrowLedger)
	contracts := new(mockFundingContracts)
	gw := new(mockPaymentGateway)
	svc := NewEscrowService(ledger, contracts, gw, quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	pending := &models.EscrowTransaction{ID: uuid.New(), ContractID: contract.ID, Status: models.EscrowTxStatusPending}
	paid := &models.EscrowTransaction{ID: pending.ID, ContractID: contract.ID, Status: models.EscrowTxStatusPaid}

	ledger.On("GetBySessionID", ctx, "cs_1").Return(pending, nil)
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)
	gw.On("CheckStatus", ctx, "cs_1").Return(gateway.CheckoutStatusPaid, nil)
	ledger.On("ConfirmFund", ctx, "cs_1").Return(paid, true, nil)

	got, err := svc.PollCheckout(ctx, contract.EmployerID, "cs_1")
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowTxStatusPaid, got.Status)
}

func TestEscrowService_ListTransactions_Stranger(t *testing.T) {
	contracts := new(mockFundingContracts)
	svc := NewEscrowService(new(mockEscrowLedger), contracts, new(mockPaymentGateway), quietNotifier())
	ctx := context.Background()

	contract := fundingFixture()
	contracts.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := svc.ListTransactions(ctx, uuid.New(), models.RoleContractor, contract.ID, 20, 0)
	assert.True(t, apperror.IsForbidden(err))
}
