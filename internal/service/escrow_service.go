package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/metrics"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// EscrowLedger описывает журнал escrow-транзакций.
type EscrowLedger interface {
	CreatePendingFund(ctx context.Context, t *models.EscrowTransaction) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.EscrowTransaction, error)
	ConfirmFund(ctx context.Context, sessionID string) (*models.EscrowTransaction, bool, error)
	MarkFailed(ctx context.Context, sessionID string) error
	ListByContract(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error)
}

// PaymentGateway описывает внешний платёжный шлюз.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, amount int64, currency string, metadata map[string]string) (*gateway.CheckoutSession, error)
	CheckStatus(ctx context.Context, sessionID string) (string, error)
}

// FundingContractRepo описывает чтение контракта и вехи при пополнении.
type FundingContractRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
}

// FundingIntent возвращается работодателю для перехода к оплате.
type FundingIntent struct {
	Transaction *models.EscrowTransaction `json:"transaction"`
	RedirectURL string                    `json:"redirect_url"`
}

// EscrowService создаёт checkout-сессии шлюза и применяет их исходы к
// состоянию контракта. Реконсиляция идемпотентна по сессии: и webhook,
// и ручной опрос сводятся к одному условному обновлению.
type EscrowService struct {
	ledger    EscrowLedger
	contracts FundingContractRepo
	gateway   PaymentGateway
	notifier  Notifier
}

func NewEscrowService(ledger EscrowLedger, contracts FundingContractRepo, gw PaymentGateway, notifier Notifier) *EscrowService {
	return &EscrowService{ledger: ledger, contracts: contracts, gateway: gw, notifier: notifier}
}

// Fund открывает пополнение escrow: контракта целиком (milestoneID ==
// nil) или конкретной вехи. Деньги в escrow попадают только после
// подтверждения шлюза; незавершённая сессия не влияет на балансы.
func (s *EscrowService) Fund(ctx context.Context, employerID, contractID uuid.UUID, milestoneID *uuid.UUID, amount int64, currency string) (*FundingIntent, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	if contract.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "пополнять escrow может только работодатель")
	}
	if contract.Status != models.ContractStatusDraft && contract.Status != models.ContractStatusActive {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "escrow нельзя пополнить в статусе %s", contract.Status)
	}
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма пополнения должна быть положительной")
	}
	// Валюта фиксируется при создании контракта; конвертаций нет.
	if currency != "" && currency != contract.Currency {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "валюта %s не совпадает с валютой контракта %s", currency, contract.Currency)
	}

	metadata := map[string]string{"contract_id": contractID.String()}

	if milestoneID != nil {
		milestone, err := s.contracts.GetMilestone(ctx, *milestoneID)
		if err != nil {
			return nil, storeError(err)
		}
		if milestone.ContractID != contractID {
			return nil, apperror.ErrMilestoneNotFound
		}
		if milestone.EscrowStatus != models.MilestoneEscrowUnfunded {
			return nil, apperror.Newf(apperror.ErrCodeInvalidState, "веха уже профинансирована; escrow-статус: %s", milestone.EscrowStatus)
		}
		// Веха финансируется целиком, частичных пополнений нет.
		if amount != milestone.Amount {
			return nil, apperror.Newf(apperror.ErrCodeValidation, "веха финансируется полной суммой %d", milestone.Amount)
		}
		metadata["milestone_id"] = milestoneID.String()
	} else {
		remaining := contract.RemainingToFund()
		if remaining == 0 {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "контракт уже полностью профинансирован")
		}
		if amount > remaining {
			return nil, apperror.Newf(apperror.ErrCodeValidation, "сумма превышает остаток к финансированию %d", remaining)
		}
	}

	session, err := s.gateway.CreateCheckout(ctx, amount, contract.Currency, metadata)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "платёжный шлюз недоступен")
	}

	sessionID := session.SessionID
	transaction := &models.EscrowTransaction{
		ContractID:  contractID,
		MilestoneID: milestoneID,
		Type:        models.EscrowTxTypeFund,
		Status:      models.EscrowTxStatusPending,
		Amount:      amount,
		Currency:    contract.Currency,
		FromUserID:  contract.EmployerID,
		ToUserID:    contract.ContractorID,
		SessionID:   &sessionID,
	}
	if err := s.ledger.CreatePendingFund(ctx, transaction); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "сессия оплаты уже зарегистрирована")
		}
		return nil, storeError(err)
	}

	return &FundingIntent{Transaction: transaction, RedirectURL: session.RedirectURL}, nil
}

// HandleWebhook применяет асинхронный сигнал шлюза. Повторная доставка
// по завершённой сессии — no-op, а не второе пополнение.
func (s *EscrowService) HandleWebhook(ctx context.Context, sessionID, status string) (*models.EscrowTransaction, error) {
	if sessionID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "session_id обязателен")
	}

	switch status {
	case gateway.CheckoutStatusPaid:
		return s.applyPaid(ctx, sessionID)
	case gateway.CheckoutStatusFailed:
		if err := s.ledger.MarkFailed(ctx, sessionID); err != nil {
			return nil, storeError(err)
		}
		transaction, err := s.ledger.GetBySessionID(ctx, sessionID)
		if err != nil {
			return nil, storeError(err)
		}
		return transaction, nil
	case gateway.CheckoutStatusPending:
		transaction, err := s.ledger.GetBySessionID(ctx, sessionID)
		if err != nil {
			return nil, storeError(err)
		}
		return transaction, nil
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестный статус сессии: %s", status)
	}
}

// PollCheckout опрашивает шлюз о состоянии сессии и применяет исход.
// Если webhook уже применил оплату, опрос не делает второго пополнения.
func (s *EscrowService) PollCheckout(ctx context.Context, actorID uuid.UUID, sessionID string) (*models.EscrowTransaction, error) {
	transaction, err := s.ledger.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, storeError(err)
	}

	contract, err := s.contracts.GetByID(ctx, transaction.ContractID)
	if err != nil {
		return nil, storeError(err)
	}
	if !contract.IsParty(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "сессия оплаты доступна только сторонам контракта")
	}

	// Транзакция уже завершена — состояние известно без похода в шлюз.
	if transaction.IsTerminal() {
		return transaction, nil
	}

	status, err := s.gateway.CheckStatus(ctx, sessionID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "не удалось запросить статус сессии")
	}

	switch status {
	case gateway.CheckoutStatusPaid:
		return s.applyPaid(ctx, sessionID)
	case gateway.CheckoutStatusFailed:
		if err := s.ledger.MarkFailed(ctx, sessionID); err != nil {
			return nil, storeError(err)
		}
		return s.ledger.GetBySessionID(ctx, sessionID)
	default:
		return transaction, nil
	}
}

// applyPaid подтверждает пополнение и рассылает уведомления.
func (s *EscrowService) applyPaid(ctx context.Context, sessionID string) (*models.EscrowTransaction, error) {
	transaction, applied, err := s.ledger.ConfirmFund(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.New(apperror.ErrCodeConflict, "цель пополнения уже профинансирована")
		}
		return nil, storeError(err)
	}
	if !applied {
		// Повторный сигнал по завершённой сессии.
		return transaction, nil
	}

	metrics.EscrowFundsConfirmed.Inc()

	event := models.EventContractFunded
	if transaction.MilestoneID != nil {
		event = models.EventMilestoneFunded
	}
	notify(ctx, s.notifier, transaction.FromUserID, event, transaction)
	notify(ctx, s.notifier, transaction.ToUserID, event, transaction)
	return transaction, nil
}

// ListTransactions возвращает журнал escrow-транзакций контракта.
func (s *EscrowService) ListTransactions(ctx context.Context, actorID uuid.UUID, actorRole string, contractID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}
	if !contract.IsParty(actorID) && actorRole != models.RoleAdmin {
		return nil, apperror.New(apperror.ErrCodeForbidden, "журнал транзакций доступен только сторонам контракта")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	transactions, err := s.ledger.ListByContract(ctx, contractID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	return transactions, nil
}
