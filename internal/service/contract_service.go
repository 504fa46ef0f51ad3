package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// Пределы политики авто-выплаты.
const (
	MinAutoReleaseDays = 1
	MaxAutoReleaseDays = 90
)

// ContractRepo описывает операции хранилища, нужные жизненному циклу контракта.
type ContractRepo interface {
	Create(ctx context.Context, c *models.Contract, milestones []models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error)
	MarkSigned(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
	SetAutoReleasePolicy(ctx context.Context, id uuid.UUID, enabled bool, days int) error
	AddMilestone(ctx context.Context, m *models.Milestone) error
}

// ProposalRepo описывает операции хранилища предложений.
type ProposalRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
}

// MilestoneInput задаёт веху при создании контракта.
type MilestoneInput struct {
	Title  string
	Amount int64
	DueAt  *time.Time
}

// CreateContractInput задаёт условия контракта из принятого предложения.
type CreateContractInput struct {
	ProposalID      uuid.UUID
	Title           string
	TotalAmount     int64
	PaymentType     string
	StartsAt        *time.Time
	EndsAt          *time.Time
	AutoRelease     bool
	AutoReleaseDays int
	Milestones      []MilestoneInput
}

// ContractService владеет жизненным циклом контракта: создание из
// принятого предложения, подписание, завершение, отмена и вехи.
type ContractService struct {
	contracts ContractRepo
	proposals ProposalRepo
	notifier  Notifier
}

func NewContractService(contracts ContractRepo, proposals ProposalRepo, notifier Notifier) *ContractService {
	return &ContractService{contracts: contracts, proposals: proposals, notifier: notifier}
}

// CreateFromProposal превращает принятое предложение в контракт-черновик.
// Работодатель подписывает контракт самим фактом создания; исполнитель
// подписывает отдельной операцией Sign.
func (s *ContractService) CreateFromProposal(ctx context.Context, employerID uuid.UUID, input CreateContractInput) (*models.Contract, error) {
	proposal, err := s.proposals.GetByID(ctx, input.ProposalID)
	if err != nil {
		return nil, storeError(err)
	}

	if proposal.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "контракт может создать только работодатель по предложению")
	}
	if proposal.Status != models.ProposalStatusAccepted {
		return nil, apperror.Newf(apperror.ErrCodeConflict, "предложение не принято; текущий статус: %s", proposal.Status)
	}

	if err := validateContractInput(&input); err != nil {
		return nil, err
	}

	proposalID := proposal.ID
	contract := &models.Contract{
		ProposalID:       &proposalID,
		EmployerID:       proposal.EmployerID,
		ContractorID:     proposal.ContractorID,
		Title:            input.Title,
		TotalAmount:      input.TotalAmount,
		Currency:         proposal.Currency,
		PaymentType:      input.PaymentType,
		Status:           models.ContractStatusDraft,
		EmployerSigned:   true,
		ContractorSigned: false,
		AutoRelease:      input.AutoRelease,
		AutoReleaseDays:  input.AutoReleaseDays,
		StartsAt:         input.StartsAt,
		EndsAt:           input.EndsAt,
	}

	milestones := make([]models.Milestone, 0, len(input.Milestones))
	for i, mi := range input.Milestones {
		milestones = append(milestones, models.Milestone{
			OrderIndex:   i + 1,
			Title:        mi.Title,
			Amount:       mi.Amount,
			DueAt:        mi.DueAt,
			Status:       models.MilestoneStatusPending,
			EscrowStatus: models.MilestoneEscrowUnfunded,
		})
	}

	if err := s.contracts.Create(ctx, contract, milestones); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по этому предложению контракт уже существует")
		}
		return nil, storeError(err)
	}

	notify(ctx, s.notifier, contract.ContractorID, models.EventContractCreated, contract)
	return contract, nil
}

func validateContractInput(input *CreateContractInput) error {
	if input.Title == "" {
		return apperror.New(apperror.ErrCodeValidation, "название контракта обязательно")
	}
	if input.TotalAmount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма контракта должна быть положительной")
	}
	if _, ok := models.ValidPaymentTypes[input.PaymentType]; !ok {
		return apperror.Newf(apperror.ErrCodeValidation, "неизвестный тип оплаты: %s", input.PaymentType)
	}
	if input.AutoRelease {
		if input.AutoReleaseDays < MinAutoReleaseDays || input.AutoReleaseDays > MaxAutoReleaseDays {
			return apperror.Newf(apperror.ErrCodeValidation, "срок авто-выплаты должен быть от %d до %d дней", MinAutoReleaseDays, MaxAutoReleaseDays)
		}
	}

	var sum int64
	for _, m := range input.Milestones {
		if m.Title == "" {
			return apperror.New(apperror.ErrCodeValidation, "название вехи обязательно")
		}
		if m.Amount <= 0 {
			return apperror.New(apperror.ErrCodeValidation, "сумма вехи должна быть положительной")
		}
		sum += m.Amount
	}
	// Жёсткий потолок: вехи не могут стоить больше контракта.
	if sum > input.TotalAmount {
		return apperror.New(apperror.ErrCodeValidation, "суммарный объём вех превышает сумму контракта")
	}
	return nil
}

// Sign фиксирует подпись исполнителя и активирует контракт.
func (s *ContractService) Sign(ctx context.Context, contractorID, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	if contract.ContractorID != contractorID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "подписать контракт может только исполнитель")
	}
	if contract.ContractorSigned {
		return nil, apperror.New(apperror.ErrCodeConflict, "контракт уже подписан исполнителем")
	}
	if contract.Status != models.ContractStatusDraft {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "подписать можно только черновик; текущий статус: %s", contract.Status)
	}

	if err := s.contracts.MarkSigned(ctx, contractID); err != nil {
		return nil, storeError(err)
	}

	updated, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}
	notify(ctx, s.notifier, updated.EmployerID, models.EventContractSigned, updated)
	return updated, nil
}

// Complete завершает активный контракт. Полная оплата не требуется:
// частичное завершение допустимо, остаток escrow возвращается возвратами.
func (s *ContractService) Complete(ctx context.Context, employerID, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	if contract.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "завершить контракт может только работодатель")
	}
	if contract.Status != models.ContractStatusActive {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "завершить можно только активный контракт; текущий статус: %s", contract.Status)
	}

	if err := s.contracts.MarkCompleted(ctx, contractID); err != nil {
		return nil, storeError(err)
	}

	updated, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}
	notify(ctx, s.notifier, updated.ContractorID, models.EventContractCompleted, updated)
	return updated, nil
}

// Cancel отменяет контракт с обязательной причиной. Доступно обеим
// сторонам, пока контракт не достиг терминального состояния.
func (s *ContractService) Cancel(ctx context.Context, actorID, contractID uuid.UUID, reason string) (*models.Contract, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "причина отмены обязательна")
	}

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	if !contract.IsParty(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "отменить контракт может только его сторона")
	}
	if contract.Status != models.ContractStatusDraft && contract.Status != models.ContractStatusActive {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "контракт нельзя отменить из статуса %s", contract.Status)
	}

	if err := s.contracts.MarkCancelled(ctx, contractID, reason); err != nil {
		return nil, storeError(err)
	}

	updated, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	counterparty := updated.ContractorID
	if actorID == updated.ContractorID {
		counterparty = updated.EmployerID
	}
	notify(ctx, s.notifier, counterparty, models.EventContractCancelled, updated)
	return updated, nil
}

// AddMilestone добавляет веху в контракт в статусе draft/active.
func (s *ContractService) AddMilestone(ctx context.Context, employerID, contractID uuid.UUID, input MilestoneInput) (*models.Milestone, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	if contract.EmployerID != employerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "добавлять вехи может только работодатель")
	}
	if contract.Status != models.ContractStatusDraft && contract.Status != models.ContractStatusActive {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "вехи нельзя добавлять в статусе %s", contract.Status)
	}
	if input.Title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "название вехи обязательно")
	}
	if input.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма вехи должна быть положительной")
	}

	var sum int64
	for _, m := range contract.Milestones {
		sum += m.Amount
	}
	if sum+input.Amount > contract.TotalAmount {
		return nil, apperror.New(apperror.ErrCodeValidation, "суммарный объём вех превысит сумму контракта")
	}

	milestone := &models.Milestone{
		ContractID:   contractID,
		Title:        input.Title,
		Amount:       input.Amount,
		DueAt:        input.DueAt,
		Status:       models.MilestoneStatusPending,
		EscrowStatus: models.MilestoneEscrowUnfunded,
	}
	if err := s.contracts.AddMilestone(ctx, milestone); err != nil {
		// Вставка с проверкой потолка в SQL: проигрыш условия — гонка
		// со статусом контракта или параллельным добавлением вехи.
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.New(apperror.ErrCodeConflict, "веху добавить не удалось: контракт изменён параллельной операцией")
		}
		return nil, storeError(err)
	}

	notify(ctx, s.notifier, contract.ContractorID, models.EventMilestoneAdded, milestone)
	return milestone, nil
}

// SetAutoReleasePolicy меняет политику авто-выплаты контракта.
// Ужесточить политику (выключить или сократить срок) может любая
// сторона; ослабить (включить или продлить срок) — только работодатель,
// поскольку именно его средства выплачиваются автоматически.
func (s *ContractService) SetAutoReleasePolicy(ctx context.Context, actorID, contractID uuid.UUID, enabled bool, days int) (*models.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	if !contract.IsParty(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "политику авто-выплаты меняют только стороны контракта")
	}
	if enabled && (days < MinAutoReleaseDays || days > MaxAutoReleaseDays) {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "срок авто-выплаты должен быть от %d до %d дней", MinAutoReleaseDays, MaxAutoReleaseDays)
	}

	if actorID != contract.EmployerID && isLoosening(contract, enabled, days) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "ослабить политику авто-выплаты может только работодатель")
	}

	if err := s.contracts.SetAutoReleasePolicy(ctx, contractID, enabled, days); err != nil {
		return nil, storeError(err)
	}

	updated, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}

	counterparty := updated.ContractorID
	if actorID == updated.ContractorID {
		counterparty = updated.EmployerID
	}
	notify(ctx, s.notifier, counterparty, models.EventAutoReleasePolicyChanged, updated)
	return updated, nil
}

// isLoosening сообщает, расширяет ли новое значение политику:
// включение выключенной авто-выплаты или продление срока.
func isLoosening(c *models.Contract, enabled bool, days int) bool {
	if enabled && !c.AutoRelease {
		return true
	}
	if enabled && c.AutoRelease && days > c.AutoReleaseDays {
		return true
	}
	return false
}

// GetContract возвращает контракт стороне или арбитру.
func (s *ContractService) GetContract(ctx context.Context, actorID uuid.UUID, actorRole string, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, storeError(err)
	}
	if !contract.IsParty(actorID) && actorRole != models.RoleAdmin {
		return nil, apperror.New(apperror.ErrCodeForbidden, "контракт доступен только его сторонам")
	}
	return contract, nil
}

// ListContracts возвращает контракты пользователя.
func (s *ContractService) ListContracts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	contracts, err := s.contracts.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	return contracts, nil
}
