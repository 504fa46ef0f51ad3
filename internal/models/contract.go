package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы контракта
const (
	ContractStatusDraft     = "draft"
	ContractStatusActive    = "active"
	ContractStatusCompleted = "completed"
	ContractStatusCancelled = "cancelled"
	ContractStatusDisputed  = "disputed"
)

// Типы оплаты контракта
const (
	PaymentTypeFixed   = "fixed"
	PaymentTypeHourly  = "hourly"
	PaymentTypeMonthly = "monthly"
)

// ValidContractStatuses список валидных статусов контракта
var ValidContractStatuses = map[string]struct{}{
	ContractStatusDraft:     {},
	ContractStatusActive:    {},
	ContractStatusCompleted: {},
	ContractStatusCancelled: {},
	ContractStatusDisputed:  {},
}

// ValidPaymentTypes список валидных типов оплаты
var ValidPaymentTypes = map[string]struct{}{
	PaymentTypeFixed:   {},
	PaymentTypeHourly:  {},
	PaymentTypeMonthly: {},
}

// Contract описывает договор между работодателем и исполнителем.
// Все суммы хранятся в минорных единицах валюты (копейки/центы).
type Contract struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	ProposalID       *uuid.UUID  `db:"proposal_id" json:"proposal_id,omitempty"`
	EmployerID       uuid.UUID   `db:"employer_id" json:"employer_id"`
	ContractorID     uuid.UUID   `db:"contractor_id" json:"contractor_id"`
	Title            string      `db:"title" json:"title"`
	TotalAmount      int64       `db:"total_amount" json:"total_amount"`
	Currency         string      `db:"currency" json:"currency"`
	PaymentType      string      `db:"payment_type" json:"payment_type"`
	EscrowFunded     int64       `db:"escrow_funded" json:"escrow_funded"`
	TotalPaid        int64       `db:"total_paid" json:"total_paid"`
	Status           string      `db:"status" json:"status"`
	EmployerSigned   bool        `db:"employer_signed" json:"employer_signed"`
	ContractorSigned bool        `db:"contractor_signed" json:"contractor_signed"`
	CancelReason     *string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	AutoRelease      bool        `db:"auto_release" json:"auto_release"`
	AutoReleaseDays  int         `db:"auto_release_days" json:"auto_release_days"`
	StartsAt         *time.Time  `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt           *time.Time  `db:"ends_at" json:"ends_at,omitempty"`
	ActivatedAt      *time.Time  `db:"activated_at" json:"activated_at,omitempty"`
	CompletedAt      *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
	Milestones       []Milestone `json:"milestones,omitempty"`
}

// IsParty сообщает, является ли пользователь стороной контракта.
func (c *Contract) IsParty(userID uuid.UUID) bool {
	return c.EmployerID == userID || c.ContractorID == userID
}

// RemainingToFund возвращает сумму, которую ещё можно поместить в escrow.
func (c *Contract) RemainingToFund() int64 {
	remaining := c.TotalAmount - c.EscrowFunded
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanTransitionTo проверяет допустимость перехода статуса контракта.
func CanContractTransition(from, to string) bool {
	transitions := map[string][]string{
		ContractStatusDraft:     {ContractStatusActive, ContractStatusCancelled},
		ContractStatusActive:    {ContractStatusCompleted, ContractStatusCancelled, ContractStatusDisputed},
		ContractStatusDisputed:  {ContractStatusActive},
		ContractStatusCompleted: {},
		ContractStatusCancelled: {},
	}

	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
