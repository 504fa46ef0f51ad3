package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы вехи (рабочая сторона)
const (
	MilestoneStatusPending           = "pending"
	MilestoneStatusInProgress        = "in_progress"
	MilestoneStatusSubmitted         = "submitted"
	MilestoneStatusApproved          = "approved"
	MilestoneStatusRevisionRequested = "revision_requested"
	MilestoneStatusPaid              = "paid"
)

// Статусы escrow вехи (финансовая сторона, ортогональна рабочей)
const (
	MilestoneEscrowUnfunded = "unfunded"
	MilestoneEscrowFunded   = "funded"
	MilestoneEscrowReleased = "released"
	MilestoneEscrowRefunded = "refunded"
)

// ValidMilestoneStatuses список валидных статусов вехи
var ValidMilestoneStatuses = map[string]struct{}{
	MilestoneStatusPending:           {},
	MilestoneStatusInProgress:        {},
	MilestoneStatusSubmitted:         {},
	MilestoneStatusApproved:          {},
	MilestoneStatusRevisionRequested: {},
	MilestoneStatusPaid:              {},
}

// ValidMilestoneEscrowStatuses список валидных escrow-статусов вехи
var ValidMilestoneEscrowStatuses = map[string]struct{}{
	MilestoneEscrowUnfunded: {},
	MilestoneEscrowFunded:   {},
	MilestoneEscrowReleased: {},
	MilestoneEscrowRefunded: {},
}

// Milestone описывает оплачиваемый этап работы внутри контракта.
// Вехи никогда не удаляются, только меняют статус.
type Milestone struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ContractID   uuid.UUID  `db:"contract_id" json:"contract_id"`
	OrderIndex   int        `db:"order_index" json:"order_index"`
	Title        string     `db:"title" json:"title"`
	Amount       int64      `db:"amount" json:"amount"`
	DueAt        *time.Time `db:"due_at" json:"due_at,omitempty"`
	Status       string     `db:"status" json:"status"`
	EscrowStatus string     `db:"escrow_status" json:"escrow_status"`
	WorkSummary  *string    `db:"work_summary" json:"work_summary,omitempty"`
	Deliverables *string    `db:"deliverables" json:"deliverables,omitempty"`
	HoursSpent   *int       `db:"hours_spent" json:"hours_spent,omitempty"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt       *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// CanSubmit сообщает, можно ли сдать работу из текущего статуса.
func (m *Milestone) CanSubmit() bool {
	switch m.Status {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusRevisionRequested:
		return true
	}
	return false
}

// IsEscrowTerminal сообщает, достиг ли escrow терминального состояния.
func (m *Milestone) IsEscrowTerminal() bool {
	return m.EscrowStatus == MilestoneEscrowReleased || m.EscrowStatus == MilestoneEscrowRefunded
}
