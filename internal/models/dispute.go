package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы спора
const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// Исходы арбитража
const (
	DisputeResolutionRelease = "release_to_contractor"
	DisputeResolutionRefund  = "refund_to_employer"
	DisputeResolutionSplit   = "split"
)

// ValidDisputeResolutions список валидных исходов арбитража
var ValidDisputeResolutions = map[string]struct{}{
	DisputeResolutionRelease: {},
	DisputeResolutionRefund:  {},
	DisputeResolutionSplit:   {},
}

// Dispute описывает спор исполнителя по вехе контракта.
// Пока спор открыт, веха заморожена: выплата, возврат и авто-выплата
// по ней запрещены. OutcomeApplied показывает, дошёл ли денежный исход
// решения до вехи: false у резолюции означает, что веху успела погасить
// параллельная операция.
type Dispute struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ContractID      uuid.UUID  `db:"contract_id" json:"contract_id"`
	MilestoneID     uuid.UUID  `db:"milestone_id" json:"milestone_id"`
	RaisedBy        uuid.UUID  `db:"raised_by" json:"raised_by"`
	Reason          string     `db:"reason" json:"reason"`
	Description     string     `db:"description" json:"description"`
	Status          string     `db:"status" json:"status"`
	Resolution      *string    `db:"resolution" json:"resolution,omitempty"`
	ResolutionNotes *string    `db:"resolution_notes" json:"resolution_notes,omitempty"`
	ResolvedBy      *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	OutcomeApplied  bool       `db:"outcome_applied" json:"outcome_applied"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
