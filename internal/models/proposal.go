package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы предложения
const (
	ProposalStatusPending     = "pending"
	ProposalStatusShortlisted = "shortlisted"
	ProposalStatusRejected    = "rejected"
	ProposalStatusAccepted    = "accepted"
	ProposalStatusWithdrawn   = "withdrawn"
)

// ValidProposalStatuses список валидных статусов предложений
var ValidProposalStatuses = map[string]struct{}{
	ProposalStatusPending:     {},
	ProposalStatusShortlisted: {},
	ProposalStatusRejected:    {},
	ProposalStatusAccepted:    {},
	ProposalStatusWithdrawn:   {},
}

// Proposal представляет отклик исполнителя на вакансию.
// После создания контракта предложение становится неизменяемым.
type Proposal struct {
	ID           uuid.UUID `db:"id" json:"id"`
	JobID        uuid.UUID `db:"job_id" json:"job_id"`
	EmployerID   uuid.UUID `db:"employer_id" json:"employer_id"`
	ContractorID uuid.UUID `db:"contractor_id" json:"contractor_id"`
	Rate         int64     `db:"rate" json:"rate"`
	Currency     string    `db:"currency" json:"currency"`
	CoverLetter  string    `db:"cover_letter" json:"cover_letter"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
