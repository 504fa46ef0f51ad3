package dto

import (
	"time"
)

// CreateProposalRequest represents the request to submit a proposal
type CreateProposalRequest struct {
	JobID       string `json:"job_id" binding:"required,uuid"`
	EmployerID  string `json:"employer_id" binding:"required,uuid"`
	Rate        int64  `json:"rate" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	CoverLetter string `json:"cover_letter" binding:"required"`
}

// DecideProposalRequest represents the employer decision on a proposal
type DecideProposalRequest struct {
	Status string `json:"status" binding:"required"`
}

// MilestoneRequest represents a milestone definition inside a contract
type MilestoneRequest struct {
	Title  string     `json:"title" binding:"required"`
	Amount int64      `json:"amount" binding:"required"`
	DueAt  *time.Time `json:"due_at"`
}

// CreateContractRequest represents the request to create a contract
// from an accepted proposal
type CreateContractRequest struct {
	ProposalID      string             `json:"proposal_id" binding:"required,uuid"`
	Title           string             `json:"title" binding:"required"`
	TotalAmount     int64              `json:"total_amount" binding:"required"`
	PaymentType     string             `json:"payment_type" binding:"required"`
	StartsAt        *time.Time         `json:"starts_at"`
	EndsAt          *time.Time         `json:"ends_at"`
	AutoRelease     bool               `json:"auto_release"`
	AutoReleaseDays int                `json:"auto_release_days"`
	Milestones      []MilestoneRequest `json:"milestones"`
}

// CancelContractRequest represents the request to cancel a contract
type CancelContractRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AutoReleasePolicyRequest represents the request to change the
// auto-release policy of a contract
type AutoReleasePolicyRequest struct {
	Enabled bool `json:"enabled"`
	Days    int  `json:"days"`
}

// SubmitMilestoneRequest represents the contractor work report
type SubmitMilestoneRequest struct {
	Summary      string `json:"summary" binding:"required"`
	Deliverables string `json:"deliverables"`
	HoursSpent   *int   `json:"hours_spent"`
}

// RevisionRequest represents the employer feedback on submitted work
type RevisionRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

// FundRequest represents the request to fund escrow; milestone_id is
// optional, without it the contract balance is funded
type FundRequest struct {
	MilestoneID *string `json:"milestone_id" binding:"omitempty,uuid"`
	Amount      int64   `json:"amount" binding:"required"`
	Currency    string  `json:"currency"`
}

// GatewayWebhookRequest represents the payment gateway callback
type GatewayWebhookRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

// OpenDisputeRequest represents the request to open a dispute
type OpenDisputeRequest struct {
	ContractID  string `json:"contract_id" binding:"required,uuid"`
	MilestoneID string `json:"milestone_id" binding:"required,uuid"`
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

// ResolveDisputeRequest represents the arbiter decision on a dispute
type ResolveDisputeRequest struct {
	Resolution       string `json:"resolution" binding:"required"`
	Notes            string `json:"notes" binding:"required"`
	ContractorAmount int64  `json:"contractor_amount"`
}
