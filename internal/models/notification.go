package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// События, о которых уведомляются стороны контракта.
const (
	EventProposalSubmitted         = "proposal.submitted"
	EventContractCreated           = "contract.created"
	EventContractSigned            = "contract.signed"
	EventContractCompleted         = "contract.completed"
	EventContractCancelled         = "contract.cancelled"
	EventMilestoneAdded            = "milestone.added"
	EventMilestoneSubmitted        = "milestone.submitted"
	EventMilestoneApproved         = "milestone.approved"
	EventMilestoneRevisionRequest  = "milestone.revision_requested"
	EventMilestoneFunded           = "milestone.funded"
	EventMilestoneReleased         = "milestone.released"
	EventMilestoneRefunded         = "milestone.refunded"
	EventMilestoneAutoReleased     = "milestone.auto_released"
	EventContractFunded            = "contract.funded"
	EventDisputeOpened             = "dispute.opened"
	EventDisputeResolved           = "dispute.resolved"
	EventAutoReleasePolicyChanged  = "contract.auto_release_changed"
)

// Notification хранит доставленное пользователю уведомление.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
