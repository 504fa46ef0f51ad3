package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы escrow-транзакций
const (
	EscrowTxTypeFund    = "fund"
	EscrowTxTypeRelease = "release"
	EscrowTxTypeRefund  = "refund"
)

// Статусы escrow-транзакций
const (
	EscrowTxStatusPending = "pending"
	EscrowTxStatusPaid    = "paid"
	EscrowTxStatusFailed  = "failed"
)

// ValidEscrowTxTypes список валидных типов транзакций
var ValidEscrowTxTypes = map[string]struct{}{
	EscrowTxTypeFund:    {},
	EscrowTxTypeRelease: {},
	EscrowTxTypeRefund:  {},
}

// EscrowTransaction — неизменяемая запись журнала о пополнении,
// выплате или возврате средств. Записи никогда не удаляются.
// Для транзакций типа fund поле SessionID хранит идентификатор
// checkout-сессии платёжного шлюза; реконсиляция идёт по нему.
type EscrowTransaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ContractID  uuid.UUID  `db:"contract_id" json:"contract_id"`
	MilestoneID *uuid.UUID `db:"milestone_id" json:"milestone_id,omitempty"`
	Type        string     `db:"type" json:"type"`
	Status      string     `db:"status" json:"status"`
	Amount      int64      `db:"amount" json:"amount"`
	Currency    string     `db:"currency" json:"currency"`
	FromUserID  uuid.UUID  `db:"from_user_id" json:"from_user_id"`
	ToUserID    uuid.UUID  `db:"to_user_id" json:"to_user_id"`
	SessionID   *string    `db:"session_id" json:"session_id,omitempty"`
	Description *string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal сообщает, достигла ли транзакция конечного статуса.
func (t *EscrowTransaction) IsTerminal() bool {
	return t.Status == EscrowTxStatusPaid || t.Status == EscrowTxStatusFailed
}
