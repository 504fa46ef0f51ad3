package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// Notifier доставляет уведомления сторонам контракта.
// Доставка — fire-and-forget: ошибки логируются и никогда не влияют
// на исход денежной операции.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// notify отправляет уведомление, подавляя ошибки доставки.
func notify(ctx context.Context, n Notifier, userID uuid.UUID, event string, data interface{}) {
	if n == nil || userID == uuid.Nil {
		return
	}
	if err := n.NotifyUser(ctx, userID, event, data); err != nil && logger.Log != nil {
		logger.Log.WithError(err).WithField("event", event).Warn("не удалось отправить уведомление")
	}
}
