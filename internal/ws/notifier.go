package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

// NotificationStore сохраняет уведомление перед доставкой.
type NotificationStore interface {
	CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Notification, error)
}

// HubNotifier реализует service.Notifier поверх хаба: уведомление
// сначала сохраняется в хранилище, затем доставляется в открытые
// подключения. Отключённый пользователь прочитает его из ленты.
type HubNotifier struct {
	hub   *Hub
	store NotificationStore
}

func NewHubNotifier(hub *Hub, store NotificationStore) *HubNotifier {
	return &HubNotifier{hub: hub, store: store}
}

// NotifyUser сохраняет и доставляет событие пользователю.
// Поле "type" несёт имя события, "data" — полезную нагрузку.
func (n *HubNotifier) NotifyUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	if _, err := n.store.CreateNotification(ctx, userID, event, data); err != nil {
		return fmt.Errorf("ws: не удалось сохранить уведомление: %w", err)
	}

	raw, err := json.Marshal(map[string]interface{}{
		"type": event,
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}

	n.hub.Send(userID, raw)
	return nil
}
