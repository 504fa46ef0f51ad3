package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Статусы checkout-сессии на стороне шлюза.
const (
	CheckoutStatusPending = "pending"
	CheckoutStatusPaid    = "paid"
	CheckoutStatusFailed  = "failed"
)

// CheckoutSession описывает созданную шлюзом сессию оплаты.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// Client реализует обращения к внешнему платёжному шлюзу.
// Шлюз принимает сумму в минорных единицах и возвращает сессию,
// на которую перенаправляется работодатель для оплаты.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента шлюза.
func NewClient(baseURL string) *Client {
	apiKey := os.Getenv("PAYMENT_GATEWAY_API_KEY")

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type createCheckoutRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type checkStatusResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// CreateCheckout создаёт checkout-сессию на указанную сумму.
func (c *Client) CreateCheckout(ctx context.Context, amount int64, currency string, metadata map[string]string) (*CheckoutSession, error) {
	payload, err := json.Marshal(createCheckoutRequest{
		Amount:   amount,
		Currency: currency,
		Metadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: не удалось сериализовать запрос: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gateway: не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: ошибка запроса создания сессии: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway: создание сессии вернуло статус %d", resp.StatusCode)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("gateway: не удалось разобрать ответ: %w", err)
	}
	if session.SessionID == "" {
		return nil, fmt.Errorf("gateway: в ответе отсутствует session_id")
	}

	return &session, nil
}

// CheckStatus запрашивает у шлюза текущий статус сессии.
func (c *Client) CheckStatus(ctx context.Context, sessionID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return "", fmt.Errorf("gateway: не удалось создать запрос: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: ошибка запроса статуса сессии: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("gateway: сессия %s не найдена", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway: запрос статуса вернул статус %d", resp.StatusCode)
	}

	var status checkStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("gateway: не удалось разобрать ответ: %w", err)
	}

	switch status.Status {
	case CheckoutStatusPending, CheckoutStatusPaid, CheckoutStatusFailed:
		return status.Status, nil
	default:
		return "", fmt.Errorf("gateway: неизвестный статус сессии %q", status.Status)
	}
}
