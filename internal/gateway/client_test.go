package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClient_CreateCheckout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req createCheckoutRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(50_000_00), req.Amount)
		assert.Equal(t, "RUB", req.Currency)
		assert.Equal(t, "c-1", req.Metadata["contract_id"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(CheckoutSession{
			SessionID:   "cs_test_42",
			RedirectURL: "https://pay.example/cs_test_42",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	session, err := client.CreateCheckout(context.Background(), 50_000_00, "RUB", map[string]string{"contract_id": "c-1"})
	assert.NoError(t, err)
	assert.Equal(t, "cs_test_42", session.SessionID)
	assert.Equal(t, "https://pay.example/cs_test_42", session.RedirectURL)
}

func TestClient_CreateCheckout_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CreateCheckout(context.Background(), 100, "RUB", nil)
	assert.Error(t, err)
}

func TestClient_CreateCheckout_MissingSessionID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CheckoutSession{RedirectURL: "https://pay.example/x"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CreateCheckout(context.Background(), 100, "RUB", nil)
	assert.Error(t, err)
}

func TestClient_CheckStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_test_42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(checkStatusResponse{SessionID: "cs_test_42", Status: CheckoutStatusPaid})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	status, err := client.CheckStatus(context.Background(), "cs_test_42")
	assert.NoError(t, err)
	assert.Equal(t, CheckoutStatusPaid, status)
}

func TestClient_CheckStatus_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CheckStatus(context.Background(), "cs_missing")
	assert.Error(t, err)
}

func TestClient_CheckStatus_UnknownStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(checkStatusResponse{SessionID: "cs_1", Status: "chargeback"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CheckStatus(context.Background(), "cs_1")
	assert.Error(t, err)
}
