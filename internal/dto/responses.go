package dto

import (
	"github.com/ignatzorin/escrow-backend/internal/models"
)

// ErrorResponse represents a standardized error payload
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a standardized success payload
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// FundingResponse represents a started checkout session; the client is
// redirected to the gateway and the transaction stays pending until
// the gateway confirms it
type FundingResponse struct {
	Transaction *models.EscrowTransaction `json:"transaction"`
	RedirectURL string                    `json:"redirect_url"`
}

// AutoReleaseRunResponse represents the outcome of a manual
// auto-release scan
type AutoReleaseRunResponse struct {
	Released int `json:"released"`
}

// UnreadCountResponse represents the unread notifications counter
type UnreadCountResponse struct {
	Count int `json:"count"`
}
