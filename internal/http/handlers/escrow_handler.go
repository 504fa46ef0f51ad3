package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// EscrowHandler обслуживает пополнение escrow и реконсиляцию с шлюзом.
type EscrowHandler struct {
	escrow *service.EscrowService
}

func NewEscrowHandler(escrow *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

// Fund POST /contracts/:id/fund
func (h *EscrowHandler) Fund(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	var req dto.FundRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	var milestoneID *uuid.UUID
	if req.MilestoneID != nil {
		parsed := uuid.MustParse(*req.MilestoneID)
		milestoneID = &parsed
	}

	intent, err := h.escrow.Fund(c.Request.Context(), userID, contractID, milestoneID, req.Amount, req.Currency)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FundingResponse{
		Transaction: intent.Transaction,
		RedirectURL: intent.RedirectURL,
	})
}

// Webhook POST /payments/webhook
// Вызывается шлюзом без авторизации; защищён rate limit на маршруте.
func (h *EscrowHandler) Webhook(c *gin.Context) {
	var req dto.GatewayWebhookRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	transaction, err := h.escrow.HandleWebhook(c.Request.Context(), req.SessionID, req.Status)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

// CheckoutStatus GET /payments/checkout/:sessionId/status
func (h *EscrowHandler) CheckoutStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		common.Error(c, apperror.New(apperror.ErrCodeValidation, "session_id обязателен"))
		return
	}

	transaction, err := h.escrow.PollCheckout(c.Request.Context(), userID, sessionID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

// Transactions GET /payments/transactions?contract_id=
func (h *EscrowHandler) Transactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	role, err := common.CurrentUserRole(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	contractID, err := uuid.Parse(c.Query("contract_id"))
	if err != nil {
		common.Error(c, apperror.New(apperror.ErrCodeValidation, "contract_id должен быть валидным UUID"))
		return
	}
	limit, offset := common.GetPagination(c)

	transactions, err := h.escrow.ListTransactions(c.Request.Context(), userID, role, contractID, limit, offset)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, transactions)
}
