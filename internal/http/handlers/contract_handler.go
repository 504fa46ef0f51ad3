package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// ContractHandler обслуживает жизненный цикл контрактов.
type ContractHandler struct {
	contracts *service.ContractService
}

func NewContractHandler(contracts *service.ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// CreateFromProposal POST /contracts/from-proposal
func (h *ContractHandler) CreateFromProposal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req dto.CreateContractRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	milestones := make([]service.MilestoneInput, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		milestones = append(milestones, service.MilestoneInput{
			Title:  m.Title,
			Amount: m.Amount,
			DueAt:  m.DueAt,
		})
	}

	input := service.CreateContractInput{
		ProposalID:      uuid.MustParse(req.ProposalID),
		Title:           req.Title,
		TotalAmount:     req.TotalAmount,
		PaymentType:     req.PaymentType,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		AutoRelease:     req.AutoRelease,
		AutoReleaseDays: req.AutoReleaseDays,
		Milestones:      milestones,
	}
	contract, err := h.contracts.CreateFromProposal(c.Request.Context(), userID, input)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// Sign POST /contracts/:id/sign
func (h *ContractHandler) Sign(c *gin.Context) {
	h.transition(c, h.contracts.Sign)
}

// Complete POST /contracts/:id/complete
func (h *ContractHandler) Complete(c *gin.Context) {
	h.transition(c, h.contracts.Complete)
}

// Cancel POST /contracts/:id/cancel
func (h *ContractHandler) Cancel(c *gin.Context) {
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

	var req dto.CancelContractRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	contract, err := h.contracts.Cancel(c.Request.Context(), userID, contractID, req.Reason)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// AddMilestone POST /contracts/:id/milestones
func (h *ContractHandler) AddMilestone(c *gin.Context) {
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

	var req dto.MilestoneRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	milestone, err := h.contracts.AddMilestone(c.Request.Context(), userID, contractID, service.MilestoneInput{
		Title:  req.Title,
		Amount: req.Amount,
		DueAt:  req.DueAt,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, milestone)
}

// SetAutoRelease PUT /contracts/:id/auto-release
func (h *ContractHandler) SetAutoRelease(c *gin.Context) {
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

	var req dto.AutoReleasePolicyRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	contract, err := h.contracts.SetAutoReleasePolicy(c.Request.Context(), userID, contractID, req.Enabled, req.Days)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Get GET /contracts/:id
func (h *ContractHandler) Get(c *gin.Context) {
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
	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), userID, role, contractID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// List GET /contracts
func (h *ContractHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	limit, offset := common.GetPagination(c)

	contracts, err := h.contracts.ListContracts(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, contracts)
}

// transition выполняет переход статуса без тела запроса.
func (h *ContractHandler) transition(c *gin.Context, op func(ctx context.Context, actorID, contractID uuid.UUID) (*models.Contract, error)) {
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

	contract, err := op(c.Request.Context(), userID, contractID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}
