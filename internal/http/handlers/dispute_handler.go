package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// DisputeHandler обслуживает споры по вехам.
type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// Open POST /disputes
func (h *DisputeHandler) Open(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req dto.OpenDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	dispute, err := h.disputes.Open(c.Request.Context(), userID,
		uuid.MustParse(req.ContractID), uuid.MustParse(req.MilestoneID),
		req.Reason, req.Description)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dispute)
}

// Resolve POST /disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
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
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	var req dto.ResolveDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	dispute, err := h.disputes.Resolve(c.Request.Context(), userID, role, disputeID, service.DisputeResolutionInput{
		Resolution:       req.Resolution,
		Notes:            req.Notes,
		ContractorAmount: req.ContractorAmount,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// Get GET /disputes/:id
func (h *DisputeHandler) Get(c *gin.Context) {
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
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	dispute, err := h.disputes.GetDispute(c.Request.Context(), userID, role, disputeID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// List GET /disputes
func (h *DisputeHandler) List(c *gin.Context) {
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
	limit, offset := common.GetPagination(c)

	disputes, err := h.disputes.ListDisputes(c.Request.Context(), userID, role, limit, offset)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, disputes)
}
