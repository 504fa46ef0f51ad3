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

// ProposalHandler обслуживает предложения исполнителей.
type ProposalHandler struct {
	proposals *service.ProposalService
}

func NewProposalHandler(proposals *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

// Create POST /proposals
func (h *ProposalHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req dto.CreateProposalRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	input := service.CreateProposalInput{
		JobID:       uuid.MustParse(req.JobID),
		EmployerID:  uuid.MustParse(req.EmployerID),
		Rate:        req.Rate,
		Currency:    req.Currency,
		CoverLetter: req.CoverLetter,
	}
	proposal, err := h.proposals.Create(c.Request.Context(), userID, input)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, proposal)
}

// Get GET /proposals/:id
func (h *ProposalHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	proposalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	proposal, err := h.proposals.GetProposal(c.Request.Context(), userID, proposalID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

// Decide POST /proposals/:id/decide
func (h *ProposalHandler) Decide(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	proposalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	var req dto.DecideProposalRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	proposal, err := h.proposals.Decide(c.Request.Context(), userID, proposalID, req.Status)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

// Withdraw POST /proposals/:id/withdraw
func (h *ProposalHandler) Withdraw(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	proposalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	proposal, err := h.proposals.Withdraw(c.Request.Context(), userID, proposalID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

// List GET /proposals?job_id=
func (h *ProposalHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	limit, offset := common.GetPagination(c)

	if rawJobID := c.Query("job_id"); rawJobID != "" {
		jobID, err := uuid.Parse(rawJobID)
		if err != nil {
			common.Error(c, apperror.New(apperror.ErrCodeValidation, "job_id должен быть валидным UUID"))
			return
		}
		proposals, err := h.proposals.ListByJob(c.Request.Context(), jobID, limit, offset)
		if err != nil {
			common.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, proposals)
		return
	}

	proposals, err := h.proposals.ListByContractor(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, proposals)
}
