package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// MilestoneHandler обслуживает рабочую и денежную стороны вехи.
type MilestoneHandler struct {
	milestones *service.MilestoneService
	releases   *service.ReleaseService
}

func NewMilestoneHandler(milestones *service.MilestoneService, releases *service.ReleaseService) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones, releases: releases}
}

type milestoneRef struct {
	userID      uuid.UUID
	contractID  uuid.UUID
	milestoneID uuid.UUID
}

// parseRef извлекает актора и идентификаторы вехи из запроса.
func (h *MilestoneHandler) parseRef(c *gin.Context) (*milestoneRef, bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return nil, false
	}
	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return nil, false
	}
	milestoneID, err := common.ParseUUIDParam(c, "milestoneId")
	if err != nil {
		common.Error(c, err)
		return nil, false
	}
	return &milestoneRef{userID: userID, contractID: contractID, milestoneID: milestoneID}, true
}

// Submit POST /contracts/:id/milestones/:milestoneId/submit
func (h *MilestoneHandler) Submit(c *gin.Context) {
	ref, ok := h.parseRef(c)
	if !ok {
		return
	}

	var req dto.SubmitMilestoneRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	milestone, err := h.milestones.Submit(c.Request.Context(), ref.userID, ref.contractID, ref.milestoneID, service.WorkReport{
		Summary:      req.Summary,
		Deliverables: req.Deliverables,
		HoursSpent:   req.HoursSpent,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// Approve POST /contracts/:id/milestones/:milestoneId/approve
func (h *MilestoneHandler) Approve(c *gin.Context) {
	ref, ok := h.parseRef(c)
	if !ok {
		return
	}

	milestone, err := h.milestones.Approve(c.Request.Context(), ref.userID, ref.contractID, ref.milestoneID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// RequestRevision POST /contracts/:id/milestones/:milestoneId/revision
func (h *MilestoneHandler) RequestRevision(c *gin.Context) {
	ref, ok := h.parseRef(c)
	if !ok {
		return
	}

	var req dto.RevisionRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	milestone, err := h.milestones.RequestRevision(c.Request.Context(), ref.userID, ref.contractID, ref.milestoneID, req.Feedback)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// Release POST /contracts/:id/milestones/:milestoneId/release
func (h *MilestoneHandler) Release(c *gin.Context) {
	ref, ok := h.parseRef(c)
	if !ok {
		return
	}

	transaction, err := h.releases.Release(c.Request.Context(), ref.userID, ref.contractID, ref.milestoneID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

// Refund POST /contracts/:id/milestones/:milestoneId/refund
func (h *MilestoneHandler) Refund(c *gin.Context) {
	ref, ok := h.parseRef(c)
	if !ok {
		return
	}

	transaction, err := h.releases.Refund(c.Request.Context(), ref.userID, ref.contractID, ref.milestoneID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}
