package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/scheduler"
)

// AdminHandler обслуживает служебные операции арбитража.
type AdminHandler struct {
	autoRelease *scheduler.AutoReleaseScheduler
}

func NewAdminHandler(autoRelease *scheduler.AutoReleaseScheduler) *AdminHandler {
	return &AdminHandler{autoRelease: autoRelease}
}

// RunAutoRelease POST /admin/auto-release/run
// Ручной прогон сканера автовыплат, не дожидаясь таймера.
func (h *AdminHandler) RunAutoRelease(c *gin.Context) {
	role, err := common.CurrentUserRole(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	if role != models.RoleAdmin {
		common.Error(c, apperror.New(apperror.ErrCodeForbidden, "операция доступна только арбитражу"))
		return
	}

	released, err := h.autoRelease.RunOnce(c.Request.Context())
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AutoReleaseRunResponse{Released: released})
}
