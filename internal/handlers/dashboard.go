package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/response"
)

type DashboardHandler struct {
	svc *services.DashboardService
}

func NewDashboardHandler(svc *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// GET /api/dashboard
func (h *DashboardHandler) Show(c *gin.Context) {
	overview, err := h.svc.Overview(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"stations": overview.Stations,
		"totals":   overview.Totals,
	}
	if user := currentUser(c); user != nil {
		role := user.RoleName()
		payload["user"] = toUser(user)
		payload["role"] = role
		payload["is_superadmin"] = role == models.RoleSuperAdmin
	}
	response.Success(c, http.StatusOK, payload)
}
