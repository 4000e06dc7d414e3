package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/security"
	"github.com/charlesng35/formdesk/pkg/response"
)

type SecurityHandler struct {
	audit *security.AuditService
}

func NewSecurityHandler(audit *security.AuditService) *SecurityHandler {
	return &SecurityHandler{audit: audit}
}

// GET /api/security/audit
func (h *SecurityHandler) Audit(c *gin.Context) {
	response.Success(c, http.StatusOK, h.audit.Run(requestContext(c)))
}
