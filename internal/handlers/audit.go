package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	per := parseIntQuery(c, "per_page", 50)
	if page <= 0 {
		page = 1
	}
	if per <= 0 || per > 200 {
		per = 50
	}

	filters := services.AuditFilters{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Result:   c.Query("result"),
		Resource: c.Query("resource"),
	}

	problems := map[string]string{}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		} else {
			problems["since"] = "must be an RFC3339 timestamp"
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		} else {
			problems["until"] = "must be an RFC3339 timestamp"
		}
	}
	if len(problems) > 0 {
		response.Error(c, errors.NewValidation(problems))
		return
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: per, Filters: filters})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(page, per, total))
}
