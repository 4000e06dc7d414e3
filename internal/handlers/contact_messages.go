package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/query"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/response"
)

// ContactMessageHandler serves the cross-form submission inbox.
type ContactMessageHandler struct {
	submissions   *services.SubmissionService
	reads         *services.ReadService
	inference     *services.FieldInferenceService
	defaults      *services.SmartDefaultsService
	notifications *services.FieldNotificationService
}

// NewContactMessageHandler wires the inbox handler.
func NewContactMessageHandler(
	submissions *services.SubmissionService,
	reads *services.ReadService,
	inference *services.FieldInferenceService,
	defaults *services.SmartDefaultsService,
	notifications *services.FieldNotificationService,
) *ContactMessageHandler {
	return &ContactMessageHandler{
		submissions:   submissions,
		reads:         reads,
		inference:     inference,
		defaults:      defaults,
		notifications: notifications,
	}
}

// GET /api/contact-messages
func (h *ContactMessageHandler) Index(c *gin.Context) {
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", query.StatusAll, query.StatusRead, query.StatusUnread:
	default:
		response.Error(c, errors.NewValidation(map[string]string{"status": "must be all, read or unread"}))
		return
	}

	viewer := currentUserID(c)
	page, err := h.submissions.Index(requestContext(c), services.IndexOptions{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Status:   status,
		ViewerID: viewer,
		Page:     parseIntQuery(c, "page", 1),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	rows, err := toSubmissions(page.Submissions, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rows, &response.Meta{
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      int(page.Total),
		TotalPages: page.LastPage,
	})
}

// GET /api/contact-messages/:id
//
// Viewing a submission marks it read for the current user.
func (h *ContactMessageHandler) Show(c *gin.Context) {
	ctx := requestContext(c)
	viewer := currentUserID(c)
	id := c.Param("id")

	if err := h.reads.MarkRead(ctx, id, viewer); err != nil {
		response.Error(c, err)
		return
	}
	submission, err := h.submissions.Get(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	scope := services.FieldScope{}
	req := services.DefaultsRequest{View: services.ViewDetail}
	if submission.WebformID != nil {
		scope.WebformID = *submission.WebformID
		req.WebformID = *submission.WebformID
	}
	if submission.SubmissionForm != nil {
		scope.SubmissionForm = *submission.SubmissionForm
		req.SubmissionForm = *submission.SubmissionForm
	}
	if submission.Station != nil {
		scope.Station = *submission.Station
		req.Station = *submission.Station
	}

	fields, err := h.inference.Detect(ctx, scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	defaults, err := h.defaults.Resolve(ctx, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	newFields := []string{}
	if scope.WebformID != "" {
		if newFields, err = h.notifications.Live(ctx, scope.WebformID); err != nil {
			response.Error(c, err)
			return
		}
	}

	dto, err := toSubmission(submission, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"submission":     dto,
		"fields":         fields,
		"new_fields":     newFields,
		"smart_defaults": defaults,
	})
}

// POST /api/contact-messages/:id/toggle-read
func (h *ContactMessageHandler) ToggleRead(c *gin.Context) {
	state, err := h.reads.ToggleRead(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"is_read": state.IsRead,
		"reads":   toReaders(state.Reads),
	})
}

// DELETE /api/contact-messages/:id
func (h *ContactMessageHandler) Destroy(c *gin.Context) {
	if err := h.submissions.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Contact message deleted"})
}
