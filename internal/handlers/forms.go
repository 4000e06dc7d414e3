package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/internal/export"
	"github.com/charlesng35/formdesk/internal/query"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/logger"
	"github.com/charlesng35/formdesk/pkg/response"
)

// FormHandler serves the per-webform submission views.
type FormHandler struct {
	submissions   *services.SubmissionService
	inference     *services.FieldInferenceService
	defaults      *services.SmartDefaultsService
	notifications *services.FieldNotificationService
	exportZone    *time.Location
}

// NewFormHandler wires the form views. Export timestamps are rendered in zone.
func NewFormHandler(
	submissions *services.SubmissionService,
	inference *services.FieldInferenceService,
	defaults *services.SmartDefaultsService,
	notifications *services.FieldNotificationService,
	zone *time.Location,
) *FormHandler {
	if zone == nil {
		zone = time.UTC
	}
	return &FormHandler{
		submissions:   submissions,
		inference:     inference,
		defaults:      defaults,
		notifications: notifications,
		exportZone:    zone,
	}
}

type sortDTO struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

type paginationDTO struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// GET /api/forms/:webformId
func (h *FormHandler) Show(c *gin.Context) {
	ctx := requestContext(c)
	webformID := c.Param("webformId")

	form, err := h.submissions.Form(ctx, webformID)
	if err != nil {
		response.Error(c, err)
		return
	}
	filters, err := query.ParseFilters(c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}

	viewer := currentUserID(c)
	page, err := h.submissions.ListForForm(ctx, form.WebformID, filters, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	total, err := h.submissions.CountForForm(ctx, form.WebformID)
	if err != nil {
		response.Error(c, err)
		return
	}
	fields, err := h.inference.Detect(ctx, services.FieldScope{WebformID: form.WebformID})
	if err != nil {
		response.Error(c, err)
		return
	}
	defaults, err := h.defaults.Resolve(ctx, h.defaultsRequest(form, services.ViewList))
	if err != nil {
		response.Error(c, err)
		return
	}
	newFields, err := h.notifications.Live(ctx, form.WebformID)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := toSubmissions(page.Submissions, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	column, direction := h.submissions.ResolveSort(filters.SortColumn, filters.SortDirection)
	response.Success(c, http.StatusOK, gin.H{
		"form":        form,
		"submissions": rows,
		"pagination": paginationDTO{
			CurrentPage: page.Page,
			PerPage:     page.PerPage,
			Total:       page.Total,
			LastPage:    page.LastPage,
		},
		"total_submissions": total,
		"fields":            fields,
		"smart_defaults":    defaults,
		"new_fields":        newFields,
		"filters":           filters,
		"sort":              sortDTO{Column: column, Direction: direction},
	})
}

// DELETE /api/forms/:webformId/new-fields
func (h *FormHandler) ClearNewFields(c *gin.Context) {
	if err := h.notifications.Clear(requestContext(c), c.Param("webformId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"new_fields": []string{}})
}

// GET /api/forms/:webformId/export
//
// Columns come from the comma separated columns parameter, else from the
// list view smart defaults.
func (h *FormHandler) Export(c *gin.Context) {
	ctx := requestContext(c)

	renderer, err := export.ForFormat(c.Query("format"))
	if err != nil {
		response.Error(c, errors.NewValidation(map[string]string{"format": "must be csv or pdf"}))
		return
	}
	form, err := h.submissions.Form(ctx, c.Param("webformId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filters, err := query.ParseFilters(c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}

	columns := splitColumns(c.Query("columns"))
	if len(columns) == 0 {
		defaults, err := h.defaults.Resolve(ctx, h.defaultsRequest(form, services.ViewList))
		if err != nil {
			response.Error(c, err)
			return
		}
		columns = defaults.Fields
	}
	fields := make([]export.Column, 0, len(columns))
	for _, key := range columns {
		fields = append(fields, export.Column{Key: key, Label: services.FieldLabel(key)})
	}

	rows, err := h.submissions.ExportForForm(ctx, form.WebformID, filters, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	dataset, err := export.FromSubmissions(form.FormName, rows, fields, h.exportZone)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := renderer.Render(dataset)
	if err != nil {
		logger.WithModule("export").Error("render export",
			zap.String("webform_id", form.WebformID),
			zap.String("format", renderer.Extension()),
			zap.Error(err))
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", safeFilename(form.WebformID), time.Now().In(h.exportZone).Format("20060102-150405"), renderer.Extension())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, renderer.ContentType(), body)
}

func (h *FormHandler) defaultsRequest(form *services.FormInfo, view string) services.DefaultsRequest {
	req := services.DefaultsRequest{WebformID: form.WebformID, Station: form.Station, View: view}
	if form.SubmissionForm != nil {
		req.SubmissionForm = *form.SubmissionForm
	}
	return req
}

func splitColumns(raw string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

func safeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "form"
	}
	return b.String()
}
