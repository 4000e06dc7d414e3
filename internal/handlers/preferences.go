package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/services"
	appErrors "github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/response"
	appValidator "github.com/charlesng35/formdesk/pkg/validator"
)

// PreferenceHandler exposes the table preference store of the current user.
type PreferenceHandler struct {
	svc *services.TablePreferenceService
}

// NewPreferenceHandler wires the preference endpoints.
func NewPreferenceHandler(svc *services.TablePreferenceService) *PreferenceHandler {
	return &PreferenceHandler{svc: svc}
}

type savePreferenceRequest struct {
	Category       *string         `json:"category" validate:"omitempty,max=255,category_path"`
	PreferenceName string          `json:"preference_name" validate:"required,max=255"`
	VisibleColumns []string        `json:"visible_columns" validate:"required,min=1,dive,required,max=255"`
	SortConfig     json.RawMessage `json:"sort_config"`
	SavedFilters   json.RawMessage `json:"saved_filters"`
	IsDefault      bool            `json:"is_default"`
}

type updatePreferenceRequest struct {
	PreferenceName *string         `json:"preference_name" validate:"omitempty,min=1,max=255"`
	VisibleColumns *[]string       `json:"visible_columns" validate:"omitempty,min=1,dive,required,max=255"`
	SortConfig     json.RawMessage `json:"sort_config"`
	SavedFilters   json.RawMessage `json:"saved_filters"`
	IsDefault      *bool           `json:"is_default"`
}

type categoryQuery struct {
	Category *string `json:"category" validate:"omitempty,max=255,category_path"`
}

// GET /api/preferences
func (h *PreferenceHandler) Index(c *gin.Context) {
	category, ok := h.category(c)
	if !ok {
		return
	}
	prefs, err := h.svc.Index(requestContext(c), currentUserID(c), category, c.Query("preference_name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toPreferences(prefs))
}

// POST /api/preferences
func (h *PreferenceHandler) Store(c *gin.Context) {
	var req savePreferenceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pref, err := h.svc.Store(requestContext(c), currentUserID(c), services.SavePreferenceInput{
		Category:       req.Category,
		PreferenceName: req.PreferenceName,
		VisibleColumns: req.VisibleColumns,
		SortConfig:     req.SortConfig,
		SavedFilters:   req.SavedFilters,
		IsDefault:      req.IsDefault,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toPreference(pref))
}

// GET /api/preferences/:id
func (h *PreferenceHandler) Show(c *gin.Context) {
	pref, err := h.svc.Show(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toPreference(pref))
}

// POST /api/preferences/:id/load (GET is accepted too)
func (h *PreferenceHandler) Load(c *gin.Context) {
	pref, err := h.svc.Load(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toPreference(pref))
}

// PUT /api/preferences/:id
func (h *PreferenceHandler) Update(c *gin.Context) {
	var req updatePreferenceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pref, err := h.svc.Update(requestContext(c), currentUserID(c), c.Param("id"), services.UpdatePreferenceInput{
		PreferenceName: req.PreferenceName,
		VisibleColumns: req.VisibleColumns,
		SortConfig:     req.SortConfig,
		SavedFilters:   req.SavedFilters,
		IsDefault:      req.IsDefault,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toPreference(pref))
}

// DELETE /api/preferences/:id
func (h *PreferenceHandler) Destroy(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Preference deleted"})
}

// GET /api/preferences/inherited
func (h *PreferenceHandler) Inherited(c *gin.Context) {
	category, ok := h.category(c)
	if !ok {
		return
	}
	name := c.DefaultQuery("preference_name", models.DefaultPreferenceName)

	found, err := h.svc.Inherited(requestContext(c), currentUserID(c), category, name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"preference":     toPreference(found.Preference),
		"inherited_from": found.InheritedFrom,
	})
}

func (h *PreferenceHandler) category(c *gin.Context) (*string, bool) {
	q := categoryQuery{Category: optionalQuery(c, "category")}
	if err := appValidator.ValidateStruct(&q); err != nil {
		if ve, ok := err.(appValidator.ValidationErrors); ok {
			response.Error(c, appErrors.NewValidation(ve.Messages()))
		} else {
			response.Error(c, appErrors.NewBadRequest("invalid category"))
		}
		return nil, false
	}
	return q.Category, true
}
