package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/formdesk/internal/models"
	apperrors "github.com/charlesng35/formdesk/pkg/errors"
)

// InheritedGlobal names the global level in inheritance results.
const InheritedGlobal = "global"

var (
	// ErrPreferenceNotFound indicates the requested preference does not exist.
	ErrPreferenceNotFound = apperrors.New("PREFERENCE_NOT_FOUND", "Preference not found", http.StatusNotFound)
	// ErrPreferenceForbidden indicates the preference belongs to another user.
	ErrPreferenceForbidden = apperrors.New("PREFERENCE_FORBIDDEN", "Unauthorized", http.StatusForbidden)
)

// SavePreferenceInput is a full preference as sent by the table view.
type SavePreferenceInput struct {
	Category       *string
	PreferenceName string
	VisibleColumns []string
	SortConfig     json.RawMessage
	SavedFilters   json.RawMessage
	IsDefault      bool
}

// UpdatePreferenceInput lists the mutable attributes of a stored preference.
// Nil members are left unchanged.
type UpdatePreferenceInput struct {
	PreferenceName *string
	VisibleColumns *[]string
	SortConfig     json.RawMessage
	SavedFilters   json.RawMessage
	IsDefault      *bool
}

// InheritedPreference is the preference a category resolves to and the level it came from.
type InheritedPreference struct {
	Preference    *models.TablePreference
	InheritedFrom *string
}

// TablePreferenceService stores per-user table layouts scoped by category.
type TablePreferenceService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewTablePreferenceService constructs a TablePreferenceService. audit may be nil.
func NewTablePreferenceService(db *gorm.DB, audit *AuditService) (*TablePreferenceService, error) {
	if db == nil {
		return nil, errors.New("table preference service: db is required")
	}
	return &TablePreferenceService{db: db, audit: audit}, nil
}

// NormaliseCategory trims a category and maps nil to the global scope.
func NormaliseCategory(category *string) string {
	if category == nil {
		return ""
	}
	parts := strings.Split(strings.TrimSpace(*category), ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Trim(strings.Join(parts, ":"), ":")
}

// PreferenceLevels lists the categories consulted for category, most specific
// first and ending with the global scope. Three or more segments address a
// form, two a form type and one a station.
func PreferenceLevels(category string) []string {
	if category == "" {
		return []string{""}
	}
	parts := strings.Split(category, ":")
	switch {
	case len(parts) >= 3:
		return []string{category, parts[0] + ":" + parts[1], parts[0], ""}
	case len(parts) == 2:
		return []string{category, parts[0], ""}
	default:
		return []string{category, ""}
	}
}

// Index lists a user's preferences. With a category, only that scope, its
// parents and the global scope are included. Defaults come first, then newest.
func (s *TablePreferenceService) Index(ctx context.Context, userID string, category *string, preferenceName string) ([]models.TablePreference, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if name := strings.TrimSpace(preferenceName); name != "" {
		query = query.Where("preference_name = ?", name)
	}
	if category != nil {
		query = query.Where("category IN ?", PreferenceLevels(NormaliseCategory(category)))
	}

	prefs := make([]models.TablePreference, 0)
	if err := query.
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&prefs).Error; err != nil {
		return nil, fmt.Errorf("table preference service: list preferences: %w", err)
	}
	return prefs, nil
}

// Store saves the preference for (user, category, name), replacing any earlier
// one. A default preference clears the default flag of the user's other
// preferences in the same category within the same transaction.
func (s *TablePreferenceService) Store(ctx context.Context, userID string, input SavePreferenceInput) (*models.TablePreference, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.PreferenceName)
	problems := map[string]string{}
	if name == "" {
		problems["preference_name"] = "failed on required"
	}
	sortConfig := checkStructuredJSON(problems, "sort_config", input.SortConfig)
	savedFilters := checkStructuredJSON(problems, "saved_filters", input.SavedFilters)
	if len(problems) > 0 {
		return nil, apperrors.NewValidation(problems)
	}

	category := NormaliseCategory(input.Category)
	pref := models.TablePreference{
		UserID:         userID,
		Category:       category,
		PreferenceName: name,
		VisibleColumns: normaliseKeys(input.VisibleColumns),
		SortConfig:     sortConfig,
		SavedFilters:   savedFilters,
		IsDefault:      input.IsDefault,
	}

	var stored models.TablePreference
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPreferenceOwner(tx, userID).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "category"}, {Name: "preference_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"visible_columns", "sort_config", "saved_filters", "is_default", "updated_at",
			}),
		}).Create(&pref).Error; err != nil {
			return err
		}

		if err := tx.Where("user_id = ? AND category = ? AND preference_name = ?", userID, category, name).
			Take(&stored).Error; err != nil {
			return err
		}

		if stored.IsDefault {
			return unsetOtherDefaults(tx, &stored)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("table preference service: store preference: %w", err)
	}
	s.recordChange(ctx, "preference.save", &stored)
	return &stored, nil
}

// Show returns a preference owned by userID.
func (s *TablePreferenceService) Show(ctx context.Context, userID, id string) (*models.TablePreference, error) {
	ctx = ensureContext(ctx)
	return s.owned(s.db.WithContext(ctx), userID, id)
}

// Load returns a preference owned by userID so the caller can apply it.
func (s *TablePreferenceService) Load(ctx context.Context, userID, id string) (*models.TablePreference, error) {
	return s.Show(ctx, userID, id)
}

// Update changes attributes of a preference owned by userID.
func (s *TablePreferenceService) Update(ctx context.Context, userID, id string, input UpdatePreferenceInput) (*models.TablePreference, error) {
	ctx = ensureContext(ctx)

	problems := map[string]string{}
	updates := map[string]interface{}{}
	if input.PreferenceName != nil {
		name := strings.TrimSpace(*input.PreferenceName)
		if name == "" {
			problems["preference_name"] = "failed on required"
		}
		updates["preference_name"] = name
	}
	if input.VisibleColumns != nil {
		updates["visible_columns"] = datatypes.JSONSlice[string](normaliseKeys(*input.VisibleColumns))
	}
	if input.SortConfig != nil {
		updates["sort_config"] = checkStructuredJSON(problems, "sort_config", input.SortConfig)
	}
	if input.SavedFilters != nil {
		updates["saved_filters"] = checkStructuredJSON(problems, "saved_filters", input.SavedFilters)
	}
	if input.IsDefault != nil {
		updates["is_default"] = *input.IsDefault
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidation(problems)
	}

	var pref *models.TablePreference
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPreferenceOwner(tx, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPreferenceNotFound
			}
			return err
		}
		var err error
		pref, err = s.owned(tx, userID, id)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(pref).Updates(updates).Error; err != nil {
				if isUniqueConstraintError(err) {
					return apperrors.NewValidation(map[string]string{"preference_name": "failed on unique"})
				}
				return err
			}
		}
		if input.IsDefault != nil && *input.IsDefault {
			if err := unsetOtherDefaults(tx, pref); err != nil {
				return err
			}
		}
		return tx.Where("id = ?", pref.ID).Take(pref).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("table preference service: update preference: %w", err)
	}
	s.recordChange(ctx, "preference.update", pref)
	return pref, nil
}

// Delete removes a preference owned by userID.
func (s *TablePreferenceService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	var deleted *models.TablePreference
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pref, err := s.owned(tx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(pref).Error; err != nil {
			return fmt.Errorf("table preference service: delete preference: %w", err)
		}
		deleted = pref
		return nil
	})
	if err != nil {
		return err
	}
	s.recordChange(ctx, "preference.delete", deleted)
	return nil
}

func (s *TablePreferenceService) recordChange(ctx context.Context, action string, pref *models.TablePreference) {
	userID := pref.UserID
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:     &userID,
		Action:     action,
		Resource:   "table_preference",
		ResourceID: pref.ID,
		Result:     AuditResultSuccess,
		Metadata: map[string]any{
			"category":        pref.Category,
			"preference_name": pref.PreferenceName,
			"is_default":      pref.IsDefault,
		},
	})
}

// Inherited resolves the preference for category by walking from the most
// specific level to the global scope. A default preference at any level wins;
// otherwise the newest preference of the first level that has one is used.
// Without a category nothing is resolved.
func (s *TablePreferenceService) Inherited(ctx context.Context, userID string, category *string, preferenceName string) (*InheritedPreference, error) {
	ctx = ensureContext(ctx)

	scope := NormaliseCategory(category)
	if scope == "" {
		return &InheritedPreference{}, nil
	}
	name := strings.TrimSpace(preferenceName)
	if name == "" {
		name = models.DefaultPreferenceName
	}
	levels := PreferenceLevels(scope)

	var candidates []models.TablePreference
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND preference_name = ? AND category IN ?", userID, name, levels).
		Order("created_at DESC").
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("table preference service: load inherited preferences: %w", err)
	}

	pick := func(match func(models.TablePreference) bool) *InheritedPreference {
		for _, level := range levels {
			for i := range candidates {
				if candidates[i].Category == level && match(candidates[i]) {
					from := level
					if from == "" {
						from = InheritedGlobal
					}
					pref := candidates[i]
					return &InheritedPreference{Preference: &pref, InheritedFrom: &from}
				}
			}
		}
		return nil
	}

	if found := pick(func(p models.TablePreference) bool { return p.IsDefault }); found != nil {
		return found, nil
	}
	if found := pick(func(models.TablePreference) bool { return true }); found != nil {
		return found, nil
	}
	return &InheritedPreference{}, nil
}

func (s *TablePreferenceService) owned(tx *gorm.DB, userID, id string) (*models.TablePreference, error) {
	var pref models.TablePreference
	err := tx.Where("id = ?", strings.TrimSpace(id)).Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPreferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("table preference service: load preference: %w", err)
	}
	if pref.UserID != userID {
		return nil, ErrPreferenceForbidden
	}
	return &pref, nil
}

// lockPreferenceOwner takes a row lock on the owning user so that concurrent
// saves of one user run one after another. sqlite ignores the clause and
// serialises writers on its own.
func lockPreferenceOwner(tx *gorm.DB, userID string) *gorm.DB {
	var owner models.User
	return tx.Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", userID).
		Take(&owner)
}

func unsetOtherDefaults(tx *gorm.DB, pref *models.TablePreference) error {
	return tx.Model(&models.TablePreference{}).
		Where("user_id = ? AND category = ? AND id <> ?", pref.UserID, pref.Category, pref.ID).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}

// checkStructuredJSON accepts null, arrays and objects. Anything else is
// reported under field.
func checkStructuredJSON(problems map[string]string, field string, raw json.RawMessage) datatypes.JSON {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if !json.Valid(trimmed) || (trimmed[0] != '[' && trimmed[0] != '{') {
		problems[field] = "failed on array"
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		problems[field] = "failed on array"
		return nil
	}
	return datatypes.JSON(buf.Bytes())
}
