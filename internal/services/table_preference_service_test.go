package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
	apperrors "github.com/charlesng35/formdesk/pkg/errors"
)

func strPtr(s string) *string { return &s }

func newTestPreferenceService(t *testing.T) (*TablePreferenceService, *gorm.DB, *models.User, *models.User) {
	t.Helper()
	db := openServiceTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewTablePreferenceService(db, audit)
	require.NoError(t, err)
	owner := createTestUser(t, db, "owner@example.com", models.RoleUser)
	other := createTestUser(t, db, "other@example.com", models.RoleUser)
	return svc, db, owner, other
}

func TestPreferenceLevels(t *testing.T) {
	require.Equal(t, []string{"rpr1:survey:form123", "rpr1:survey", "rpr1", ""}, PreferenceLevels("rpr1:survey:form123"))
	require.Equal(t, []string{"rpr1:survey:form:extra", "rpr1:survey", "rpr1", ""}, PreferenceLevels("rpr1:survey:form:extra"))
	require.Equal(t, []string{"rpr1:survey", "rpr1", ""}, PreferenceLevels("rpr1:survey"))
	require.Equal(t, []string{"rpr1", ""}, PreferenceLevels("rpr1"))
	require.Equal(t, []string{""}, PreferenceLevels(""))

	require.Equal(t, "", NormaliseCategory(nil))
	require.Equal(t, "rpr1:survey", NormaliseCategory(strPtr(" rpr1 : survey ")))
}

func TestPreferenceStoreReplacesExisting(t *testing.T) {
	svc, db, owner, _ := newTestPreferenceService(t)
	ctx := context.Background()

	first, err := svc.Store(ctx, owner.ID, SavePreferenceInput{
		Category:       strPtr("rpr1:survey"),
		PreferenceName: models.DefaultPreferenceName,
		VisibleColumns: []string{"fname", "email", "fname"},
		SortConfig:     json.RawMessage(`{"column":"created_at","direction":"desc"}`),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"fname", "email"}, []string(first.VisibleColumns))

	second, err := svc.Store(ctx, owner.ID, SavePreferenceInput{
		Category:       strPtr("rpr1:survey"),
		PreferenceName: models.DefaultPreferenceName,
		VisibleColumns: []string{"city"},
		SavedFilters:   json.RawMessage(`[{"city":"Mainz"}]`),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, []string{"city"}, []string(second.VisibleColumns))
	require.Contains(t, []string{"", "null"}, string(second.SortConfig))
	require.JSONEq(t, `[{"city":"Mainz"}]`, string(second.SavedFilters))

	var count int64
	require.NoError(t, db.Model(&models.TablePreference{}).Where("user_id = ?", owner.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestPreferenceStoreValidates(t *testing.T) {
	svc, _, owner, _ := newTestPreferenceService(t)

	_, err := svc.Store(context.Background(), owner.ID, SavePreferenceInput{
		SortConfig: json.RawMessage(`"desc"`),
	})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 422, appErr.StatusCode)
	require.Contains(t, appErr.Fields, "preference_name")
	require.Contains(t, appErr.Fields, "sort_config")
}

func TestPreferenceSingleDefaultPerCategory(t *testing.T) {
	svc, db, owner, other := newTestPreferenceService(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.Store(ctx, owner.ID, SavePreferenceInput{Category: strPtr("rpr1"), PreferenceName: name, IsDefault: true})
		require.NoError(t, err)
	}
	_, err := svc.Store(ctx, owner.ID, SavePreferenceInput{Category: strPtr("bigfm"), PreferenceName: "a", IsDefault: true})
	require.NoError(t, err)
	_, err = svc.Store(ctx, other.ID, SavePreferenceInput{Category: strPtr("rpr1"), PreferenceName: "a", IsDefault: true})
	require.NoError(t, err)

	var defaults []models.TablePreference
	require.NoError(t, db.Where("user_id = ? AND category = ? AND is_default = ?", owner.ID, "rpr1", true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	require.Equal(t, "c", defaults[0].PreferenceName)

	var untouched int64
	require.NoError(t, db.Model(&models.TablePreference{}).Where("is_default = ?", true).Count(&untouched).Error)
	require.Equal(t, int64(3), untouched)

	// promoting via update demotes the previous default
	var a models.TablePreference
	require.NoError(t, db.Where("user_id = ? AND category = ? AND preference_name = ?", owner.ID, "rpr1", "a").Take(&a).Error)
	yes := true
	updated, err := svc.Update(ctx, owner.ID, a.ID, UpdatePreferenceInput{IsDefault: &yes})
	require.NoError(t, err)
	require.True(t, updated.IsDefault)

	defaults = nil
	require.NoError(t, db.Where("user_id = ? AND category = ? AND is_default = ?", owner.ID, "rpr1", true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	require.Equal(t, "a", defaults[0].PreferenceName)
}

func TestPreferenceOwnership(t *testing.T) {
	svc, _, owner, other := newTestPreferenceService(t)
	ctx := context.Background()

	pref, err := svc.Store(ctx, owner.ID, SavePreferenceInput{PreferenceName: "mine"})
	require.NoError(t, err)
	require.Nil(t, pref.CategoryOrNil())

	_, err = svc.Show(ctx, other.ID, pref.ID)
	require.ErrorIs(t, err, ErrPreferenceForbidden)
	_, err = svc.Load(ctx, other.ID, pref.ID)
	require.ErrorIs(t, err, ErrPreferenceForbidden)
	_, err = svc.Update(ctx, other.ID, pref.ID, UpdatePreferenceInput{PreferenceName: strPtr("theirs")})
	require.ErrorIs(t, err, ErrPreferenceForbidden)
	require.ErrorIs(t, svc.Delete(ctx, other.ID, pref.ID), ErrPreferenceForbidden)

	_, err = svc.Show(ctx, owner.ID, "missing")
	require.ErrorIs(t, err, ErrPreferenceNotFound)

	loaded, err := svc.Load(ctx, owner.ID, pref.ID)
	require.NoError(t, err)
	require.Equal(t, "mine", loaded.PreferenceName)

	require.NoError(t, svc.Delete(ctx, owner.ID, pref.ID))
	require.ErrorIs(t, svc.Delete(ctx, owner.ID, pref.ID), ErrPreferenceNotFound)
}

func TestPreferenceUpdateRenameConflict(t *testing.T) {
	svc, _, owner, _ := newTestPreferenceService(t)
	ctx := context.Background()

	_, err := svc.Store(ctx, owner.ID, SavePreferenceInput{PreferenceName: "one"})
	require.NoError(t, err)
	two, err := svc.Store(ctx, owner.ID, SavePreferenceInput{PreferenceName: "two"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, owner.ID, two.ID, UpdatePreferenceInput{PreferenceName: strPtr("one")})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 422, appErr.StatusCode)

	cols := []string{"zip"}
	updated, err := svc.Update(ctx, owner.ID, two.ID, UpdatePreferenceInput{VisibleColumns: &cols, SortConfig: json.RawMessage(`{"column":"id"}`)})
	require.NoError(t, err)
	require.Equal(t, []string{"zip"}, []string(updated.VisibleColumns))
	require.JSONEq(t, `{"column":"id"}`, string(updated.SortConfig))
}

func TestPreferenceIndexIncludesParentsAndGlobal(t *testing.T) {
	svc, db, owner, other := newTestPreferenceService(t)
	ctx := context.Background()

	for _, cat := range []*string{strPtr("rpr1:survey:wf-1"), strPtr("rpr1:survey"), strPtr("rpr1"), nil, strPtr("bigfm")} {
		_, err := svc.Store(ctx, owner.ID, SavePreferenceInput{Category: cat, PreferenceName: models.DefaultPreferenceName})
		require.NoError(t, err)
	}
	_, err := svc.Store(ctx, other.ID, SavePreferenceInput{PreferenceName: models.DefaultPreferenceName})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.TablePreference{}).
		Where("user_id = ? AND category = ?", owner.ID, "rpr1").
		Update("is_default", true).Error)

	prefs, err := svc.Index(ctx, owner.ID, strPtr("rpr1:survey:wf-1"), "")
	require.NoError(t, err)
	require.Len(t, prefs, 4)
	require.Equal(t, "rpr1", prefs[0].Category)

	all, err := svc.Index(ctx, owner.ID, nil, models.DefaultPreferenceName)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestPreferenceInheritance(t *testing.T) {
	svc, db, owner, _ := newTestPreferenceService(t)
	ctx := context.Background()

	station, err := svc.Store(ctx, owner.ID, SavePreferenceInput{Category: strPtr("rpr1"), PreferenceName: models.DefaultPreferenceName, IsDefault: true})
	require.NoError(t, err)

	got, err := svc.Inherited(ctx, owner.ID, strPtr("rpr1:survey:form123"), "")
	require.NoError(t, err)
	require.Equal(t, station.ID, got.Preference.ID)
	require.Equal(t, "rpr1", *got.InheritedFrom)

	// a non-default type level preference does not beat a default further up
	_, err = svc.Store(ctx, owner.ID, SavePreferenceInput{Category: strPtr("rpr1:survey"), PreferenceName: models.DefaultPreferenceName})
	require.NoError(t, err)
	got, err = svc.Inherited(ctx, owner.ID, strPtr("rpr1:survey:form123"), models.DefaultPreferenceName)
	require.NoError(t, err)
	require.Equal(t, "rpr1", *got.InheritedFrom)

	// without any default the most specific level with a preference wins
	require.NoError(t, db.Model(&models.TablePreference{}).Where("user_id = ?", owner.ID).Update("is_default", false).Error)
	got, err = svc.Inherited(ctx, owner.ID, strPtr("rpr1:survey:form123"), "")
	require.NoError(t, err)
	require.Equal(t, "rpr1:survey", *got.InheritedFrom)

	global, err := svc.Store(ctx, owner.ID, SavePreferenceInput{PreferenceName: models.DefaultPreferenceName, IsDefault: true})
	require.NoError(t, err)
	got, err = svc.Inherited(ctx, owner.ID, strPtr("bigfm:contest"), "")
	require.NoError(t, err)
	require.Equal(t, global.ID, got.Preference.ID)
	require.Equal(t, InheritedGlobal, *got.InheritedFrom)

	for _, category := range []*string{nil, strPtr(""), strPtr(" : ")} {
		got, err = svc.Inherited(ctx, owner.ID, category, "")
		require.NoError(t, err)
		require.Nil(t, got.Preference)
		require.Nil(t, got.InheritedFrom)
	}

	got, err = svc.Inherited(ctx, owner.ID, strPtr("rpr1"), "other-name")
	require.NoError(t, err)
	require.Nil(t, got.Preference)
	require.Nil(t, got.InheritedFrom)
}

func TestPreferenceInheritanceNewestWithinLevel(t *testing.T) {
	svc, db, owner, _ := newTestPreferenceService(t)
	ctx := context.Background()

	older := models.TablePreference{UserID: owner.ID, Category: "rpr1", PreferenceName: "x", BaseModel: models.BaseModel{CreatedAt: baseTime}}
	newer := models.TablePreference{UserID: owner.ID, Category: "rpr1", PreferenceName: "y", BaseModel: models.BaseModel{CreatedAt: baseTime.Add(time.Hour)}}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newer).Error)

	got, err := svc.Inherited(ctx, owner.ID, strPtr("rpr1"), "y")
	require.NoError(t, err)
	require.Equal(t, newer.ID, got.Preference.ID)
}

func TestPreferenceChangesAreAudited(t *testing.T) {
	svc, db, owner, _ := newTestPreferenceService(t)
	ctx := context.Background()

	pref, err := svc.Store(ctx, owner.ID, SavePreferenceInput{
		Category:       strPtr("bigfm"),
		PreferenceName: models.DefaultPreferenceName,
		VisibleColumns: []string{"email"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, owner.ID, pref.ID))

	var actions []string
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("resource = ? AND resource_id = ?", "table_preference", pref.ID).
		Order("created_at ASC").
		Pluck("action", &actions).Error)
	require.ElementsMatch(t, []string{"preference.save", "preference.delete"}, actions)
}
