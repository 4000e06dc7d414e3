package query

import (
	"net/url"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/database/testutil"
	"github.com/charlesng35/formdesk/internal/models"
	apperrors "github.com/charlesng35/formdesk/pkg/errors"
)

var fixedNow = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB, id, body string, createdAt time.Time) {
	t.Helper()
	webform := "form-1"
	require.NoError(t, db.Create(&models.ContactSubmission{
		ID:        id,
		Category:  models.StationRPR1,
		WebformID: &webform,
		Data:      datatypes.JSON(body),
		CreatedAt: createdAt,
	}).Error)
}

func matching(t *testing.T, db *gorm.DB, scopes ...func(*gorm.DB) *gorm.DB) []string {
	t.Helper()
	var rows []models.ContactSubmission
	require.NoError(t, db.Model(&models.ContactSubmission{}).Scopes(scopes...).Find(&rows).Error)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	sort.Strings(ids)
	return ids
}

func newTestBuilder(db *gorm.DB) *Builder {
	return NewBuilder(db, WithNow(func() time.Time { return fixedNow }))
}

func TestGenderFilterExpandsSynonymsWithoutCrossMatching(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "male-title", `{"gender":"Male"}`, ts)
	seed(t, db, "male-upper", `{"gender":"MALE"}`, ts)
	seed(t, db, "male-short", `{"gender":"m"}`, ts)
	seed(t, db, "masculine", `{"gender":"masculine"}`, ts)
	seed(t, db, "sex-key", `{"sex":"male"}`, ts)
	seed(t, db, "phrase", `{"gender":"cis male"}`, ts)
	seed(t, db, "female", `{"gender":"female"}`, ts)
	seed(t, db, "female-title", `{"gender":"Female"}`, ts)
	seed(t, db, "diverse", `{"gender":"diverse"}`, ts)
	seed(t, db, "missing", `{"name":"x"}`, ts)

	b := newTestBuilder(db)

	assert.Equal(t,
		[]string{"male-short", "male-title", "male-upper", "masculine", "phrase", "sex-key"},
		matching(t, db, b.Scope(Filters{Gender: "m"}, "")),
	)
	assert.Equal(t,
		[]string{"female", "female-title"},
		matching(t, db, b.Scope(Filters{Gender: "F"}, "")),
	)
	assert.Equal(t,
		[]string{"diverse"},
		matching(t, db, b.Scope(Filters{Gender: "d"}, "")),
	)
}

func TestGenderSynonyms(t *testing.T) {
	assert.Equal(t, []string{"m", "male", "masculine"}, GenderSynonyms("M"))
	assert.Equal(t, []string{"x"}, GenderSynonyms(" X "))
}

func TestAgeFilterConvertsToBirthYear(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "adult", `{"birth_year":2008}`, ts)
	seed(t, db, "minor", `{"birth_year":2009}`, ts)
	seed(t, db, "string-year", `{"birthYear":"1990"}`, ts)
	seed(t, db, "year-of-birth", `{"year_of_birth":"2015"}`, ts)
	seed(t, db, "bday", `{"bday":"2001-04-12"}`, ts)
	seed(t, db, "birthday-minor", `{"birthday":"2012-01-01"}`, ts)
	seed(t, db, "garbage", `{"birth_year":"unknown","bday":"12.04.2001"}`, ts)
	seed(t, db, "no-age", `{"name":"x"}`, ts)

	b := newTestBuilder(db)
	min := 18
	assert.Equal(t,
		[]string{"adult", "bday", "string-year"},
		matching(t, db, b.Scope(Filters{AgeMin: &min}, "")),
	)

	max := 20
	assert.Equal(t,
		[]string{"adult", "birthday-minor", "minor", "year-of-birth"},
		matching(t, db, b.Scope(Filters{AgeMax: &max}, "")),
	)

	assert.Equal(t,
		[]string{"adult"},
		matching(t, db, b.Scope(Filters{AgeMin: &min, AgeMax: &max}, "")),
	)
}

func TestBirthYearRange(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "y1985", `{"birth_year":1985}`, ts)
	seed(t, db, "y1990", `{"birthday":"1990-12-31"}`, ts)
	seed(t, db, "y2000", `{"year_of_birth":2000}`, ts)

	b := newTestBuilder(db)
	lo, hi := 1986, 2000
	assert.Equal(t, []string{"y1990", "y2000"}, matching(t, db, b.Scope(Filters{BirthYearMin: &lo, BirthYearMax: &hi}, "")))
	assert.Equal(t, []string{"y1990", "y2000"}, matching(t, db, b.Scope(Filters{BirthYearMin: &lo}, "")))
	assert.Equal(t, []string{"y1985", "y1990", "y2000"}, matching(t, db, b.Scope(Filters{BirthYearMax: &hi}, "")))
}

func TestSearchProbesSynonymsAndWholePayload(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "fname", `{"fname":"Jane","lname":"Doe"}`, ts)
	seed(t, db, "email", `{"email":"JANE@example.com"}`, ts)
	seed(t, db, "other-key", `{"nickname":"janey"}`, ts)
	seed(t, db, "nomatch", `{"fname":"Max"}`, ts)
	seed(t, db, "percent", `{"message":"100% sure"}`, ts)

	b := newTestBuilder(db)
	assert.Equal(t, []string{"email", "fname", "other-key"}, matching(t, db, b.Scope(Filters{Search: "jane"}, "")))
	assert.Equal(t, []string{"percent"}, matching(t, db, b.Scope(Filters{Search: "0%"}, "")))
}

func TestZipAndCityFilters(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "zip", `{"zip":"55116","city":"Mainz"}`, ts)
	seed(t, db, "plz", `{"plz":55122,"place":"Mainz-Gonsenheim"}`, ts)
	seed(t, db, "postal", `{"postal_code":"60311","location":"Frankfurt"}`, ts)

	b := newTestBuilder(db)
	assert.Equal(t, []string{"plz", "zip"}, matching(t, db, b.Scope(Filters{ZipCode: "551"}, "")))
	assert.Equal(t, []string{"plz", "zip"}, matching(t, db, b.Scope(Filters{City: "mainz"}, "")))
	assert.Equal(t, []string{"postal"}, matching(t, db, b.Scope(Filters{ZipCode: "603", City: "frank"}, "")))
}

func TestRadiusExcludesMissingCoordinates(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "mainz", `{"latitude":50.0,"longitude":8.27}`, ts)
	seed(t, db, "frankfurt", `{"latitude":"50.11","longitude":"8.68"}`, ts)
	seed(t, db, "berlin", `{"latitude":52.52,"longitude":13.405}`, ts)
	seed(t, db, "no-coords", `{"city":"Mainz"}`, ts)
	seed(t, db, "half", `{"latitude":50.0}`, ts)
	seed(t, db, "junk", `{"latitude":"north","longitude":"east"}`, ts)

	b := newTestBuilder(db)
	radius, lat, lng := 50.0, 50.0, 8.27
	assert.Equal(t, []string{"frankfurt", "mainz"}, matching(t, db, b.Scope(Filters{Radius: &radius, RadiusLat: &lat, RadiusLng: &lng}, "")))

	small := 5.0
	assert.Equal(t, []string{"mainz"}, matching(t, db, b.Scope(Filters{Radius: &small, RadiusLat: &lat, RadiusLng: &lng}, "")))

	// incomplete radius parameters disable the filter
	assert.Len(t, matching(t, db, b.Scope(Filters{Radius: &radius, RadiusLat: &lat}, "")), 6)
}

func TestDateRangeIsInclusiveOfWholeDays(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seed(t, db, "may31", `{}`, time.Date(2026, 5, 31, 23, 59, 0, 0, time.UTC))
	seed(t, db, "jun01", `{}`, time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	seed(t, db, "jun02", `{}`, time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC))

	b := newTestBuilder(db)
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"jun01"}, matching(t, db, b.Scope(Filters{DateFrom: &day, DateTo: &day}, "")))
	assert.Equal(t, []string{"jun01", "jun02"}, matching(t, db, b.Scope(Filters{DateFrom: &day}, "")))
}

func TestReadStatusFilter(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "seen", `{}`, ts)
	seed(t, db, "unseen", `{}`, ts)
	seed(t, db, "seen-by-other", `{}`, ts)

	viewer := testutil.MustCreateUser(t, db, "viewer@example.com", models.RoleUser)
	other := testutil.MustCreateUser(t, db, "other@example.com", models.RoleUser)
	require.NoError(t, db.Create(&models.ContactRead{ContactSubmissionID: "seen", UserID: viewer.ID}).Error)
	require.NoError(t, db.Create(&models.ContactRead{ContactSubmissionID: "seen-by-other", UserID: other.ID}).Error)

	b := newTestBuilder(db)
	assert.Equal(t, []string{"seen"}, matching(t, db, b.Scope(Filters{Status: StatusRead}, viewer.ID)))
	assert.Equal(t, []string{"seen-by-other", "unseen"}, matching(t, db, b.Scope(Filters{Status: StatusUnread}, viewer.ID)))
	assert.Len(t, matching(t, db, b.Scope(Filters{Status: StatusAll}, viewer.ID)), 3)

	assert.Equal(t, []string{"seen"}, matching(t, db, b.IndexScope("", "", StatusRead, viewer.ID)))
}

func TestIndexScopeSearchAndCategory(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "rpr", `{"name":"Anna"}`, ts)
	require.NoError(t, db.Create(&models.ContactSubmission{
		ID: "bigfm", Category: models.StationBigFM, Data: datatypes.JSON(`{"name":"Ben"}`), CreatedAt: ts,
	}).Error)

	b := newTestBuilder(db)
	assert.Equal(t, []string{"bigfm"}, matching(t, db, b.IndexScope("", "bigfm", "", "")))
	assert.Equal(t, []string{"rpr"}, matching(t, db, b.IndexScope("anna", "", "", "")))
	assert.Equal(t, []string{"rpr"}, matching(t, db, b.IndexScope("FORM-1", "", "", "")))
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ts := fixedNow.Add(-time.Hour)
	seed(t, db, "umlaut", `{"lname":"MÜLLER","city":"KÖLN"}`, ts)
	seed(t, db, "plain", `{"lname":"Mueller"}`, ts)

	b := newTestBuilder(db)
	assert.Equal(t, []string{"umlaut"}, matching(t, db, b.IndexScope("müller", "", "", "")))
	assert.Equal(t, []string{"umlaut"}, matching(t, db, b.Scope(Filters{Search: "Müller"}, "")))
	assert.Equal(t, []string{"umlaut"}, matching(t, db, b.Scope(Filters{Search: "köln"}, "")))
}

func TestSortAllowList(t *testing.T) {
	b := NewBuilder(nil)

	name, desc, expr := b.Sort("station", "ASC")
	assert.Equal(t, "station", name)
	assert.False(t, desc)
	assert.Equal(t, "contact_submissions.station", expr)

	name, desc, _ = b.Sort("created_at; DROP TABLE users", "sideways")
	assert.Equal(t, "created_at", name)
	assert.True(t, desc)

	name, _, expr = b.Sort("data.fname", "desc")
	assert.Equal(t, "data.fname", name)
	assert.Contains(t, expr, `'$."fname"'`)

	name, _, _ = b.Sort("data.fname') --", "desc")
	assert.Equal(t, "created_at", name)
}

func TestOrderScopeAndPagination(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	base := fixedNow.Add(-24 * time.Hour)
	for i, name := range []string{"Cleo", "Anna", "Bert"} {
		seed(t, db, name, `{"fname":"`+name+`"}`, base.Add(time.Duration(i)*time.Minute))
	}

	b := newTestBuilder(db)
	var rows []models.ContactSubmission
	require.NoError(t, db.Model(&models.ContactSubmission{}).Scopes(b.OrderScope("data.fname", "asc")).Find(&rows).Error)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Anna", "Bert", "Cleo"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})

	rows = nil
	require.NoError(t, db.Model(&models.ContactSubmission{}).Scopes(b.OrderScope("", "")).Find(&rows).Error)
	assert.Equal(t, "Bert", rows[0].ID)

	for i := 0; i < 20; i++ {
		seed(t, db, "bulk-"+strconv.Itoa(i), `{}`, base)
	}
	rows = nil
	require.NoError(t, db.Model(&models.ContactSubmission{}).Scopes(Paginate(2)).Find(&rows).Error)
	assert.Len(t, rows, 8)
}

func TestParseFilters(t *testing.T) {
	f, err := ParseFilters(url.Values{
		"search":         {"  jane "},
		"age_min":        {"18"},
		"date_from":      {"2026-01-01"},
		"radius":         {"12.5"},
		"radius_lat":     {"50"},
		"radius_lng":     {"8"},
		"sort_direction": {"ASC"},
		"page":           {"3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "jane", f.Search)
	assert.Equal(t, StatusAll, f.Status)
	require.NotNil(t, f.AgeMin)
	assert.Equal(t, 18, *f.AgeMin)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *f.DateFrom)
	assert.True(t, f.HasRadius())
	assert.Equal(t, "asc", f.SortDirection)
	assert.Equal(t, 3, f.Page)

	_, err = ParseFilters(url.Values{"age_min": {"old"}, "date_to": {"yesterday"}, "status": {"maybe"}})
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	assert.Equal(t, 422, appErr.StatusCode)
	assert.Contains(t, appErr.Fields, "age_min")
	assert.Contains(t, appErr.Fields, "date_to")
	assert.Contains(t, appErr.Fields, "status")
}

func TestPredicateGroups(t *testing.T) {
	b := NewBuilder(nil, WithNow(func() time.Time { return fixedNow }))
	min := 18
	preds := b.Predicates(Filters{Search: "x", AgeMin: &min, Gender: "m", Status: StatusUnread}, "u1")

	groups := make([]string, 0, len(preds))
	for _, p := range preds {
		groups = append(groups, p.Group)
	}
	assert.Equal(t, []string{"search", "age_min", "gender", "status"}, groups)
	assert.Equal(t, []interface{}{2008, 2008, 2008, 2008, 2008}, preds[1].Args)
}
