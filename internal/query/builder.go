// Package query translates reviewer filter parameters into SQL predicates over
// the JSON payload column of contact submissions.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	submissionsTable = "contact_submissions"
	dataColumn       = submissionsTable + ".data"
)

var (
	searchKeys = []string{
		"name", "fname", "lname", "first_name", "last_name", "full_name",
		"email",
		"description", "message", "message_long", "message_short",
		"phone", "city", "zip",
	}
	birthYearKeys = []string{"birth_year", "birthYear", "year_of_birth"}
	birthDateKeys = []string{"bday", "birthday"}
	zipKeys       = []string{"zip", "zip_code", "postal_code", "plz"}
	cityKeys      = []string{"city", "place", "location"}
	genderKeys    = []string{"gender", "sex"}

	genderSynonyms = map[string][]string{
		"m": {"m", "male", "M", "Male", "MALE", "masculine"},
		"f": {"f", "female", "F", "Female", "FEMALE", "feminine"},
		"d": {"d", "diverse", "D", "Diverse", "DIVERSE", "other"},
	}

	sortColumns = map[string]string{
		"id":              submissionsTable + ".id",
		"created_at":      submissionsTable + ".created_at",
		"updated_at":      submissionsTable + ".updated_at",
		"category":        submissionsTable + ".category",
		"station":         submissionsTable + ".station",
		"submission_form": submissionsTable + ".submission_form",
		"webform_id":      submissionsTable + ".webform_id",
		"ip_address":      submissionsTable + ".ip_address",
	}
	sortKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
)

// Predicate is one conjunctive filter group. Alternatives inside a group are OR'd.
type Predicate struct {
	Group string
	SQL   string
	Args  []interface{}
}

// Builder produces predicates and ordering for submission queries.
type Builder struct {
	dialect Dialect
	now     func() time.Time
}

// Option customises a Builder.
type Option func(*Builder)

// WithNow overrides the clock used to convert ages into birth years.
func WithNow(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithDialect forces a dialect instead of detecting it from the connection.
func WithDialect(d Dialect) Option {
	return func(b *Builder) {
		if d != nil {
			b.dialect = d
		}
	}
}

// NewBuilder creates a Builder for the database behind db.
func NewBuilder(db *gorm.DB, opts ...Option) *Builder {
	b := &Builder{
		dialect: DialectFor(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dialect exposes the dialect in use.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Predicates returns the filter groups implied by f. Read status groups are only
// produced when viewerID is set.
func (b *Builder) Predicates(f Filters, viewerID string) []Predicate {
	var preds []Predicate

	if f.Search != "" {
		preds = append(preds, b.searchPredicate(f.Search))
	}
	if f.DateFrom != nil {
		preds = append(preds, Predicate{
			Group: "date_from",
			SQL:   submissionsTable + ".created_at >= ?",
			Args:  []interface{}{startOfDay(*f.DateFrom)},
		})
	}
	if f.DateTo != nil {
		preds = append(preds, Predicate{
			Group: "date_to",
			SQL:   submissionsTable + ".created_at < ?",
			Args:  []interface{}{startOfDay(*f.DateTo).AddDate(0, 0, 1)},
		})
	}

	switch {
	case f.BirthYearMin != nil && f.BirthYearMax != nil:
		preds = append(preds, b.yearPredicate("birth_year", "BETWEEN ? AND ?", *f.BirthYearMin, *f.BirthYearMax))
	case f.BirthYearMin != nil:
		preds = append(preds, b.yearPredicate("birth_year", ">= ?", *f.BirthYearMin))
	case f.BirthYearMax != nil:
		preds = append(preds, b.yearPredicate("birth_year", "<= ?", *f.BirthYearMax))
	}

	year := b.now().Year()
	if f.AgeMin != nil {
		preds = append(preds, b.yearPredicate("age_min", "<= ?", year-*f.AgeMin))
	}
	if f.AgeMax != nil {
		preds = append(preds, b.yearPredicate("age_max", ">= ?", year-*f.AgeMax))
	}

	if f.ZipCode != "" {
		preds = append(preds, b.likePredicate("zip_code", zipKeys, f.ZipCode))
	}
	if f.City != "" {
		preds = append(preds, b.likePredicate("city", cityKeys, f.City))
	}
	if f.Gender != "" {
		preds = append(preds, b.genderPredicate(f.Gender))
	}
	if f.HasRadius() {
		preds = append(preds, b.radiusPredicate(*f.RadiusLat, *f.RadiusLng, *f.Radius))
	}
	if viewerID != "" {
		if p, ok := readStatusPredicate(f.Status, viewerID); ok {
			preds = append(preds, p)
		}
	}

	return preds
}

// Scope applies the predicates of f to a query over contact_submissions.
func (b *Builder) Scope(f Filters, viewerID string) func(*gorm.DB) *gorm.DB {
	preds := b.Predicates(f, viewerID)
	return func(tx *gorm.DB) *gorm.DB {
		for _, p := range preds {
			tx = tx.Where(p.SQL, p.Args...)
		}
		return tx
	}
}

// IndexScope applies the contact message index filters: a search across the
// routing columns and payload, a category and a read status.
func (b *Builder) IndexScope(search, category, status, viewerID string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if search = strings.TrimSpace(search); search != "" {
			pattern := likePattern(search)
			alts := make([]string, 0, 5)
			args := make([]interface{}, 0, 5)
			for _, col := range []string{"category", "station", "submission_form", "webform_id"} {
				alts = append(alts, fmt.Sprintf("LOWER(%s.%s) LIKE ? ESCAPE '!'", submissionsTable, col))
				args = append(args, pattern)
			}
			alts = append(alts, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", b.dialect.Document(dataColumn)))
			args = append(args, pattern)
			tx = tx.Where(orGroup(alts), args...)
		}
		if category = strings.TrimSpace(category); category != "" {
			tx = tx.Where(submissionsTable+".category = ?", category)
		}
		if viewerID != "" {
			if p, ok := readStatusPredicate(status, viewerID); ok {
				tx = tx.Where(p.SQL, p.Args...)
			}
		}
		return tx
	}
}

// Sort resolves a caller supplied column and direction into an allow-listed
// ordering. Unknown columns fall back to created_at, unknown directions to desc.
func (b *Builder) Sort(column, direction string) (name string, desc bool, expr string) {
	desc = !strings.EqualFold(strings.TrimSpace(direction), "asc")
	column = strings.TrimSpace(column)

	if sqlCol, ok := sortColumns[column]; ok {
		return column, desc, sqlCol
	}
	if key, ok := strings.CutPrefix(column, "data."); ok && sortKeyPattern.MatchString(key) {
		return column, desc, b.dialect.Text(dataColumn, key)
	}
	return "created_at", desc, sortColumns["created_at"]
}

// OrderScope orders by the resolved sort column with id as a stable tiebreaker.
func (b *Builder) OrderScope(column, direction string) func(*gorm.DB) *gorm.DB {
	name, desc, expr := b.Sort(column, direction)
	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: expr, Raw: true}, Desc: desc})
		if name != "id" {
			tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: sortColumns["id"], Raw: true}, Desc: desc})
		}
		return tx
	}
}

// Paginate limits a query to one page of PageSize rows.
func Paginate(page int) func(*gorm.DB) *gorm.DB {
	if page < 1 {
		page = 1
	}
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Offset((page - 1) * PageSize).Limit(PageSize)
	}
}

// GenderSynonyms returns the lowercased values a gender filter expands to.
func GenderSynonyms(value string) []string {
	value = strings.ToLower(strings.TrimSpace(value))
	source, ok := genderSynonyms[value]
	if !ok {
		return []string{value}
	}
	seen := make(map[string]struct{}, len(source))
	out := make([]string, 0, len(source))
	for _, s := range source {
		s = strings.ToLower(s)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (b *Builder) searchPredicate(term string) Predicate {
	pattern := likePattern(term)
	alts := make([]string, 0, len(searchKeys)+1)
	args := make([]interface{}, 0, len(searchKeys)+1)
	for _, key := range searchKeys {
		alts = append(alts, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", b.dialect.Text(dataColumn, key)))
		args = append(args, pattern)
	}
	alts = append(alts, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", b.dialect.Document(dataColumn)))
	args = append(args, pattern)
	return Predicate{Group: "search", SQL: orGroup(alts), Args: args}
}

func (b *Builder) yearPredicate(group, comparison string, bounds ...int) Predicate {
	exprs := make([]string, 0, len(birthYearKeys)+len(birthDateKeys))
	for _, key := range birthYearKeys {
		exprs = append(exprs, b.dialect.Year4(b.dialect.Text(dataColumn, key)))
	}
	for _, key := range birthDateKeys {
		exprs = append(exprs, b.dialect.DateYear(b.dialect.Text(dataColumn, key)))
	}

	alts := make([]string, 0, len(exprs))
	args := make([]interface{}, 0, len(exprs)*len(bounds))
	for _, expr := range exprs {
		alts = append(alts, expr+" "+comparison)
		for _, bound := range bounds {
			args = append(args, bound)
		}
	}
	return Predicate{Group: group, SQL: orGroup(alts), Args: args}
}

func (b *Builder) likePredicate(group string, keys []string, term string) Predicate {
	pattern := likePattern(term)
	alts := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		alts = append(alts, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", b.dialect.Text(dataColumn, key)))
		args = append(args, pattern)
	}
	return Predicate{Group: group, SQL: orGroup(alts), Args: args}
}

// genderPredicate matches a synonym exactly, as the start of the stored value,
// or as the start of a later word. "male" therefore never matches "female".
func (b *Builder) genderPredicate(value string) Predicate {
	synonyms := GenderSynonyms(value)
	alts := make([]string, 0, len(genderKeys)*len(synonyms)*3)
	args := make([]interface{}, 0, cap(alts))
	for _, key := range genderKeys {
		expr := fmt.Sprintf("LOWER(%s)", b.dialect.Text(dataColumn, key))
		for _, syn := range synonyms {
			escaped := likeEscaper.Replace(syn)
			alts = append(alts,
				expr+" = ?",
				expr+" LIKE ? ESCAPE '!'",
				expr+" LIKE ? ESCAPE '!'",
			)
			args = append(args, syn, escaped+"%", "% "+escaped+"%")
		}
	}
	return Predicate{Group: "gender", SQL: orGroup(alts), Args: args}
}

func (b *Builder) radiusPredicate(lat, lng, radiusKM float64) Predicate {
	expr, refArgs := b.dialect.DistanceKM(
		b.dialect.Text(dataColumn, "latitude"),
		b.dialect.Text(dataColumn, "longitude"),
	)
	args := append(refArgs(lat, lng), radiusKM)
	return Predicate{
		Group: "radius",
		SQL:   fmt.Sprintf("(%s BETWEEN 0 AND ?)", expr),
		Args:  args,
	}
}

func readStatusPredicate(status, viewerID string) (Predicate, bool) {
	exists := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM contact_reads WHERE contact_reads.contact_submission_id = %s.id AND contact_reads.user_id = ?)",
		submissionsTable,
	)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusRead:
		return Predicate{Group: "status", SQL: exists, Args: []interface{}{viewerID}}, true
	case StatusUnread:
		return Predicate{Group: "status", SQL: "NOT " + exists, Args: []interface{}{viewerID}}, true
	default:
		return Predicate{}, false
	}
}

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

func orGroup(alts []string) string {
	return "(" + strings.Join(alts, " OR ") + ")"
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
