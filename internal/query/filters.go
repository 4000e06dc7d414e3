package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/charlesng35/formdesk/pkg/errors"
)

// PageSize is the fixed number of submissions per page.
const PageSize = 15

// Read status filter values.
const (
	StatusAll    = "all"
	StatusRead   = "read"
	StatusUnread = "unread"
)

const dateLayout = "2006-01-02"

// Filters is the flat set of optional submission filters a reviewer can apply.
type Filters struct {
	Search       string     `json:"search"`
	Status       string     `json:"status"`
	DateFrom     *time.Time `json:"date_from"`
	DateTo       *time.Time `json:"date_to"`
	AgeMin       *int       `json:"age_min"`
	AgeMax       *int       `json:"age_max"`
	BirthYearMin *int       `json:"birth_year_min"`
	BirthYearMax *int       `json:"birth_year_max"`
	ZipCode      string     `json:"zip_code"`
	City         string     `json:"city"`
	Gender       string     `json:"gender"`
	Radius       *float64   `json:"radius"`
	RadiusLat    *float64   `json:"radius_lat"`
	RadiusLng    *float64   `json:"radius_lng"`

	SortColumn    string `json:"sort_column"`
	SortDirection string `json:"sort_direction"`
	Page          int    `json:"page"`
}

// HasRadius reports whether all radius parameters are present and usable.
func (f Filters) HasRadius() bool {
	return f.Radius != nil && *f.Radius > 0 && f.RadiusLat != nil && f.RadiusLng != nil
}

// ParseFilters reads filters from query parameters. Malformed numbers and dates
// produce a validation error naming every offending parameter.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Search:        strings.TrimSpace(values.Get("search")),
		Status:        strings.ToLower(strings.TrimSpace(values.Get("status"))),
		ZipCode:       strings.TrimSpace(values.Get("zip_code")),
		City:          strings.TrimSpace(values.Get("city")),
		Gender:        strings.TrimSpace(values.Get("gender")),
		SortColumn:    strings.TrimSpace(values.Get("sort_column")),
		SortDirection: strings.ToLower(strings.TrimSpace(values.Get("sort_direction"))),
		Page:          1,
	}

	problems := map[string]string{}

	switch f.Status {
	case "":
		f.Status = StatusAll
	case StatusAll, StatusRead, StatusUnread:
	default:
		problems["status"] = "must be one of all, read, unread"
	}

	f.DateFrom = parseDate(values, "date_from", problems)
	f.DateTo = parseDate(values, "date_to", problems)
	f.AgeMin = parseInt(values, "age_min", problems)
	f.AgeMax = parseInt(values, "age_max", problems)
	f.BirthYearMin = parseInt(values, "birth_year_min", problems)
	f.BirthYearMax = parseInt(values, "birth_year_max", problems)
	f.Radius = parseFloat(values, "radius", problems)
	f.RadiusLat = parseFloat(values, "radius_lat", problems)
	f.RadiusLng = parseFloat(values, "radius_lng", problems)

	if page := parseInt(values, "page", problems); page != nil && *page > 0 {
		f.Page = *page
	}

	if len(problems) > 0 {
		return f, apperrors.NewValidation(problems)
	}
	return f, nil
}

func parseDate(values url.Values, key string, problems map[string]string) *time.Time {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		problems[key] = fmt.Sprintf("must be a date formatted as %s", dateLayout)
		return nil
	}
	return &t
}

func parseInt(values url.Values, key string, problems map[string]string) *int {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		problems[key] = "must be an integer"
		return nil
	}
	return &n
}

func parseFloat(values url.Values, key string, problems map[string]string) *float64 {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		problems[key] = "must be a number"
		return nil
	}
	return &n
}
