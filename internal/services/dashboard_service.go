package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/repository"
)

// DashboardForm is one webform row on the dashboard.
type DashboardForm struct {
	WebformID        string               `json:"webform_id"`
	FormType         *string              `json:"form_type"`
	Total            int64                `json:"submission_count"`
	Unread           int64                `json:"unread_count"`
	LastSubmissionAt repository.Timestamp `json:"last_submission"`
}

// StationOverview groups the webforms of one station.
type StationOverview struct {
	Station string          `json:"station"`
	Name    string          `json:"name"`
	Total   int64           `json:"total"`
	Unread  int64           `json:"unread"`
	Forms   []DashboardForm `json:"forms"`
}

// Dashboard is the landing overview of a reviewer.
type Dashboard struct {
	Totals   repository.Totals `json:"totals"`
	Stations []StationOverview `json:"stations"`
}

// DashboardService aggregates submissions per station and form.
type DashboardService struct {
	overview *repository.OverviewRepository
	now      func() time.Time
}

// NewDashboardService builds the service on the reporting repository.
func NewDashboardService(db *gorm.DB) (*DashboardService, error) {
	if db == nil {
		return nil, errors.New("dashboard service: db is required")
	}
	overview, err := repository.NewOverviewRepositoryFromGorm(db)
	if err != nil {
		return nil, err
	}
	return &DashboardService{overview: overview, now: utcNow}, nil
}

// Overview returns every known station, in display order, with its forms.
// Forms reporting a station label outside the enumeration are appended as
// their own groups.
func (s *DashboardService) Overview(ctx context.Context, viewerID string) (*Dashboard, error) {
	ctx = ensureContext(ctx)

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	totals, err := s.overview.Totals(ctx, viewerID, midnight)
	if err != nil {
		return nil, fmt.Errorf("dashboard service: %w", err)
	}

	counts, err := s.overview.Stations(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("dashboard service: %w", err)
	}
	forms, err := s.overview.Forms(ctx, viewerID, "", 0)
	if err != nil {
		return nil, fmt.Errorf("dashboard service: %w", err)
	}

	index := make(map[string]int)
	stations := make([]StationOverview, 0, len(models.Stations()))
	for _, st := range models.Stations() {
		index[string(st)] = len(stations)
		stations = append(stations, StationOverview{
			Station: string(st),
			Name:    st.DisplayName(),
			Forms:   []DashboardForm{},
		})
	}
	for _, c := range counts {
		if i, ok := index[c.Category]; ok {
			stations[i].Total = c.Total
			stations[i].Unread = c.Unread
		}
	}

	known := len(stations)
	for _, f := range forms {
		label := "unknown"
		if f.Station.Valid && strings.TrimSpace(f.Station.String) != "" {
			label = strings.ToLower(strings.TrimSpace(f.Station.String))
		}
		i, ok := index[label]
		if !ok {
			index[label] = len(stations)
			i = len(stations)
			stations = append(stations, StationOverview{
				Station: label,
				Name:    models.Station(label).DisplayName(),
				Forms:   []DashboardForm{},
			})
		}
		row := DashboardForm{
			WebformID:        f.WebformID,
			Total:            f.Total,
			Unread:           f.Unread,
			LastSubmissionAt: f.LastSubmissionAt,
		}
		if f.SubmissionForm.Valid {
			row.FormType = stringPtr(f.SubmissionForm.String)
		}
		stations[i].Forms = append(stations[i].Forms, row)
		if i >= known {
			stations[i].Total += f.Total
			stations[i].Unread += f.Unread
		}
	}

	rest := stations[known:]
	sort.SliceStable(rest, func(a, b int) bool { return rest[a].Station < rest[b].Station })

	return &Dashboard{Totals: totals, Stations: stations}, nil
}
