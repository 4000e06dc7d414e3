// Package repository holds read-only reporting queries that aggregate across
// submissions. They run on sqlx over the connection pool gorm opened.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// FormSummary aggregates the submissions of one webform.
type FormSummary struct {
	WebformID        string         `db:"webform_id" json:"webform_id"`
	SubmissionForm   sql.NullString `db:"submission_form" json:"-"`
	Station          sql.NullString `db:"station" json:"-"`
	Total            int64          `db:"total" json:"total"`
	Unread           int64          `db:"unread" json:"unread"`
	LastSubmissionAt Timestamp      `db:"last_submission_at" json:"last_submission_at"`
}

// StationCount aggregates submissions per category.
type StationCount struct {
	Category string `db:"category" json:"category"`
	Total    int64  `db:"total" json:"total"`
	Unread   int64  `db:"unread" json:"unread"`
}

// Totals summarises the whole inbox for one reviewer.
type Totals struct {
	Total  int64 `db:"total" json:"total"`
	Unread int64 `db:"unread" json:"unread"`
	Today  int64 `db:"today" json:"today"`
}

// OverviewRepository runs dashboard aggregations.
type OverviewRepository struct {
	db *sqlx.DB
}

// NewOverviewRepository wraps an sqlx handle.
func NewOverviewRepository(db *sqlx.DB) *OverviewRepository {
	return &OverviewRepository{db: db}
}

// NewOverviewRepositoryFromGorm shares the connection pool of a gorm handle.
func NewOverviewRepositoryFromGorm(db *gorm.DB) (*OverviewRepository, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("overview repository: %w", err)
	}
	return NewOverviewRepository(sqlx.NewDb(sqlDB, bindDriver(db.Dialector.Name()))), nil
}

func bindDriver(dialect string) string {
	switch dialect {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

const unreadJoin = `
LEFT JOIN contact_reads r
	ON r.contact_submission_id = s.id
	AND r.user_id = ?`

// Forms lists webforms with their submission counts, most recently active
// first. An empty station includes every station.
func (r *OverviewRepository) Forms(ctx context.Context, viewerID, station string, limit int) ([]FormSummary, error) {
	query := `
SELECT
	s.webform_id AS webform_id,
	s.submission_form AS submission_form,
	s.station AS station,
	COUNT(*) AS total,
	SUM(CASE WHEN r.id IS NULL THEN 1 ELSE 0 END) AS unread,
	MAX(s.created_at) AS last_submission_at
FROM contact_submissions s` + unreadJoin + `
WHERE s.webform_id IS NOT NULL`

	args := []interface{}{viewerID}
	if station != "" {
		query += "\n\tAND s.station = ?"
		args = append(args, station)
	}
	query += `
GROUP BY s.webform_id, s.submission_form, s.station
ORDER BY last_submission_at DESC`
	if limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, limit)
	}

	items := make([]FormSummary, 0)
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list form summaries: %w", err)
	}
	return items, nil
}

// Stations counts submissions per category.
func (r *OverviewRepository) Stations(ctx context.Context, viewerID string) ([]StationCount, error) {
	query := `
SELECT
	s.category AS category,
	COUNT(*) AS total,
	SUM(CASE WHEN r.id IS NULL THEN 1 ELSE 0 END) AS unread
FROM contact_submissions s` + unreadJoin + `
GROUP BY s.category
ORDER BY s.category ASC`

	items := make([]StationCount, 0)
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), viewerID); err != nil {
		return nil, fmt.Errorf("count stations: %w", err)
	}
	return items, nil
}

// Totals counts all, unread and since-midnight submissions for viewerID.
func (r *OverviewRepository) Totals(ctx context.Context, viewerID string, since time.Time) (Totals, error) {
	query := `
SELECT
	COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN r.id IS NULL THEN 1 ELSE 0 END), 0) AS unread,
	COALESCE(SUM(CASE WHEN s.created_at >= ? THEN 1 ELSE 0 END), 0) AS today
FROM contact_submissions s` + unreadJoin

	var totals Totals
	if err := r.db.GetContext(ctx, &totals, r.db.Rebind(query), since, viewerID); err != nil {
		return Totals{}, fmt.Errorf("count totals: %w", err)
	}
	return totals, nil
}
