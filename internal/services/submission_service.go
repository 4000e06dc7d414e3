package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/payload"
	"github.com/charlesng35/formdesk/internal/query"
	apperrors "github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/logger"
	"github.com/charlesng35/formdesk/pkg/metrics"
)

// ExportLimit caps how many submissions a single export may contain.
const ExportLimit = 10000

var (
	// ErrSubmissionNotFound indicates the requested submission does not exist.
	ErrSubmissionNotFound = apperrors.New("SUBMISSION_NOT_FOUND", "Contact submission not found", http.StatusNotFound)
	// ErrFormNotFound indicates no submission carries the requested webform id.
	ErrFormNotFound = apperrors.New("FORM_NOT_FOUND", "Form not found", http.StatusNotFound)
)

// CreateSubmissionInput is a posted contact form.
type CreateSubmissionInput struct {
	Category  models.Station
	Payload   *payload.Payload
	IPAddress string
}

// IndexOptions filters the cross-form contact message index.
type IndexOptions struct {
	Search   string
	Category string
	Status   string
	ViewerID string
	Page     int
}

// SubmissionPage is one page of submissions.
type SubmissionPage struct {
	Submissions []models.ContactSubmission `json:"data"`
	Total       int64                      `json:"total"`
	Page        int                        `json:"current_page"`
	PerPage     int                        `json:"per_page"`
	LastPage    int                        `json:"last_page"`
}

// FormInfo identifies a webform by the routing values of its submissions.
type FormInfo struct {
	WebformID      string  `json:"webform_id"`
	FormName       string  `json:"form_name"`
	Station        string  `json:"station"`
	SubmissionForm *string `json:"submission_form"`
}

// SubmissionService stores intake submissions and serves filtered listings.
type SubmissionService struct {
	db            *gorm.DB
	audit         *AuditService
	inference     *FieldInferenceService
	notifications *FieldNotificationService
	builder       *query.Builder
}

// NewSubmissionService constructs a SubmissionService. inference and
// notifications may be nil, which disables new field detection.
func NewSubmissionService(db *gorm.DB, audit *AuditService, inference *FieldInferenceService, notifications *FieldNotificationService, opts ...query.Option) (*SubmissionService, error) {
	if db == nil {
		return nil, errors.New("submission service: db is required")
	}
	return &SubmissionService{
		db:            db,
		audit:         audit,
		inference:     inference,
		notifications: notifications,
		builder:       query.NewBuilder(db, opts...),
	}, nil
}

// Create persists a posted payload verbatim. Routing values are copied out of
// the payload; the station falls back to the URL category.
func (s *SubmissionService) Create(ctx context.Context, input CreateSubmissionInput) (*models.ContactSubmission, error) {
	ctx = ensureContext(ctx)

	p := input.Payload
	if p == nil {
		p = payload.New()
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("submission service: encode payload: %w", err)
	}

	submission := &models.ContactSubmission{
		Category:       input.Category,
		WebformID:      routingValue(p, "webform_id"),
		SubmissionForm: routingValue(p, "submission_form"),
		Station:        routingValue(p, "station"),
		Data:           data,
		FieldOrder:     p.Keys(),
		IPAddress:      strings.TrimSpace(input.IPAddress),
	}
	if submission.Station == nil {
		submission.Station = stringPtr(string(input.Category))
	}

	if submission.WebformID != nil {
		if err := s.detectNewFields(ctx, *submission.WebformID, p.Keys()); err != nil {
			logger.Warn("new field detection failed",
				zap.String("webform_id", *submission.WebformID),
				zap.Error(err))
		}
	}

	if err := s.db.WithContext(ctx).Create(submission).Error; err != nil {
		metrics.SubmissionsReceived.WithLabelValues(string(input.Category), "error").Inc()
		return nil, fmt.Errorf("submission service: create submission: %w", err)
	}
	metrics.SubmissionsReceived.WithLabelValues(string(input.Category), "success").Inc()

	return submission, nil
}

// detectNewFields records keys that no earlier submission of the form carried.
// The first submission of a form defines its fields and is never reported.
func (s *SubmissionService) detectNewFields(ctx context.Context, webformID string, keys []string) error {
	if s.inference == nil || s.notifications == nil {
		return nil
	}

	existing, err := s.inference.Keys(ctx, FieldScope{WebformID: webformID})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	known := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		known[key] = struct{}{}
	}

	var fresh []string
	for _, key := range keys {
		if IsSystemKey(key) {
			continue
		}
		if _, ok := known[key]; !ok {
			fresh = append(fresh, key)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	metrics.NewFieldsDetected.Add(float64(len(fresh)))
	return s.notifications.Record(ctx, webformID, fresh)
}

// Get loads a submission with its read marks and their readers.
func (s *SubmissionService) Get(ctx context.Context, id string) (*models.ContactSubmission, error) {
	ctx = ensureContext(ctx)

	var submission models.ContactSubmission
	err := s.db.WithContext(ctx).
		Scopes(preloadReads).
		Where("id = ?", strings.TrimSpace(id)).
		Take(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("submission service: get submission: %w", err)
	}
	return &submission, nil
}

// Delete permanently removes a submission and its read marks.
func (s *SubmissionService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)

	var deleted models.ContactSubmission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&deleted).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if err := tx.Where("contact_submission_id = ?", id).Delete(&models.ContactRead{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ContactSubmission{}, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			return err
		}
		recordAudit(s.audit, ctx, AuditEntry{
			Action:     "submission.delete",
			Resource:   "contact_submission",
			ResourceID: id,
			Result:     AuditResultFailure,
		})
		return fmt.Errorf("submission service: delete submission: %w", err)
	}

	metadata := map[string]any{"category": string(deleted.Category)}
	if deleted.WebformID != nil {
		metadata["webform_id"] = *deleted.WebformID
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:     "submission.delete",
		Resource:   "contact_submission",
		ResourceID: id,
		Result:     AuditResultSuccess,
		Metadata:   metadata,
	})
	return nil
}

// Index lists submissions across forms, newest first.
func (s *SubmissionService) Index(ctx context.Context, opts IndexOptions) (*SubmissionPage, error) {
	ctx = ensureContext(ctx)

	base := s.db.WithContext(ctx).
		Model(&models.ContactSubmission{}).
		Scopes(s.builder.IndexScope(opts.Search, opts.Category, opts.Status, opts.ViewerID))

	return s.page(base, opts.Page, s.builder.OrderScope("created_at", "desc"))
}

// Form returns the routing values of a webform.
func (s *SubmissionService) Form(ctx context.Context, webformID string) (*FormInfo, error) {
	ctx = ensureContext(ctx)
	webformID = strings.TrimSpace(webformID)

	var first models.ContactSubmission
	err := s.db.WithContext(ctx).
		Select("webform_id", "submission_form", "station").
		Where("webform_id = ?", webformID).
		Order("created_at ASC").
		Take(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFormNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("submission service: load form: %w", err)
	}

	info := &FormInfo{
		WebformID:      webformID,
		FormName:       webformID,
		Station:        "unknown",
		SubmissionForm: first.SubmissionForm,
	}
	if first.SubmissionForm != nil {
		info.FormName = *first.SubmissionForm
	}
	if first.Station != nil {
		info.Station = *first.Station
	}
	return info, nil
}

// CountForForm counts every submission of a webform regardless of filters.
func (s *SubmissionService) CountForForm(ctx context.Context, webformID string) (int64, error) {
	ctx = ensureContext(ctx)

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.ContactSubmission{}).
		Where("webform_id = ?", strings.TrimSpace(webformID)).
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("submission service: count form submissions: %w", err)
	}
	return total, nil
}

// ListForForm returns one page of a webform's submissions after applying the
// reviewer's filters and sort.
func (s *SubmissionService) ListForForm(ctx context.Context, webformID string, filters query.Filters, viewerID string) (*SubmissionPage, error) {
	ctx = ensureContext(ctx)
	s.countFilters(filters, viewerID)

	return s.page(s.formQuery(ctx, webformID, filters, viewerID), filters.Page,
		s.builder.OrderScope(filters.SortColumn, filters.SortDirection))
}

// ExportForForm returns every filtered submission of a webform in list order,
// up to ExportLimit rows.
func (s *SubmissionService) ExportForForm(ctx context.Context, webformID string, filters query.Filters, viewerID string) ([]models.ContactSubmission, error) {
	ctx = ensureContext(ctx)

	var rows []models.ContactSubmission
	if err := s.formQuery(ctx, webformID, filters, viewerID).
		Scopes(s.builder.OrderScope(filters.SortColumn, filters.SortDirection)).
		Limit(ExportLimit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("submission service: export submissions: %w", err)
	}
	return rows, nil
}

// ResolveSort exposes the sort column and direction a listing will actually use.
func (s *SubmissionService) ResolveSort(column, direction string) (string, string) {
	name, desc, _ := s.builder.Sort(column, direction)
	if desc {
		return name, "desc"
	}
	return name, "asc"
}

func (s *SubmissionService) formQuery(ctx context.Context, webformID string, filters query.Filters, viewerID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.ContactSubmission{}).
		Where("contact_submissions.webform_id = ?", strings.TrimSpace(webformID)).
		Scopes(s.builder.Scope(filters, viewerID))
}

func (s *SubmissionService) page(base *gorm.DB, page int, order func(*gorm.DB) *gorm.DB) (*SubmissionPage, error) {
	if page < 1 {
		page = 1
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("submission service: count submissions: %w", err)
	}

	rows := make([]models.ContactSubmission, 0)
	if err := base.Session(&gorm.Session{}).
		Scopes(preloadReads, order, query.Paginate(page)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("submission service: list submissions: %w", err)
	}

	lastPage := int((total + query.PageSize - 1) / query.PageSize)
	if lastPage < 1 {
		lastPage = 1
	}
	return &SubmissionPage{
		Submissions: rows,
		Total:       total,
		Page:        page,
		PerPage:     query.PageSize,
		LastPage:    lastPage,
	}, nil
}

func (s *SubmissionService) countFilters(filters query.Filters, viewerID string) {
	for _, p := range s.builder.Predicates(filters, viewerID) {
		metrics.FilterQueries.WithLabelValues(p.Group).Inc()
	}
}

func preloadReads(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Reads", func(db *gorm.DB) *gorm.DB { return db.Order("read_at ASC") }).
		Preload("Reads.User", func(db *gorm.DB) *gorm.DB { return db.Unscoped() })
}

// routingValue reads a routing key from the payload. Numbers are accepted and
// kept in their JSON spelling.
func routingValue(p *payload.Payload, key string) *string {
	v, ok := p.Get(key)
	if !ok {
		return nil
	}
	switch v.Kind() {
	case payload.KindString, payload.KindInteger, payload.KindFloat:
		return stringPtr(v.Text())
	default:
		return nil
	}
}
