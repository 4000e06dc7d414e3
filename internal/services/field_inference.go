package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/payload"
	"github.com/charlesng35/formdesk/pkg/logger"
)

// DefaultInferenceSample bounds how many recent submissions are scanned per scope.
const DefaultInferenceSample = 100

// Inferred field types.
const (
	FieldTypeString  = "string"
	FieldTypeDate    = "date"
	FieldTypeInteger = "integer"
	FieldTypeFloat   = "float"
	FieldTypeBoolean = "boolean"
	FieldTypeObject  = "object"
)

var dateLike = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// FieldInfo describes one payload key observed in a scope.
type FieldInfo struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// FieldScope selects which submissions to sample. The first populated level
// wins: webform, then form type within a station, then the station.
type FieldScope struct {
	WebformID      string
	SubmissionForm string
	Station        string
}

// FieldInferenceService derives field metadata from stored payloads on every call.
type FieldInferenceService struct {
	db     *gorm.DB
	sample int
}

// NewFieldInferenceService constructs a FieldInferenceService. A non-positive
// sample uses DefaultInferenceSample.
func NewFieldInferenceService(db *gorm.DB, sample int) (*FieldInferenceService, error) {
	if db == nil {
		return nil, errors.New("field inference: db is required")
	}
	if sample <= 0 {
		sample = DefaultInferenceSample
	}
	return &FieldInferenceService{db: db, sample: sample}, nil
}

// Detect returns the distinct non-system keys seen in the scope with the type of
// their first observed value, sorted by label.
func (s *FieldInferenceService) Detect(ctx context.Context, scope FieldScope) ([]FieldInfo, error) {
	ctx = ensureContext(ctx)

	query, ok := s.scoped(s.db.WithContext(ctx), scope)
	if !ok {
		return []FieldInfo{}, nil
	}

	var rows []models.ContactSubmission
	if err := query.
		Select("id", "data", "field_order").
		Order("created_at DESC").
		Order("id DESC").
		Limit(s.sample).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("field inference: sample submissions: %w", err)
	}

	fields := make([]FieldInfo, 0)
	seen := make(map[string]struct{})
	for i := range rows {
		p, err := rows[i].Payload()
		if err != nil {
			logger.Warn("skipping undecodable submission payload", zap.String("submission_id", rows[i].ID), zap.Error(err))
			continue
		}
		for _, f := range p.Fields() {
			if IsSystemKey(f.Key) {
				continue
			}
			if _, dup := seen[f.Key]; dup {
				continue
			}
			seen[f.Key] = struct{}{}
			fields = append(fields, FieldInfo{
				Key:   f.Key,
				Type:  InferFieldType(f.Value),
				Label: FieldLabel(f.Key),
			})
		}
	}

	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].Label == fields[j].Label {
			return fields[i].Key < fields[j].Key
		}
		return fields[i].Label < fields[j].Label
	})
	return fields, nil
}

// Keys returns the keys Detect would report, in label order.
func (s *FieldInferenceService) Keys(ctx context.Context, scope FieldScope) ([]string, error) {
	fields, err := s.Detect(ctx, scope)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	return keys, nil
}

func (s *FieldInferenceService) scoped(tx *gorm.DB, scope FieldScope) (*gorm.DB, bool) {
	webformID := strings.TrimSpace(scope.WebformID)
	form := strings.TrimSpace(scope.SubmissionForm)
	station := strings.TrimSpace(scope.Station)

	tx = tx.Model(&models.ContactSubmission{})
	switch {
	case webformID != "":
		return tx.Where("webform_id = ?", webformID), true
	case form != "" && station != "":
		return tx.Where("submission_form = ? AND station = ?", form, station), true
	case station != "":
		return tx.Where("station = ?", station), true
	default:
		return tx, false
	}
}

// InferFieldType maps a payload value onto the field type vocabulary.
func InferFieldType(v payload.Value) string {
	switch v.Kind() {
	case payload.KindString:
		s, _ := v.Str()
		if dateLike.MatchString(s) {
			return FieldTypeDate
		}
		return FieldTypeString
	case payload.KindInteger:
		return FieldTypeInteger
	case payload.KindFloat:
		return FieldTypeFloat
	case payload.KindBoolean:
		return FieldTypeBoolean
	case payload.KindArray, payload.KindObject:
		return FieldTypeObject
	default:
		return FieldTypeString
	}
}
