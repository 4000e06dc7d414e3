package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/pkg/logger"
	"github.com/charlesng35/formdesk/pkg/metrics"
)

// Views a default column set can be requested for.
const (
	ViewList   = "list"
	ViewDetail = "detail"
)

// Sources reported alongside resolved defaults.
const (
	DefaultsSourceConfig    = "config"
	DefaultsSourceForm      = "form"
	DefaultsSourceFrequency = "frequency"
	DefaultsSourceFallback  = "fallback"
)

const (
	formDefaultsLimit      = 4
	frequencyDefaultsLimit = 8
	frequencyThreshold     = 0.8
)

// FallbackDefaults is used when nothing better is known about a form.
var FallbackDefaults = []string{"fname", "lname", "email", "message_long"}

// ViewDefaults lists default columns per view.
type ViewDefaults struct {
	List   []string `mapstructure:"list" json:"list"`
	Detail []string `mapstructure:"detail" json:"detail"`
}

// For returns the columns configured for view.
func (v ViewDefaults) For(view string) []string {
	if view == ViewDetail {
		return v.Detail
	}
	return v.List
}

// FormDefaultsConfig holds per form type overrides and the fallback columns.
type FormDefaultsConfig struct {
	Types    map[string]ViewDefaults `mapstructure:"types" json:"types"`
	Fallback ViewDefaults            `mapstructure:"fallback" json:"fallback"`
}

// DefaultsRequest identifies the form a default column set is wanted for.
type DefaultsRequest struct {
	WebformID      string
	SubmissionForm string
	Station        string
	View           string
}

// SmartDefaults is a suggested column list and the rule that produced it.
type SmartDefaults struct {
	Fields []string `json:"fields"`
	Source string   `json:"source"`
}

// SmartDefaultsService suggests columns before a user has saved a preference.
type SmartDefaultsService struct {
	db     *gorm.DB
	config FormDefaultsConfig
	sample int
}

// NewSmartDefaultsService constructs a SmartDefaultsService.
func NewSmartDefaultsService(db *gorm.DB, config FormDefaultsConfig) (*SmartDefaultsService, error) {
	if db == nil {
		return nil, errors.New("smart defaults: db is required")
	}
	types := make(map[string]ViewDefaults, len(config.Types))
	for name, views := range config.Types {
		types[strings.ToLower(strings.TrimSpace(name))] = views
	}
	config.Types = types
	return &SmartDefaultsService{db: db, config: config, sample: DefaultInferenceSample}, nil
}

// Resolve walks the configured type override, the form's latest payload, the
// frequency of keys across the type within its station and finally the
// fallback list.
func (s *SmartDefaultsService) Resolve(ctx context.Context, req DefaultsRequest) (SmartDefaults, error) {
	ctx = ensureContext(ctx)

	view := req.View
	if view != ViewDetail {
		view = ViewList
	}
	form := strings.TrimSpace(req.SubmissionForm)
	station := strings.TrimSpace(req.Station)

	if form != "" {
		if views, ok := s.config.Types[strings.ToLower(form)]; ok {
			if cols := views.For(view); len(cols) > 0 {
				return s.result(cols, DefaultsSourceConfig), nil
			}
		}
	}

	if webformID := strings.TrimSpace(req.WebformID); webformID != "" {
		keys, err := s.fromForm(ctx, webformID)
		if err != nil {
			return SmartDefaults{}, err
		}
		if len(keys) > 0 {
			return s.result(keys, DefaultsSourceForm), nil
		}
	}

	if form != "" && station != "" {
		keys, err := s.fromFrequency(ctx, form, station)
		if err != nil {
			return SmartDefaults{}, err
		}
		if len(keys) > 0 {
			return s.result(keys, DefaultsSourceFrequency), nil
		}
	}

	if cols := s.config.Fallback.For(view); len(cols) > 0 {
		return s.result(cols, DefaultsSourceFallback), nil
	}
	return s.result(FallbackDefaults, DefaultsSourceFallback), nil
}

func (s *SmartDefaultsService) result(fields []string, source string) SmartDefaults {
	metrics.SmartDefaultSource.WithLabelValues(source).Inc()
	out := make([]string, len(fields))
	copy(out, fields)
	return SmartDefaults{Fields: out, Source: source}
}

// fromForm returns the first non-system keys of the most recent submission of
// the form that carries any.
func (s *SmartDefaultsService) fromForm(ctx context.Context, webformID string) ([]string, error) {
	rows, err := s.sampleRows(ctx, "webform_id = ?", webformID)
	if err != nil {
		return nil, fmt.Errorf("smart defaults: load form submissions: %w", err)
	}

	for i := range rows {
		p, err := rows[i].Payload()
		if err != nil {
			logger.Warn("skipping undecodable submission payload", zap.String("submission_id", rows[i].ID), zap.Error(err))
			continue
		}
		keys := make([]string, 0, formDefaultsLimit)
		for _, key := range p.Keys() {
			if IsSystemKey(key) {
				continue
			}
			keys = append(keys, key)
			if len(keys) == formDefaultsLimit {
				break
			}
		}
		if len(keys) > 0 {
			return keys, nil
		}
	}
	return nil, nil
}

// fromFrequency keeps keys present in at least 80% of sampled submissions of
// the type within the station, most frequent first.
func (s *SmartDefaultsService) fromFrequency(ctx context.Context, form, station string) ([]string, error) {
	rows, err := s.sampleRows(ctx, "submission_form = ? AND station = ?", form, station)
	if err != nil {
		return nil, fmt.Errorf("smart defaults: sample type submissions: %w", err)
	}

	counts := make(map[string]int)
	var order []string
	total := 0
	for i := range rows {
		p, err := rows[i].Payload()
		if err != nil || p.Len() == 0 {
			continue
		}
		total++
		for _, key := range p.Keys() {
			if IsSystemKey(key) {
				continue
			}
			if _, seen := counts[key]; !seen {
				order = append(order, key)
			}
			counts[key]++
		}
	}
	if total == 0 {
		return nil, nil
	}

	threshold := float64(total) * frequencyThreshold
	common := make([]string, 0, len(order))
	for _, key := range order {
		if float64(counts[key]) >= threshold {
			common = append(common, key)
		}
	}
	sort.SliceStable(common, func(i, j int) bool {
		return counts[common[i]] > counts[common[j]]
	})
	if len(common) > frequencyDefaultsLimit {
		common = common[:frequencyDefaultsLimit]
	}
	return common, nil
}

func (s *SmartDefaultsService) sampleRows(ctx context.Context, cond string, args ...interface{}) ([]models.ContactSubmission, error) {
	var rows []models.ContactSubmission
	err := s.db.WithContext(ctx).
		Model(&models.ContactSubmission{}).
		Select("id", "data", "field_order").
		Where(cond, args...).
		Order("created_at DESC").
		Order("id DESC").
		Limit(s.sample).
		Find(&rows).Error
	return rows, err
}
