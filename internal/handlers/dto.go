package handlers

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/services"
)

type readerDTO struct {
	UserID string    `json:"user_id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	ReadAt time.Time `json:"read_at"`
}

type submissionDTO struct {
	ID             string          `json:"id"`
	Category       string          `json:"category"`
	CategoryName   string          `json:"category_name"`
	WebformID      *string         `json:"webform_id"`
	SubmissionForm *string         `json:"submission_form"`
	Station        *string         `json:"station"`
	Data           json.RawMessage `json:"data"`
	IPAddress      string          `json:"ip_address"`
	CreatedAt      time.Time       `json:"created_at"`
	IsRead         bool            `json:"is_read"`
	Reads          []readerDTO     `json:"reads"`
}

func toReaders(reads []models.ContactRead) []readerDTO {
	out := make([]readerDTO, 0, len(reads))
	for _, r := range reads {
		dto := readerDTO{UserID: r.UserID, ReadAt: r.ReadAt}
		if r.User != nil {
			dto.Name = r.User.Name
			dto.Email = r.User.Email
		}
		out = append(out, dto)
	}
	return out
}

// toSubmission renders the payload with its submitted key order.
func toSubmission(s *models.ContactSubmission, viewerID string) (submissionDTO, error) {
	p, err := s.Payload()
	if err != nil {
		return submissionDTO{}, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return submissionDTO{}, err
	}
	return submissionDTO{
		ID:             s.ID,
		Category:       string(s.Category),
		CategoryName:   s.Category.DisplayName(),
		WebformID:      s.WebformID,
		SubmissionForm: s.SubmissionForm,
		Station:        s.Station,
		Data:           data,
		IPAddress:      s.IPAddress,
		CreatedAt:      s.CreatedAt,
		IsRead:         services.ReadBy(s.Reads, viewerID),
		Reads:          toReaders(s.Reads),
	}, nil
}

func toSubmissions(rows []models.ContactSubmission, viewerID string) ([]submissionDTO, error) {
	out := make([]submissionDTO, 0, len(rows))
	for i := range rows {
		dto, err := toSubmission(&rows[i], viewerID)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

type preferenceDTO struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Category       *string         `json:"category"`
	PreferenceName string          `json:"preference_name"`
	VisibleColumns []string        `json:"visible_columns"`
	SortConfig     json.RawMessage `json:"sort_config"`
	SavedFilters   json.RawMessage `json:"saved_filters"`
	IsDefault      bool            `json:"is_default"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

var jsonNull = json.RawMessage("null")

func rawOrNull(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return jsonNull
	}
	return json.RawMessage(trimmed)
}

func toPreference(p *models.TablePreference) *preferenceDTO {
	if p == nil {
		return nil
	}
	columns := []string(p.VisibleColumns)
	if columns == nil {
		columns = []string{}
	}
	return &preferenceDTO{
		ID:             p.ID,
		UserID:         p.UserID,
		Category:       p.CategoryOrNil(),
		PreferenceName: p.PreferenceName,
		VisibleColumns: columns,
		SortConfig:     rawOrNull(p.SortConfig),
		SavedFilters:   rawOrNull(p.SavedFilters),
		IsDefault:      p.IsDefault,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func toPreferences(prefs []models.TablePreference) []*preferenceDTO {
	out := make([]*preferenceDTO, 0, len(prefs))
	for i := range prefs {
		out = append(out, toPreference(&prefs[i]))
	}
	return out
}

type userDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
}

func toUser(u *models.User) userDTO {
	dto := userDTO{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.RoleName(),
		IsActive:    u.IsActive(),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
	if u.DeletedAt.Valid {
		deleted := u.DeletedAt.Time
		dto.DeletedAt = &deleted
	}
	return dto
}

func toUsers(users []models.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for i := range users {
		out = append(out, toUser(&users[i]))
	}
	return out
}
