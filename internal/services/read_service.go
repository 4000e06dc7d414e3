package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/formdesk/internal/models"
	apperrors "github.com/charlesng35/formdesk/pkg/errors"
)

// ReadState is the outcome of a read toggle.
type ReadState struct {
	IsRead bool                 `json:"is_read"`
	Reads  []models.ContactRead `json:"reads"`
}

// ReadService records which reviewers have seen a submission.
type ReadService struct {
	db *gorm.DB
}

// NewReadService constructs a ReadService.
func NewReadService(db *gorm.DB) (*ReadService, error) {
	if db == nil {
		return nil, errors.New("read service: db is required")
	}
	return &ReadService{db: db}, nil
}

// MarkRead records that userID has read the submission. Repeated and
// concurrent calls leave a single mark.
func (s *ReadService) MarkRead(ctx context.Context, submissionID, userID string) error {
	ctx = ensureContext(ctx)

	submissionID, userID, err := readKeys(submissionID, userID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureSubmission(tx, submissionID); err != nil {
			return err
		}
		if err := insertRead(tx, submissionID, userID); err != nil {
			return fmt.Errorf("read service: mark read: %w", err)
		}
		return nil
	})
}

// ToggleRead removes the user's mark when present and creates it otherwise.
func (s *ReadService) ToggleRead(ctx context.Context, submissionID, userID string) (*ReadState, error) {
	ctx = ensureContext(ctx)

	submissionID, userID, err := readKeys(submissionID, userID)
	if err != nil {
		return nil, err
	}

	state := &ReadState{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureSubmission(tx, submissionID); err != nil {
			return err
		}

		result := tx.Where("contact_submission_id = ? AND user_id = ?", submissionID, userID).
			Delete(&models.ContactRead{})
		if result.Error != nil {
			return fmt.Errorf("read service: remove read: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			state.IsRead = false
			return nil
		}

		if err := insertRead(tx, submissionID, userID); err != nil {
			return fmt.Errorf("read service: mark read: %w", err)
		}
		state.IsRead = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	reads, err := s.Reads(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	state.Reads = reads
	return state, nil
}

// Reads lists the marks on a submission with their readers, oldest first.
func (s *ReadService) Reads(ctx context.Context, submissionID string) ([]models.ContactRead, error) {
	ctx = ensureContext(ctx)

	reads := make([]models.ContactRead, 0)
	if err := s.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("contact_submission_id = ?", strings.TrimSpace(submissionID)).
		Order("read_at ASC").
		Find(&reads).Error; err != nil {
		return nil, fmt.Errorf("read service: list reads: %w", err)
	}
	return reads, nil
}

// ReadBy reports whether reads contains a mark by userID.
func ReadBy(reads []models.ContactRead, userID string) bool {
	for _, r := range reads {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

func readKeys(submissionID, userID string) (string, string, error) {
	submissionID = strings.TrimSpace(submissionID)
	userID = strings.TrimSpace(userID)
	if submissionID == "" {
		return "", "", apperrors.NewBadRequest("submission id is required")
	}
	if userID == "" {
		return "", "", apperrors.ErrUnauthorized
	}
	return submissionID, userID, nil
}

func ensureSubmission(tx *gorm.DB, submissionID string) error {
	var count int64
	if err := tx.Model(&models.ContactSubmission{}).Where("id = ?", submissionID).Count(&count).Error; err != nil {
		return fmt.Errorf("read service: load submission: %w", err)
	}
	if count == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func insertRead(tx *gorm.DB, submissionID, userID string) error {
	read := models.ContactRead{ContactSubmissionID: submissionID, UserID: userID}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contact_submission_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&read).Error
}
