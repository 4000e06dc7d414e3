package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/database/testutil"
	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/payload"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithSeedData())
}

func createTestUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()

	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	user, err := svc.Create(context.Background(), CreateUserInput{
		Name:     "Reviewer " + email,
		Email:    email,
		Password: "correct-horse",
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

// insertSubmission stores a submission directly with a fixed creation time.
func insertSubmission(t *testing.T, db *gorm.DB, webformID, form, station, body string, createdAt time.Time) *models.ContactSubmission {
	t.Helper()

	p, err := payload.Parse([]byte(body))
	require.NoError(t, err)

	sub := &models.ContactSubmission{
		Category:   models.Station(station),
		WebformID:  stringPtr(webformID),
		Data:       []byte(body),
		FieldOrder: p.Keys(),
		CreatedAt:  createdAt.UTC(),
	}
	if form != "" {
		sub.SubmissionForm = stringPtr(form)
	}
	if station != "" {
		sub.Station = stringPtr(station)
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func mustParse(t *testing.T, body string) *payload.Payload {
	t.Helper()
	p, err := payload.Parse([]byte(body))
	require.NoError(t, err)
	return p
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
