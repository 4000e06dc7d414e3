package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formdesk/internal/models"
)

func TestMarkReadIsIdempotent(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewReadService(db)
	require.NoError(t, err)
	user := createTestUser(t, db, "reader@example.com", models.RoleUser)
	sub := insertSubmission(t, db, "wf-1", "", "rpr1", `{"a":1}`, baseTime)

	ctx := context.Background()
	require.NoError(t, svc.MarkRead(ctx, sub.ID, user.ID))
	require.NoError(t, svc.MarkRead(ctx, sub.ID, user.ID))

	reads, err := svc.Reads(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, reads, 1)
	require.Equal(t, user.ID, reads[0].UserID)
	require.NotNil(t, reads[0].User)
	require.False(t, reads[0].ReadAt.IsZero())
}

func TestMarkReadConcurrent(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewReadService(db)
	require.NoError(t, err)
	user := createTestUser(t, db, "reader@example.com", models.RoleUser)
	sub := insertSubmission(t, db, "wf-1", "", "rpr1", `{"a":1}`, baseTime)

	// shared-cache sqlite reports table locks instead of waiting
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.MarkRead(context.Background(), sub.ID, user.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.ContactRead{}).Where("contact_submission_id = ?", sub.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestToggleReadRoundTrip(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewReadService(db)
	require.NoError(t, err)
	alice := createTestUser(t, db, "alice@example.com", models.RoleUser)
	bob := createTestUser(t, db, "bob@example.com", models.RoleAdmin)
	sub := insertSubmission(t, db, "wf-1", "", "rpr1", `{"a":1}`, baseTime)

	ctx := context.Background()
	require.NoError(t, svc.MarkRead(ctx, sub.ID, bob.ID))

	state, err := svc.ToggleRead(ctx, sub.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, state.IsRead)
	require.Len(t, state.Reads, 2)
	require.True(t, ReadBy(state.Reads, alice.ID))

	state, err = svc.ToggleRead(ctx, sub.ID, alice.ID)
	require.NoError(t, err)
	require.False(t, state.IsRead)
	require.Len(t, state.Reads, 1)
	require.False(t, ReadBy(state.Reads, alice.ID))
	require.True(t, ReadBy(state.Reads, bob.ID))
}

func TestReadServiceMissingSubmission(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewReadService(db)
	require.NoError(t, err)
	user := createTestUser(t, db, "reader@example.com", models.RoleUser)

	require.ErrorIs(t, svc.MarkRead(context.Background(), "missing", user.ID), ErrSubmissionNotFound)
	_, err = svc.ToggleRead(context.Background(), "missing", user.ID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
	require.Error(t, svc.MarkRead(context.Background(), "missing", ""))
}
