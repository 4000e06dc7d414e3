package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formdesk/internal/database/testutil"
	"github.com/charlesng35/formdesk/internal/models"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	actor := "user-1"
	ctx := context.Background()
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID:     &actor,
		Action:     "submission.delete",
		Resource:   "contact_submission",
		ResourceID: "sub-1",
		Result:     AuditResultSuccess,
		Metadata:   map[string]any{"station": "rpr1"},
	}))
	require.NoError(t, svc.Log(ctx, AuditEntry{
		Action: "auth.login",
		Result: AuditResultFailure,
	}))

	logs, total, err := svc.List(ctx, AuditListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, logs, 2)

	filtered, total, err := svc.List(ctx, AuditListOptions{Filters: AuditFilters{Resource: "contact_submission"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "sub-1", filtered[0].ResourceID)
	require.Equal(t, "rpr1", filtered[0].Metadata["station"])
	require.NotNil(t, filtered[0].UserID)
	require.Equal(t, actor, *filtered[0].UserID)
}

func TestAuditServiceRequiresActionAndResult(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, svc.Log(context.Background(), AuditEntry{Result: AuditResultSuccess}))
	require.Error(t, svc.Log(context.Background(), AuditEntry{Action: "x"}))
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.AuditLog{
		Action:    "old.action",
		Result:    AuditResultSuccess,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -10),
	}).Error)
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "new.action", Result: AuditResultSuccess}))

	rows, err := svc.CleanupOlderThan(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	_, err = svc.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}
