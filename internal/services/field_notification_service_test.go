package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFieldNotificationRecordMergesAndExpires(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewFieldNotificationService(db, time.Hour)
	require.NoError(t, err)

	now := baseTime
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, "wf-1", []string{"phone"}))
	require.NoError(t, svc.Record(ctx, "wf-1", []string{"city", "phone"}))

	live, err := svc.Live(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, []string{"phone", "city"}, live)

	now = now.Add(2 * time.Hour)
	live, err = svc.Live(ctx, "wf-1")
	require.NoError(t, err)
	require.Empty(t, live)

	// an expired notification is replaced rather than merged
	require.NoError(t, svc.Record(ctx, "wf-1", []string{"zip"}))
	live, err = svc.Live(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, []string{"zip"}, live)
}

func TestFieldNotificationClearAndPurge(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewFieldNotificationService(db, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultNewFieldTTL, svc.ttl)

	now := baseTime
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, "wf-1", []string{"a"}))
	require.NoError(t, svc.Record(ctx, "wf-2", []string{"b"}))
	require.NoError(t, svc.Record(ctx, "", []string{"ignored"}))
	require.NoError(t, svc.Record(ctx, "wf-3", nil))

	require.NoError(t, svc.Clear(ctx, "wf-1"))
	live, err := svc.Live(ctx, "wf-1")
	require.NoError(t, err)
	require.Empty(t, live)

	now = now.Add(25 * time.Hour)
	purged, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}
