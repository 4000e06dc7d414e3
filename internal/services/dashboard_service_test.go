package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formdesk/internal/models"
)

func TestDashboardOverviewGroupsFormsByStation(t *testing.T) {
	db := openServiceTestDB(t)
	viewer := createTestUser(t, db, "dash@example.com", models.RoleUser)

	a := insertSubmission(t, db, "wf-a", "survey", "rpr1", `{"fname":"A"}`, baseTime)
	insertSubmission(t, db, "wf-a", "survey", "rpr1", `{"fname":"B"}`, baseTime.Add(time.Hour))
	insertSubmission(t, db, "wf-b", "contest", "bigfm", `{"fname":"C"}`, baseTime.Add(2*time.Hour))
	insertSubmission(t, db, "wf-c", "", "energy", `{"fname":"D"}`, baseTime.Add(3*time.Hour))

	reads, err := NewReadService(db)
	require.NoError(t, err)
	require.NoError(t, reads.MarkRead(context.Background(), a.ID, viewer.ID))

	svc, err := NewDashboardService(db)
	require.NoError(t, err)
	svc.now = func() time.Time { return baseTime.Add(4 * time.Hour) }

	dash, err := svc.Overview(context.Background(), viewer.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(4), dash.Totals.Total)
	assert.Equal(t, int64(3), dash.Totals.Unread)
	assert.Equal(t, int64(4), dash.Totals.Today)

	require.Len(t, dash.Stations, len(models.Stations())+1)
	byStation := make(map[string]StationOverview)
	for _, st := range dash.Stations {
		byStation[st.Station] = st
	}

	assert.Equal(t, "bigfm", dash.Stations[0].Station)
	assert.Equal(t, "BigFM", dash.Stations[0].Name)

	rpr1 := byStation["rpr1"]
	require.Len(t, rpr1.Forms, 1)
	assert.Equal(t, "wf-a", rpr1.Forms[0].WebformID)
	require.NotNil(t, rpr1.Forms[0].FormType)
	assert.Equal(t, "survey", *rpr1.Forms[0].FormType)
	assert.Equal(t, int64(2), rpr1.Forms[0].Total)
	assert.Equal(t, int64(1), rpr1.Forms[0].Unread)
	assert.True(t, rpr1.Forms[0].LastSubmissionAt.Valid)
	assert.Equal(t, int64(2), rpr1.Total)

	assert.Empty(t, byStation["regenbogen"].Forms)

	other := dash.Stations[len(dash.Stations)-1]
	assert.Equal(t, "energy", other.Station)
	require.Len(t, other.Forms, 1)
	assert.Nil(t, other.Forms[0].FormType)
	assert.Equal(t, int64(1), other.Total)
}
