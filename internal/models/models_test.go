package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	assert.NotEmpty(t, base.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"role", func() *BaseModel {
			r := &Role{}
			return &r.BaseModel
		}},
		{"table_preference", func() *BaseModel {
			p := &TablePreference{}
			return &p.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			require.NoError(t, base.BeforeCreate(nil))
			assert.NotEmpty(t, base.ID)
		})
	}
}

func TestContactReadBeforeCreateStampsReadAt(t *testing.T) {
	read := &ContactRead{}
	require.NoError(t, read.BeforeCreate(nil))
	assert.NotEmpty(t, read.ID)
	assert.False(t, read.ReadAt.IsZero())
}

func TestParseStation(t *testing.T) {
	s, ok := ParseStation(" RPR1 ")
	require.True(t, ok)
	assert.Equal(t, StationRPR1, s)
	assert.Equal(t, "RPR1", s.DisplayName())

	_, ok = ParseStation("swr3")
	assert.False(t, ok)
	assert.Len(t, Stations(), 5)
	assert.Equal(t, "Radio Regenbogen", StationRegenbogen.DisplayName())
}

func TestSubmissionPayloadRestoresKeyOrder(t *testing.T) {
	sub := ContactSubmission{
		Data:       datatypes.JSON(`{"email":"a@b.c","fname":"Ann","lname":"Bee"}`),
		FieldOrder: datatypes.JSONSlice[string]{"fname", "lname", "email"},
	}

	p, err := sub.Payload()
	require.NoError(t, err)
	assert.Equal(t, []string{"fname", "lname", "email"}, p.Keys())
}

func TestTablePreferenceCategoryOrNil(t *testing.T) {
	global := TablePreference{}
	assert.Nil(t, global.CategoryOrNil())

	scoped := TablePreference{Category: "rpr1:survey"}
	require.NotNil(t, scoped.CategoryOrNil())
	assert.Equal(t, "rpr1:survey", *scoped.CategoryOrNil())
}

func TestFieldNotificationLive(t *testing.T) {
	now := time.Now()
	n := &FieldNotification{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, n.Live(now))
	assert.False(t, n.Live(now.Add(2*time.Minute)))

	var missing *FieldNotification
	assert.False(t, missing.Live(now))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleSuperAdmin))
	assert.True(t, ValidRole(RoleUser))
	assert.False(t, ValidRole("root"))
	assert.Len(t, SystemRoles(), 3)
}
