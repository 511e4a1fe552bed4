package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hertzlab/micboost/internal/types"
)

func testSettings() types.AudioSettings {
	return types.AudioSettings{
		InputDeviceID:  "mic1",
		OutputDeviceID: "spk1",
		BoostLevel:     12,
		IsBoostEnabled: true,
	}
}

func TestCreateAssignsID(t *testing.T) {
	s := New()

	created, err := s.Create(testSettings())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.ID, "settings-"))
	assert.Len(t, created.ID, len("settings-")+8)
}

func TestCreateIgnoresProvidedID(t *testing.T) {
	s := New()

	in := testSettings()
	in.ID = "settings-hijacked"
	created, err := s.Create(in)
	require.NoError(t, err)
	assert.NotEqual(t, "settings-hijacked", created.ID)
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := New()

	created, err := s.Create(testSettings())
	require.NoError(t, err)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestCreateRejectsOutOfRangeBoost(t *testing.T) {
	s := New()

	in := testSettings()
	in.BoostLevel = 1500
	_, err := s.Create(in)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "boostLevel", verr.Errors[0].Field)
	assert.Empty(t, s.List())
}

func TestGetMissing(t *testing.T) {
	s := New()

	_, err := s.Get("settings-nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpdatePartial(t *testing.T) {
	s := New()
	created, err := s.Create(testSettings())
	require.NoError(t, err)

	boost := 24.0
	muted := true
	updated, err := s.Update(created.ID, types.AudioSettingsPatch{
		BoostLevel: &boost,
		IsMuted:    &muted,
	})
	require.NoError(t, err)

	// Patched fields change; everything else is untouched.
	assert.Equal(t, 24.0, updated.BoostLevel)
	assert.True(t, updated.IsMuted)
	assert.Equal(t, "mic1", updated.InputDeviceID)
	assert.True(t, updated.IsBoostEnabled)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestUpdateRejectsOutOfRangeBoostUnchanged(t *testing.T) {
	s := New()
	created, err := s.Create(testSettings())
	require.NoError(t, err)

	boost := 1500.0
	_, err = s.Update(created.ID, types.AudioSettingsPatch{BoostLevel: &boost})

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)

	// The stored record keeps its previous value.
	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.BoostLevel)
}

func TestUpdateMissing(t *testing.T) {
	s := New()

	boost := 6.0
	_, err := s.Update("settings-nope", types.AudioSettingsPatch{BoostLevel: &boost})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := New()
	created, err := s.Create(testSettings())
	require.NoError(t, err)

	require.NoError(t, s.Delete(created.ID))
	_, err = s.Get(created.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.ErrorIs(t, s.Delete(created.ID), types.ErrNotFound)
}

func TestListReturnsAllRecords(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		_, err := s.Create(testSettings())
		require.NoError(t, err)
	}

	assert.Len(t, s.List(), 3)
}
