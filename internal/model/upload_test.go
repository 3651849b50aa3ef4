package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	all := []UploadStatus{UploadStatusPending, UploadStatusProcessing, UploadStatusCompleted, UploadStatusFailed}
	legal := map[[2]UploadStatus]bool{
		{UploadStatusPending, UploadStatusProcessing}:   true,
		{UploadStatusProcessing, UploadStatusCompleted}: true,
		{UploadStatusProcessing, UploadStatusFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]UploadStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestUploadStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, UploadStatusPending.Terminal())
	assert.False(t, UploadStatusProcessing.Terminal())
	assert.True(t, UploadStatusCompleted.Terminal())
	assert.True(t, UploadStatusFailed.Terminal())
}

func TestTransitionSource(t *testing.T) {
	t.Parallel()

	from, ok := TransitionSource(UploadStatusProcessing)
	require.True(t, ok)
	assert.Equal(t, UploadStatusPending, from)

	from, ok = TransitionSource(UploadStatusCompleted)
	require.True(t, ok)
	assert.Equal(t, UploadStatusProcessing, from)

	from, ok = TransitionSource(UploadStatusFailed)
	require.True(t, ok)
	assert.Equal(t, UploadStatusProcessing, from)

	_, ok = TransitionSource(UploadStatusPending)
	assert.False(t, ok)
}

func TestParseUploadStatus(t *testing.T) {
	t.Parallel()

	st, err := ParseUploadStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, UploadStatusCompleted, st)

	_, err = ParseUploadStatus("done")
	assert.Error(t, err)

	_, err = ParseUploadStatus("Pending")
	assert.Error(t, err)
}

func TestBusinessCategory_Valid(t *testing.T) {
	t.Parallel()

	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, BusinessCategory("retail").Valid())
	assert.False(t, BusinessCategory("Makanan").Valid())
	assert.False(t, BusinessCategory("").Valid())
}

func TestPriority_Rank(t *testing.T) {
	t.Parallel()

	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Greater(t, PriorityLow.Rank(), Priority("unknown").Rank())
}
