package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
)

func TestGetUnknownProviderReturnsNotStarted(t *testing.T) {
	m := NewStatusManager(newFakeStore())

	state, err := m.Get(context.Background(), "airwallex")
	require.NoError(t, err)

	assert.Equal(t, models.SyncNotStarted, state.Status)
	assert.Equal(t, "airwallex", state.Provider)
}

func TestGetServesFromCache(t *testing.T) {
	store := newFakeStore()
	m := NewStatusManager(store)

	_, err := m.Get(context.Background(), "airwallex")
	require.NoError(t, err)

	// a store write behind the cache is not visible until a refresh
	store.setState(&models.SyncState{Provider: "airwallex", Status: models.SyncCompleted})

	state, err := m.Get(context.Background(), "airwallex")
	require.NoError(t, err)
	assert.Equal(t, models.SyncNotStarted, state.Status)

	state, err = m.Refresh(context.Background(), "airwallex")
	require.NoError(t, err)
	assert.Equal(t, models.SyncCompleted, state.Status)
}

func TestUpdatePersistsAndCaches(t *testing.T) {
	store := newFakeStore()
	m := NewStatusManager(store)

	err := m.Update(context.Background(), &models.SyncState{
		Provider: "skript",
		Status:   models.SyncCompleted,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SyncCompleted, store.state("skript").Status)

	state, err := m.Get(context.Background(), "skript")
	require.NoError(t, err)
	assert.Equal(t, models.SyncCompleted, state.Status)
	assert.False(t, state.UpdatedAt.IsZero())
}

func TestRequestStopFlagsRunningSync(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.setState(&models.SyncState{
		Provider:  "airwallex",
		Status:    models.SyncInProgress,
		StartedAt: &now,
	})
	m := NewStatusManager(store)

	require.NoError(t, m.RequestStop(context.Background(), "airwallex"))
	assert.Equal(t, models.SyncStopped, store.state("airwallex").Status)
}

func TestRequestStopRequiresRunningSync(t *testing.T) {
	store := newFakeStore()
	store.setState(&models.SyncState{Provider: "airwallex", Status: models.SyncCompleted})
	m := NewStatusManager(store)

	err := m.RequestStop(context.Background(), "airwallex")

	require.Error(t, err)
	assert.True(t, apperrors.IsPrecondition(err))
}

func TestInvalidateDropsCache(t *testing.T) {
	store := newFakeStore()
	m := NewStatusManager(store)

	_, err := m.Get(context.Background(), "airwallex")
	require.NoError(t, err)

	store.setState(&models.SyncState{Provider: "airwallex", Status: models.SyncFailed})
	m.Invalidate("airwallex")

	state, err := m.Get(context.Background(), "airwallex")
	require.NoError(t, err)
	assert.Equal(t, models.SyncFailed, state.Status)
}
