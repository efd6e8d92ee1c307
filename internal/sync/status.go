package sync

import (
	"context"
	"sync"
	"time"

	"github.com/akhilaminc/bankfeed/internal/db"
	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
)

// StatusManager serves sync state reads through a small in-process cache and
// funnels all state writes through one place.
type StatusManager struct {
	store db.Store
	mu    sync.RWMutex
	cache map[string]*models.SyncState
}

func NewStatusManager(store db.Store) *StatusManager {
	return &StatusManager{
		store: store,
		cache: make(map[string]*models.SyncState),
	}
}

// Get returns the provider's sync state, preferring the cache
func (m *StatusManager) Get(ctx context.Context, provider string) (*models.SyncState, error) {
	m.mu.RLock()
	state, ok := m.cache[provider]
	m.mu.RUnlock()
	if ok {
		return state, nil
	}
	return m.Refresh(ctx, provider)
}

// Refresh bypasses the cache and reloads the state from the store. A provider
// that has never synced yields a Not Started state rather than an error.
func (m *StatusManager) Refresh(ctx context.Context, provider string) (*models.SyncState, error) {
	state, err := m.store.GetSyncState(ctx, provider)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &models.SyncState{
			Provider:  provider,
			Status:    models.SyncNotStarted,
			UpdatedAt: time.Now(),
		}
	}
	m.mu.Lock()
	m.cache[provider] = state
	m.mu.Unlock()
	return state, nil
}

// Update persists the state and replaces the cached copy
func (m *StatusManager) Update(ctx context.Context, state *models.SyncState) error {
	state.UpdatedAt = time.Now()
	if err := m.store.SaveSyncState(ctx, state); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[state.Provider] = state
	m.mu.Unlock()
	return nil
}

// RequestStop flags a running sync to stop at its next page boundary. The
// engine observes the flag itself, so the running pass may still finish the
// page it is on.
func (m *StatusManager) RequestStop(ctx context.Context, provider string) error {
	state, err := m.Refresh(ctx, provider)
	if err != nil {
		return err
	}
	if state.Status != models.SyncInProgress {
		return apperrors.NewPreconditionError("no sync in progress for provider "+provider, nil)
	}
	state.Status = models.SyncStopped
	return m.Update(ctx, state)
}

// Invalidate drops the cached state so the next read hits the store
func (m *StatusManager) Invalidate(provider string) {
	m.mu.Lock()
	delete(m.cache, provider)
	m.mu.Unlock()
}
