package provider

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/akhilaminc/bankfeed/internal/errors"
)

// TokenStore persists cached bearer tokens per client. Latest write wins;
// concurrent refreshes are acceptable duplicate work.
type TokenStore interface {
	GetToken(ctx context.Context, clientRef string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, clientRef string, token *oauth2.Token) error
	ClearToken(ctx context.Context, clientRef string) error
}

// Authenticator performs the provider-specific credential exchange and returns
// a bearer token with its expiry set.
type Authenticator interface {
	Authenticate(ctx context.Context) (*oauth2.Token, error)
}

// TokenManager obtains, caches, and invalidates bearer tokens for one client
type TokenManager interface {
	// ValidToken returns a usable bearer token, from cache unless forceFresh
	// is set or the cached token is within the expiry buffer.
	ValidToken(ctx context.Context, forceFresh bool) (string, error)

	// ClearCachedToken unconditionally wipes the cached token. Idempotent.
	ClearCachedToken(ctx context.Context) error

	// HandleInvalidation clears the cache and re-authenticates. Used when a
	// caller has independently detected the token is stale.
	HandleInvalidation(ctx context.Context) (string, error)
}

// Usable reports whether a cached token is still good for use, applying the
// safety buffer against the provider-declared expiry.
func Usable(t *oauth2.Token, buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Until(t.Expiry) > buffer
}

// Manager is the shared TokenManager implementation. Both provider variants
// use it with their own Authenticator.
type Manager struct {
	store     TokenStore
	auth      Authenticator
	clientRef string
	buffer    time.Duration
	logger    *logrus.Logger
}

// NewManager creates a token manager for one client credential
func NewManager(store TokenStore, auth Authenticator, clientRef string, buffer time.Duration, logger *logrus.Logger) *Manager {
	return &Manager{
		store:     store,
		auth:      auth,
		clientRef: clientRef,
		buffer:    buffer,
		logger:    logger,
	}
}

func (m *Manager) ValidToken(ctx context.Context, forceFresh bool) (string, error) {
	if !forceFresh {
		cached, err := m.store.GetToken(ctx, m.clientRef)
		if err != nil {
			m.logger.WithError(err).WithField("client", m.clientRef).Warn("Failed to read cached token")
		} else if Usable(cached, m.buffer) {
			return cached.AccessToken, nil
		}
	} else {
		if err := m.ClearCachedToken(ctx); err != nil {
			m.logger.WithError(err).WithField("client", m.clientRef).Warn("Failed to clear cached token")
		}
	}

	token, err := m.auth.Authenticate(ctx)
	if err != nil {
		m.logger.WithError(err).WithField("client", m.clientRef).Error("Authentication failed")
		return "", errors.NewAuthError("authentication failed for client "+Truncate(m.clientRef, 8), err)
	}

	if err := m.store.SaveToken(ctx, m.clientRef, token); err != nil {
		// A failed cache write only costs an extra login next time.
		m.logger.WithError(err).WithField("client", m.clientRef).Warn("Failed to cache token")
	}

	return token.AccessToken, nil
}

func (m *Manager) ClearCachedToken(ctx context.Context) error {
	return m.store.ClearToken(ctx, m.clientRef)
}

func (m *Manager) HandleInvalidation(ctx context.Context) (string, error) {
	if err := m.ClearCachedToken(ctx); err != nil {
		m.logger.WithError(err).WithField("client", m.clientRef).Warn("Failed to clear cached token")
	}
	return m.ValidToken(ctx, true)
}

// Truncate shortens identifiers for log titles
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
