package skript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
)

func TestAuthenticateClientCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "skript/ob-products skript/ob-direct-data", r.FormValue("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ob-tok","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	auth := NewAuthenticator(server.URL, "client-1", "secret-1", "skript/ob-products skript/ob-direct-data", nil, logrus.New(), false)
	token, err := auth.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ob-tok", token.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, time.Minute)
}

func TestAuthenticateDefaultsMissingExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ob-tok","token_type":"Bearer"}`))
	}))
	defer server.Close()

	auth := NewAuthenticator(server.URL, "client-1", "secret-1", "", nil, logrus.New(), false)
	token, err := auth.Authenticate(context.Background())
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, time.Minute)
}

func TestAuthenticateRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	auth := NewAuthenticator(server.URL, "client-1", "secret-1", "", nil, logrus.New(), false)
	_, err := auth.Authenticate(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
}

func TestMaskedToken(t *testing.T) {
	assert.Equal(t, "****", maskedToken("short"))
	assert.Equal(t, "abcdefghij...qrstuvwxyz", maskedToken("abcdefghijklmnopqrstuvwxyz"))
}
