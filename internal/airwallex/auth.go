// Package airwallex implements the payments-processor side of the bank feed:
// API-key authentication and the financial_transactions feed.
package airwallex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
	"github.com/akhilaminc/bankfeed/internal/provider"
)

const defaultTokenTTL = 3600 * time.Second

// Authenticator performs the Airwallex login exchange for one client
type Authenticator struct {
	http      *http.Client
	baseURL   string
	clientID  string
	apiKey    string
	logs      provider.ConnectionLogger
	logger    *logrus.Logger
	enableLog bool
}

// NewAuthenticator creates an authenticator for one Airwallex client
func NewAuthenticator(baseURL, clientID, apiKey string, logs provider.ConnectionLogger, logger *logrus.Logger, enableLog bool) *Authenticator {
	return &Authenticator{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		clientID:  clientID,
		apiKey:    apiKey,
		logs:      logs,
		logger:    logger,
		enableLog: enableLog,
	}
}

// Authenticate performs POST authentication/login with the x-api-key and
// x-client-id headers and returns the bearer token with its computed expiry.
func (a *Authenticator) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	loginURL := a.baseURL + "/authentication/login"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("x-client-id", a.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		msg := provider.Scrub(err.Error(), []string{a.apiKey})
		a.logAuth(ctx, loginURL, 0, "", msg)
		return nil, apperrors.NewAuthError("login request failed", fmt.Errorf("%s", msg))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}

	a.logAuth(ctx, loginURL, resp.StatusCode, string(body), http.StatusText(resp.StatusCode))

	if resp.StatusCode >= 400 {
		msg := provider.Scrub(string(body), []string{a.apiKey})
		return nil, apperrors.NewAPIError(resp.StatusCode, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg))
	}

	var loginResp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if loginResp.Token == "" {
		a.logger.WithField("client", provider.Truncate(a.clientID, 8)).Error("Authentication response missing token")
		return nil, apperrors.NewAuthError("authentication response missing token", nil)
	}

	ttl := defaultTokenTTL
	if loginResp.ExpiresIn > 0 {
		ttl = time.Duration(loginResp.ExpiresIn) * time.Second
	}

	return &oauth2.Token{
		AccessToken: loginResp.Token,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(ttl),
	}, nil
}

func (a *Authenticator) logAuth(ctx context.Context, url string, statusCode int, respBody, message string) {
	if !a.enableLog || a.logs == nil {
		return
	}
	headers, _ := json.Marshal(provider.MaskMap(map[string]string{
		"x-api-key":    a.apiKey,
		"x-client-id":  a.clientID,
		"Content-Type": "application/json",
	}))
	entry := &models.ConnectionLog{
		URL:            url,
		Method:         http.MethodPost,
		RequestHeaders: string(headers),
		ResponseData:   provider.Scrub(respBody, []string{a.apiKey}),
		StatusCode:     statusCode,
		Status:         models.LogStatusFor(statusCode),
		Message:        message,
	}
	if err := a.logs.SaveConnectionLog(ctx, entry); err != nil {
		a.logger.WithError(err).Warn("Failed to save connection log")
	}
}

// NewTokenManager builds the token manager for one Airwallex client. Cached
// tokens are keyed per client so multiple configured clients never share one.
func NewTokenManager(store provider.TokenStore, auth *Authenticator, clientID string, buffer time.Duration, logger *logrus.Logger) *provider.Manager {
	return provider.NewManager(store, auth, "airwallex_"+clientID, buffer, logger)
}
