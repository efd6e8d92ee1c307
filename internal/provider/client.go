package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
)

// ConnectionLogger persists one row per outbound provider call
type ConnectionLogger interface {
	SaveConnectionLog(ctx context.Context, entry *models.ConnectionLog) error
}

// Client wraps HTTP access to one provider API: it attaches a valid bearer
// token, retries exactly once on 401 after a forced refresh, raises typed
// errors, and records every call as a connection-log entry with secrets
// masked.
type Client struct {
	http      *http.Client
	baseURL   string
	tokens    TokenManager
	logs      ConnectionLogger
	logger    *logrus.Logger
	enableLog bool
	secrets   []string
}

// ClientOption allows configuring the provider client
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithAPILog toggles connection-log persistence
func WithAPILog(enabled bool) ClientOption {
	return func(c *Client) { c.enableLog = enabled }
}

// WithSecrets registers raw secret values to scrub from error text and logs
func WithSecrets(secrets ...string) ClientOption {
	return func(c *Client) { c.secrets = append(c.secrets, secrets...) }
}

// NewClient creates an authenticated provider client
func NewClient(baseURL string, tokens TokenManager, logs ConnectionLogger, logger *logrus.Logger, opts ...ClientOption) *Client {
	client := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokens:    tokens,
		logs:      logs,
		logger:    logger,
		enableLog: true,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Get performs an authenticated GET against a data endpoint
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, endpoint, params, nil)
}

// Post performs an authenticated POST against a data endpoint
func (c *Client) Post(ctx context.Context, endpoint string, params url.Values, body interface{}) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, endpoint, params, body)
}

func (c *Client) request(ctx context.Context, method, endpoint string, params url.Values, body interface{}) (json.RawMessage, error) {
	token, err := c.tokens.ValidToken(ctx, false)
	if err != nil {
		return nil, err
	}

	raw, err := c.send(ctx, method, endpoint, params, body, token)
	if apperrors.StatusCode(err) != http.StatusUnauthorized {
		return raw, err
	}

	// Token rejected: force a refresh and retry the request exactly once.
	c.logger.WithField("endpoint", endpoint).Warn("Unauthorized response, refreshing token and retrying")
	token, refreshErr := c.tokens.HandleInvalidation(ctx)
	if refreshErr != nil {
		return nil, refreshErr
	}

	raw, err = c.send(ctx, method, endpoint, params, body, token)
	if apperrors.StatusCode(err) == http.StatusUnauthorized {
		return nil, apperrors.NewAuthError("request unauthorized after token refresh", err)
	}
	return raw, err
}

func (c *Client) send(ctx context.Context, method, endpoint string, params url.Values, body interface{}, token string) (json.RawMessage, error) {
	fullURL := c.buildURL(endpoint, params)

	var payload []byte
	var reader io.Reader
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		msg := Scrub(err.Error(), c.secrets)
		c.logCall(ctx, req, payload, 0, "", msg)
		return nil, apperrors.New(apperrors.ErrAPI, msg, nil)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logCall(ctx, req, payload, resp.StatusCode, "", "failed to read response body")
		return nil, apperrors.NewAPIError(resp.StatusCode, "failed to read response body: "+err.Error())
	}

	c.logCall(ctx, req, payload, resp.StatusCode, string(respBody), http.StatusText(resp.StatusCode))

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, Scrub(string(respBody), c.secrets))
		return nil, apperrors.NewAPIError(resp.StatusCode, msg)
	}

	// Some endpoints report auth failure inside a 2xx payload.
	if msg, ok := UnauthorizedPayload(respBody); ok {
		return nil, apperrors.NewAPIError(http.StatusUnauthorized, "Unauthorized: "+msg)
	}

	return respBody, nil
}

func (c *Client) buildURL(endpoint string, params url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	return full
}

// logCall records a connection-log row. Logging failures never affect the call
// they describe.
func (c *Client) logCall(ctx context.Context, req *http.Request, payload []byte, statusCode int, respBody, message string) {
	if !c.enableLog || c.logs == nil {
		return
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}
	maskedHeaders, _ := json.Marshal(MaskMap(headers))

	requestData := maskParams(req.URL.Query())
	if len(payload) > 0 {
		requestData = Scrub(string(payload), c.secrets)
	}

	entry := &models.ConnectionLog{
		URL:            req.URL.Scheme + "://" + req.URL.Host + req.URL.Path,
		Method:         req.Method,
		RequestData:    requestData,
		RequestHeaders: string(maskedHeaders),
		ResponseData:   Scrub(respBody, c.secrets),
		StatusCode:     statusCode,
		Status:         models.LogStatusFor(statusCode),
		Message:        message,
	}
	if err := c.logs.SaveConnectionLog(ctx, entry); err != nil {
		c.logger.WithError(err).Warn("Failed to save connection log")
	}
}

func maskParams(params url.Values) string {
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	masked, _ := json.Marshal(MaskMap(flat))
	return string(masked)
}
