package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/akhilaminc/bankfeed/internal/db"
	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
	"github.com/akhilaminc/bankfeed/internal/provider"
	"github.com/akhilaminc/bankfeed/internal/skript"
	syncengine "github.com/akhilaminc/bankfeed/internal/sync"
)

// AccountLister fetches the provider-side account list for mapping upkeep
type AccountLister interface {
	ListAccounts(ctx context.Context, size int) ([]skript.Account, error)
}

type Handler struct {
	engine    *syncengine.Engine
	status    *syncengine.StatusManager
	store     db.Store
	accounts  AccountLister
	validator *provider.Validator
	logger    *logrus.Logger
}

func NewHandler(engine *syncengine.Engine, status *syncengine.StatusManager, store db.Store, accounts AccountLister, validator *provider.Validator, logger *logrus.Logger) *Handler {
	return &Handler{
		engine:    engine,
		status:    status,
		store:     store,
		accounts:  accounts,
		validator: validator,
		logger:    logger,
	}
}

// SyncRequest optionally bounds a manually triggered sync window
type SyncRequest struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// SyncResponse is the result of a completed manual sync
type SyncResponse struct {
	Provider  string            `json:"provider"`
	Status    models.SyncStatus `json:"status"`
	Processed int               `json:"processed"`
	Created   int               `json:"created"`
}

// ErrorResponse is the envelope for API error payloads
type ErrorResponse struct {
	Error            string   `json:"error"`
	UnmappedAccounts []string `json:"unmapped_accounts,omitempty"`
}

// StartSync runs a sync pass for the provider and blocks until it finishes
func (h *Handler) StartSync(c *gin.Context) {
	provider := c.Param("provider")

	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "to must not be before from"})
		return
	}

	h.runSync(c, provider, req.From, req.To)
}

// RestartSync re-syncs from an explicit point in time, re-walking records the
// watermark has already passed. Dedup keeps the walk idempotent.
func (h *Handler) RestartSync(c *gin.Context) {
	provider := c.Param("provider")

	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.From == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body must carry a from timestamp (RFC3339)"})
		return
	}

	h.runSync(c, provider, req.From, req.To)
}

func (h *Handler) runSync(c *gin.Context, provider string, from, to *time.Time) {
	processed, created, err := h.engine.Run(c.Request.Context(), provider, from, to)
	if err != nil {
		h.respondSyncError(c, provider, err)
		return
	}

	state, stateErr := h.status.Get(c.Request.Context(), provider)
	status := models.SyncCompleted
	if stateErr == nil {
		status = state.Status
	}

	c.JSON(http.StatusOK, SyncResponse{
		Provider:  provider,
		Status:    status,
		Processed: processed,
		Created:   created,
	})
}

func (h *Handler) respondSyncError(c *gin.Context, provider string, err error) {
	var unmapped *apperrors.UnmappedAccountsError
	switch {
	case apperrors.IsSyncInProgress(err):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.As(err, &unmapped):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:            err.Error(),
			UnmappedAccounts: unmapped.Accounts,
		})
	case apperrors.IsPrecondition(err) || apperrors.IsConfig(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case apperrors.IsAuth(err):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		h.logger.WithError(err).WithField("provider", provider).Error("Sync failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "sync failed: " + err.Error()})
	}
}

// StopSync flags the in-flight sync to halt at its next page boundary
func (h *Handler) StopSync(c *gin.Context) {
	provider := c.Param("provider")

	if err := h.status.RequestStop(c.Request.Context(), provider); err != nil {
		if apperrors.IsPrecondition(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.WithError(err).WithField("provider", provider).Error("Failed to request stop")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to request stop"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "stop requested"})
}

// SyncStatus returns the current sync state for the provider
func (h *Handler) SyncStatus(c *gin.Context) {
	provider := c.Param("provider")

	state, err := h.status.Refresh(c.Request.Context(), provider)
	if err != nil {
		h.logger.WithError(err).WithField("provider", provider).Error("Failed to load sync state")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load sync state"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// ListTransactions returns synced ledger transactions, newest first
func (h *Handler) ListTransactions(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	since, err := timeQuery(c, "since")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid since parameter (use RFC3339 format)"})
		return
	}
	until, err := timeQuery(c, "until")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid until parameter (use RFC3339 format)"})
		return
	}

	transactions, total, err := h.store.ListTransactions(c.Request.Context(), limit, offset, since, until)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list transactions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

// ListConnectionLogs returns recent outbound provider calls
func (h *Handler) ListConnectionLogs(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	logs, err := h.store.ListConnectionLogs(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list connection logs")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list connection logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "limit": limit, "offset": offset})
}

// ListAccountMappings returns the provider-account routing table
func (h *Handler) ListAccountMappings(c *gin.Context) {
	provider := c.Param("provider")

	mappings, err := h.store.ListAccountMappings(c.Request.Context(), provider)
	if err != nil {
		h.logger.WithError(err).WithField("provider", provider).Error("Failed to list account mappings")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list account mappings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": mappings})
}

// AccountMappingRequest binds one provider account to a ledger bank account
type AccountMappingRequest struct {
	ProviderAccountID string `json:"provider_account_id" binding:"required"`
	BankAccount       string `json:"bank_account"`
	DisplayName       string `json:"display_name"`
	Currency          string `json:"currency"`
}

// SaveAccountMapping creates or updates one account mapping
func (h *Handler) SaveAccountMapping(c *gin.Context) {
	provider := c.Param("provider")

	var req AccountMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	mapping := &models.AccountMapping{
		Provider:          provider,
		ProviderAccountID: req.ProviderAccountID,
		BankAccount:       req.BankAccount,
		DisplayName:       req.DisplayName,
		Currency:          req.Currency,
	}
	if err := h.store.SaveAccountMapping(c.Request.Context(), mapping); err != nil {
		h.logger.WithError(err).WithField("provider", provider).Error("Failed to save account mapping")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save account mapping"})
		return
	}

	c.JSON(http.StatusOK, mapping)
}

// RefreshAccounts pulls the provider's account list and upserts mappings.
// Ledger bindings already made are preserved.
func (h *Handler) RefreshAccounts(c *gin.Context) {
	if h.accounts == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "account discovery is not configured"})
		return
	}

	accounts, err := h.accounts.ListAccounts(c.Request.Context(), 100)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch provider accounts")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to fetch provider accounts: " + err.Error()})
		return
	}

	existing, err := h.store.ListAccountMappings(c.Request.Context(), "skript")
	if err != nil {
		h.logger.WithError(err).Error("Failed to list account mappings")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list account mappings"})
		return
	}
	bound := make(map[string]string, len(existing))
	for _, m := range existing {
		bound[m.ProviderAccountID] = m.BankAccount
	}

	for _, account := range accounts {
		mapping := &models.AccountMapping{
			Provider:          "skript",
			ProviderAccountID: account.AccountID,
			DisplayName:       account.DisplayName,
			Currency:          account.Currency,
			BankAccount:       bound[account.AccountID],
		}
		if err := h.store.SaveAccountMapping(c.Request.Context(), mapping); err != nil {
			h.logger.WithError(err).WithField("account_id", account.AccountID).Error("Failed to save account mapping")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save account mapping"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"accounts": len(accounts)})
}

// ValidateCredentials forces a fresh credential exchange for every configured
// client and reports each outcome
func (h *Handler) ValidateCredentials(c *gin.Context) {
	if h.validator == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no provider credentials configured"})
		return
	}

	checks := h.validator.Validate(c.Request.Context())
	status := http.StatusOK
	for _, check := range checks {
		if !check.OK {
			status = http.StatusBadGateway
			break
		}
	}
	c.JSON(status, gin.H{"credentials": checks})
}

// Health reports service liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func intQuery(c *gin.Context, name string, defaultValue int) int {
	value := c.Query(name)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	value := c.Query(name)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
