package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/akhilaminc/bankfeed/internal/config"
	"github.com/akhilaminc/bankfeed/internal/models"
	syncengine "github.com/akhilaminc/bankfeed/internal/sync"
)

// stubStore is an in-memory Store for handler tests
type stubStore struct {
	mu           sync.Mutex
	transactions []*models.Transaction
	states       map[string]*models.SyncState
	mappings     []*models.AccountMapping
	logs         []*models.ConnectionLog
	nextID       int64
}

func newStubStore() *stubStore {
	return &stubStore{states: make(map[string]*models.SyncState)}
}

func (s *stubStore) TransactionExists(ctx context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.transactions {
		if txn.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) InsertTransaction(ctx context.Context, txn *models.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	txn.ID = s.nextID
	s.transactions = append(s.transactions, txn)
	return s.nextID, nil
}

func (s *stubStore) SubmitTransaction(ctx context.Context, id int64) error { return nil }

func (s *stubStore) ListTransactions(ctx context.Context, limit, offset int, since, until *time.Time) ([]*models.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions, int64(len(s.transactions)), nil
}

func (s *stubStore) GetSyncState(ctx context.Context, provider string) (*models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[provider]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (s *stubStore) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.states[state.Provider] = &copied
	return nil
}

func (s *stubStore) TryStartSync(ctx context.Context, provider string, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[provider]
	if ok && state.Status == models.SyncInProgress && state.StartedAt != nil && time.Since(*state.StartedAt) < staleAfter {
		return false, nil
	}
	now := time.Now()
	if !ok {
		state = &models.SyncState{Provider: provider}
		s.states[provider] = state
	}
	state.Status = models.SyncInProgress
	state.StartedAt = &now
	return true, nil
}

func (s *stubStore) SaveWatermark(ctx context.Context, provider string, watermark time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[provider]; ok {
		if state.Watermark == nil || watermark.After(*state.Watermark) {
			state.Watermark = &watermark
		}
	}
	return nil
}

func (s *stubStore) SaveProgress(ctx context.Context, provider string, processed, total int) error {
	return nil
}

func (s *stubStore) GetToken(ctx context.Context, clientRef string) (*oauth2.Token, error) {
	return nil, nil
}

func (s *stubStore) SaveToken(ctx context.Context, clientRef string, token *oauth2.Token) error {
	return nil
}

func (s *stubStore) ClearToken(ctx context.Context, clientRef string) error { return nil }

func (s *stubStore) ListAccountMappings(ctx context.Context, provider string) ([]*models.AccountMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mappings, nil
}

func (s *stubStore) SaveAccountMapping(ctx context.Context, mapping *models.AccountMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings = append(s.mappings, mapping)
	return nil
}

func (s *stubStore) SaveConnectionLog(ctx context.Context, entry *models.ConnectionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *stubStore) ListConnectionLogs(ctx context.Context, limit, offset int) ([]*models.ConnectionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs, nil
}

// stubFeed serves one page of records then stops
type stubFeed struct {
	records []models.ProviderRecord
	served  bool
}

func (f *stubFeed) Name() string { return "airwallex" }

func (f *stubFeed) Prepare(ctx context.Context) (map[string]string, error) { return nil, nil }

func (f *stubFeed) FetchPage(ctx context.Context, after time.Time, until *time.Time, size int) ([]models.ProviderRecord, error) {
	if f.served {
		return nil, nil
	}
	f.served = true
	return f.records, nil
}

func (f *stubFeed) Map(rec models.ProviderRecord, bankAccount string) (*models.Transaction, error) {
	return &models.Transaction{
		Provider:   "airwallex",
		ExternalID: rec.ExternalID,
		Date:       rec.PostingTime,
		Currency:   "AUD",
		Deposit:    5,
	}, nil
}

func newTestRouter(store *stubStore, feeds ...syncengine.Feed) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	status := syncengine.NewStatusManager(store)
	engine := syncengine.NewEngine(store, status, syncengine.NewLogPublisher(logger), config.DefaultSyncConfig(), logger)
	if len(feeds) > 0 {
		engine.Register("airwallex", feeds...)
	}
	handler := NewHandler(engine, status, store, nil, nil, logger)
	return SetupRouter(handler)
}

func TestStartSync(t *testing.T) {
	store := newStubStore()
	feed := &stubFeed{records: []models.ProviderRecord{
		{ExternalID: "t1", PostingTime: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
		{ExternalID: "t2", PostingTime: time.Date(2025, 10, 1, 1, 0, 0, 0, time.UTC)},
	}}
	router := newTestRouter(store, feed)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/airwallex/start", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "airwallex", resp.Provider)
	assert.Equal(t, models.SyncCompleted, resp.Status)
	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 2, resp.Created)
}

func TestStartSyncConflictWhenRunning(t *testing.T) {
	store := newStubStore()
	now := time.Now()
	store.states["airwallex"] = &models.SyncState{
		Provider:  "airwallex",
		Status:    models.SyncInProgress,
		StartedAt: &now,
	}
	router := newTestRouter(store, &stubFeed{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/airwallex/start", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartSyncUnknownProvider(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/plaid/start", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartSyncRejectsInvertedWindow(t *testing.T) {
	router := newTestRouter(newStubStore(), &stubFeed{})

	body := []byte(`{"from":"2025-10-02T00:00:00Z","to":"2025-10-01T00:00:00Z"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/airwallex/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestartSyncRequiresFrom(t *testing.T) {
	router := newTestRouter(newStubStore(), &stubFeed{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/airwallex/restart", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopSyncWithoutRunningSync(t *testing.T) {
	router := newTestRouter(newStubStore(), &stubFeed{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/airwallex/stop", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopSyncFlagsRunningSync(t *testing.T) {
	store := newStubStore()
	now := time.Now()
	store.states["airwallex"] = &models.SyncState{
		Provider:  "airwallex",
		Status:    models.SyncInProgress,
		StartedAt: &now,
	}
	router := newTestRouter(store, &stubFeed{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/airwallex/stop", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.SyncStopped, store.states["airwallex"].Status)
}

func TestSyncStatus(t *testing.T) {
	store := newStubStore()
	watermark := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	store.states["skript"] = &models.SyncState{
		Provider:  "skript",
		Status:    models.SyncCompleted,
		Watermark: &watermark,
		Processed: 42,
	}
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/skript/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var state models.SyncState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, models.SyncCompleted, state.Status)
	assert.Equal(t, 42, state.Processed)
}

func TestSyncStatusUnknownProvider(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/airwallex/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var state models.SyncState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, models.SyncNotStarted, state.Status)
}

func TestListTransactions(t *testing.T) {
	store := newStubStore()
	store.transactions = []*models.Transaction{
		{ID: 1, Provider: "airwallex", ExternalID: "t1", Currency: "AUD", Deposit: 100},
	}
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?limit=10", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []*models.Transaction `json:"transactions"`
		Total        int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "t1", resp.Transactions[0].ExternalID)
}

func TestListTransactionsRejectsBadDate(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?since=yesterday", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveAccountMapping(t *testing.T) {
	store := newStubStore()
	router := newTestRouter(store)

	body := []byte(`{"provider_account_id":"acc-1","bank_account":"Main Operating - AUD","display_name":"Everyday","currency":"AUD"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/accounts/skript", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.mappings, 1)
	assert.Equal(t, "skript", store.mappings[0].Provider)
	assert.Equal(t, "Main Operating - AUD", store.mappings[0].BankAccount)
}

func TestSaveAccountMappingRequiresAccountID(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/accounts/skript", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshAccountsUnconfigured(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/skript/refresh", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(newStubStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
