package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/akhilaminc/bankfeed/internal/models"
)

// TransactionExists checks whether a ledger entry with the given provider
// transaction ID has already been ingested.
func (s *PostgresStore) TransactionExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM bank_transactions WHERE external_id = $1)
	`, externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// InsertTransaction inserts a canonical transaction and returns its record ID
func (s *PostgresStore) InsertTransaction(ctx context.Context, txn *models.Transaction) (int64, error) {
	if txn == nil {
		return 0, fmt.Errorf("transaction cannot be nil")
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bank_transactions (
			provider, external_id, date, currency, deposit, withdrawal,
			description, reference_number, transaction_type, status,
			bank_account, source_type, source_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`,
		txn.Provider, txn.ExternalID, txn.Date, txn.Currency, txn.Deposit, txn.Withdrawal,
		txn.Description, txn.ReferenceNumber, txn.TransactionType, txn.Status,
		txn.BankAccount, txn.SourceType, txn.SourceID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	return id, nil
}

// SubmitTransaction finalizes an inserted ledger entry
func (s *PostgresStore) SubmitTransaction(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions SET submitted = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to submit transaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("transaction %d not found", id)
	}
	return nil
}

// ListTransactions retrieves ledger entries with pagination and date filtering
func (s *PostgresStore) ListTransactions(ctx context.Context, limit, offset int, since, until *time.Time) ([]*models.Transaction, int64, error) {
	query := `
		SELECT id, provider, external_id, date, currency, deposit, withdrawal,
			description, reference_number, transaction_type, status,
			bank_account, source_type, source_id, submitted
		FROM bank_transactions
		WHERE ($1::timestamp IS NULL OR date >= $1)
		  AND ($2::timestamp IS NULL OR date <= $2)
		ORDER BY date DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, since, until, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID, &t.Provider, &t.ExternalID, &t.Date, &t.Currency, &t.Deposit, &t.Withdrawal,
			&t.Description, &t.ReferenceNumber, &t.TransactionType, &t.Status,
			&t.BankAccount, &t.SourceType, &t.SourceID, &t.Submitted,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bank_transactions
		WHERE ($1::timestamp IS NULL OR date >= $1)
		  AND ($2::timestamp IS NULL OR date <= $2)
	`, since, until).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return txns, total, nil
}

// GetSyncState retrieves the sync state for a provider; nil when none exists
func (s *PostgresStore) GetSyncState(ctx context.Context, provider string) (*models.SyncState, error) {
	var state models.SyncState
	err := s.db.QueryRowContext(ctx, `
		SELECT provider, status, watermark, processed, total, progress,
			last_error, error_count, created_count, started_at, last_sync_at, updated_at
		FROM sync_states WHERE provider = $1
	`, provider).Scan(
		&state.Provider, &state.Status, &state.Watermark, &state.Processed, &state.Total,
		&state.Progress, &state.LastError, &state.ErrorCount, &state.CreatedCount,
		&state.StartedAt, &state.LastSyncAt, &state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return &state, nil
}

// SaveSyncState upserts the sync state for a provider
func (s *PostgresStore) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_states (
			provider, status, watermark, processed, total, progress,
			last_error, error_count, created_count, started_at, last_sync_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (provider) DO UPDATE SET
			status = EXCLUDED.status,
			watermark = EXCLUDED.watermark,
			processed = EXCLUDED.processed,
			total = EXCLUDED.total,
			progress = EXCLUDED.progress,
			last_error = EXCLUDED.last_error,
			error_count = EXCLUDED.error_count,
			created_count = EXCLUDED.created_count,
			started_at = EXCLUDED.started_at,
			last_sync_at = EXCLUDED.last_sync_at,
			updated_at = NOW()
	`, state.Provider, state.Status, state.Watermark, state.Processed, state.Total,
		state.Progress, state.LastError, state.ErrorCount, state.CreatedCount,
		state.StartedAt, state.LastSyncAt)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// TryStartSync atomically flips a provider's sync state to In Progress. It
// returns false when another run already holds the lock and is not stale.
func (s *PostgresStore) TryStartSync(ctx context.Context, provider string, staleAfter time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_states (provider, status, started_at, updated_at)
		VALUES ($1, 'In Progress', NOW(), NOW())
		ON CONFLICT (provider) DO UPDATE SET
			status = 'In Progress',
			processed = 0,
			total = 0,
			progress = 0,
			last_error = '',
			error_count = 0,
			created_count = 0,
			started_at = NOW(),
			updated_at = NOW()
		WHERE sync_states.status <> 'In Progress'
		   OR sync_states.started_at IS NULL
		   OR sync_states.started_at < NOW() - make_interval(secs => $2)
	`, provider, staleAfter.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to start sync: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SaveWatermark persists the sync watermark for a provider. The watermark only
// ever moves forward.
func (s *PostgresStore) SaveWatermark(ctx context.Context, provider string, watermark time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_states
		SET watermark = GREATEST(COALESCE(watermark, $2), $2), updated_at = NOW()
		WHERE provider = $1
	`, provider, watermark)
	if err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}

// SaveProgress persists in-flight progress counters for a provider
func (s *PostgresStore) SaveProgress(ctx context.Context, provider string, processed, total int) error {
	progress := 0.0
	if total > 0 {
		progress = float64(processed) / float64(total) * 100
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_states
		SET processed = $2, total = $3, progress = $4, updated_at = NOW()
		WHERE provider = $1
	`, provider, processed, total, progress)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// GetToken retrieves the cached bearer token for a client; nil when none exists
func (s *PostgresStore) GetToken(ctx context.Context, clientRef string) (*oauth2.Token, error) {
	var token oauth2.Token
	var expiry sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, expiry FROM provider_tokens WHERE client_ref = $1
	`, clientRef).Scan(&token.AccessToken, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if expiry.Valid {
		token.Expiry = expiry.Time
	}
	token.TokenType = "Bearer"
	return &token, nil
}

// SaveToken caches a bearer token for a client; latest write wins
func (s *PostgresStore) SaveToken(ctx context.Context, clientRef string, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_tokens (client_ref, access_token, expiry, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (client_ref) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()
	`, clientRef, token.AccessToken, token.Expiry)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// ClearToken wipes the cached token for a client, idempotently
func (s *PostgresStore) ClearToken(ctx context.Context, clientRef string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM provider_tokens WHERE client_ref = $1
	`, clientRef)
	if err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// ListAccountMappings retrieves all account mappings for a provider
func (s *PostgresStore) ListAccountMappings(ctx context.Context, provider string) ([]*models.AccountMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, provider_account_id, display_name, bank_account, currency, updated_at
		FROM account_mappings WHERE provider = $1
		ORDER BY provider_account_id
	`, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to query account mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.AccountMapping
	for rows.Next() {
		var m models.AccountMapping
		if err := rows.Scan(&m.ID, &m.Provider, &m.ProviderAccountID, &m.DisplayName, &m.BankAccount, &m.Currency, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account mapping: %w", err)
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

// SaveAccountMapping upserts an account mapping keyed by provider account ID
func (s *PostgresStore) SaveAccountMapping(ctx context.Context, mapping *models.AccountMapping) error {
	if mapping == nil {
		return fmt.Errorf("mapping cannot be nil")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_mappings (provider, provider_account_id, display_name, bank_account, currency, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (provider, provider_account_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			bank_account = EXCLUDED.bank_account,
			currency = EXCLUDED.currency,
			updated_at = NOW()
	`, mapping.Provider, mapping.ProviderAccountID, mapping.DisplayName, mapping.BankAccount, mapping.Currency)
	if err != nil {
		return fmt.Errorf("failed to save account mapping: %w", err)
	}
	return nil
}

// SaveConnectionLog records one outbound provider call
func (s *PostgresStore) SaveConnectionLog(ctx context.Context, entry *models.ConnectionLog) error {
	if entry == nil {
		return fmt.Errorf("log entry cannot be nil")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connection_logs (url, method, request_data, request_headers, response_data, status_code, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.URL, entry.Method, entry.RequestData, entry.RequestHeaders, entry.ResponseData,
		entry.StatusCode, entry.Status, entry.Message)
	if err != nil {
		return fmt.Errorf("failed to save connection log: %w", err)
	}
	return nil
}

// ListConnectionLogs retrieves connection logs, newest first
func (s *PostgresStore) ListConnectionLogs(ctx context.Context, limit, offset int) ([]*models.ConnectionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, method, request_data, request_headers, response_data, status_code, status, message, created_at
		FROM connection_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ConnectionLog
	for rows.Next() {
		var l models.ConnectionLog
		if err := rows.Scan(&l.ID, &l.URL, &l.Method, &l.RequestData, &l.RequestHeaders, &l.ResponseData,
			&l.StatusCode, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
