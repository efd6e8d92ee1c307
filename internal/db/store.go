package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"golang.org/x/oauth2"

	"github.com/akhilaminc/bankfeed/internal/models"
)

// Store defines the interface for ledger and sync-state persistence
type Store interface {
	// Ledger operations
	TransactionExists(ctx context.Context, externalID string) (bool, error)
	InsertTransaction(ctx context.Context, txn *models.Transaction) (int64, error)
	SubmitTransaction(ctx context.Context, id int64) error
	ListTransactions(ctx context.Context, limit, offset int, since, until *time.Time) ([]*models.Transaction, int64, error)

	// Sync state operations
	GetSyncState(ctx context.Context, provider string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	TryStartSync(ctx context.Context, provider string, staleAfter time.Duration) (bool, error)
	SaveWatermark(ctx context.Context, provider string, watermark time.Time) error
	SaveProgress(ctx context.Context, provider string, processed, total int) error

	// Token cache operations
	GetToken(ctx context.Context, clientRef string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, clientRef string, token *oauth2.Token) error
	ClearToken(ctx context.Context, clientRef string) error

	// Account mapping operations
	ListAccountMappings(ctx context.Context, provider string) ([]*models.AccountMapping, error)
	SaveAccountMapping(ctx context.Context, mapping *models.AccountMapping) error

	// Connection log operations
	SaveConnectionLog(ctx context.Context, entry *models.ConnectionLog) error
	ListConnectionLogs(ctx context.Context, limit, offset int) ([]*models.ConnectionLog, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "internal/db/migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
