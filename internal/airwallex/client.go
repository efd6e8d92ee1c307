package airwallex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
	"github.com/akhilaminc/bankfeed/internal/provider"
)

// Transaction is the Airwallex financial-transaction wire payload
type Transaction struct {
	ID              string  `json:"id"`
	Amount          float64 `json:"amount"`
	Net             float64 `json:"net"`
	Fee             float64 `json:"fee"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	Description     string  `json:"description"`
	SourceType      string  `json:"source_type"`
	SourceID        string  `json:"source_id"`
	BatchID         string  `json:"batch_id"`
	TransactionType string  `json:"transaction_type"`
	FundingSourceID string  `json:"funding_source_id"`
	CreatedAt       string  `json:"created_at"`
}

// Feed fetches financial transactions for one Airwallex client and maps them
// into canonical ledger records.
type Feed struct {
	client      *provider.Client
	clientID    string
	bankAccount string
	logger      *logrus.Logger
}

// NewFeed creates a transaction feed for one Airwallex client
func NewFeed(client *provider.Client, clientID, bankAccount string, logger *logrus.Logger) *Feed {
	return &Feed{
		client:      client,
		clientID:    clientID,
		bankAccount: bankAccount,
		logger:      logger,
	}
}

// Name returns the provider identifier
func (f *Feed) Name() string { return "airwallex" }

// Prepare returns no account map: Airwallex transactions post to the client's
// configured ledger account, so there is no per-account mapping precondition.
func (f *Feed) Prepare(ctx context.Context) (map[string]string, error) {
	return nil, nil
}

// FetchPage retrieves one page of financial transactions created strictly
// after the cursor. Timestamps go over the wire as ISO8601 UTC with a trailing
// Z.
func (f *Feed) FetchPage(ctx context.Context, after time.Time, until *time.Time, size int) ([]models.ProviderRecord, error) {
	params := url.Values{}
	params.Set("from_created_at", after.UTC().Format("2006-01-02T15:04:05Z"))
	if until != nil {
		params.Set("to_created_at", until.UTC().Format("2006-01-02T15:04:05Z"))
	}
	params.Set("page_size", strconv.Itoa(size))
	params.Set("page_num", "0")

	raw, err := f.client.Get(ctx, "financial_transactions", params)
	if err != nil {
		return nil, err
	}

	items, err := provider.NormalizePage(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize transactions page: %w", err)
	}

	records := make([]models.ProviderRecord, 0, len(items))
	for _, item := range items {
		var txn Transaction
		if err := json.Unmarshal(item, &txn); err != nil {
			f.logger.WithError(err).Warn("Skipping undecodable Airwallex transaction")
			continue
		}
		postingTime, err := ParseTimestamp(txn.CreatedAt)
		if err != nil {
			f.logger.WithError(err).WithField("transaction", txn.ID).Warn("Skipping Airwallex transaction with bad created_at")
			continue
		}
		records = append(records, models.ProviderRecord{
			ExternalID:  txn.ID,
			PostingTime: postingTime,
			Raw:         item,
		})
	}

	return records, nil
}

// Map converts a raw Airwallex transaction into a canonical ledger record. The
// bankAccount argument is unused: each feed posts to its own client account.
func (f *Feed) Map(rec models.ProviderRecord, bankAccount string) (*models.Transaction, error) {
	var txn Transaction
	if err := json.Unmarshal(rec.Raw, &txn); err != nil {
		return nil, apperrors.NewRecordError("failed to decode transaction "+rec.ExternalID, err)
	}
	return MapTransaction(&txn, f.bankAccount, "", f.logger)
}
