package skript

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

const filterTimeLayout = "2006-01-02 15:04:05"

// Transaction is the Skript transaction wire payload
type Transaction struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"accountId"`
	Amount          flexFloat `json:"amount"`
	Currency        string    `json:"currency"`
	Description     string    `json:"description"`
	Reference       string    `json:"reference"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	PostingDateTime string    `json:"postingDateTime"`
	DataHolderName  string    `json:"dataHolderName"`
}

// Account is the Skript consumer-account wire payload
type Account struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Currency    string `json:"currency"`
}

// flexFloat accepts amounts encoded either as JSON numbers or as strings,
// which open-banking data holders are split on.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// AccountStore is the slice of persistence the feed needs for its
// account-mapping precondition.
type AccountStore interface {
	ListAccountMappings(ctx context.Context, prov string) ([]*models.AccountMapping, error)
}

// Feed fetches consumer transactions from Skript and maps them into canonical
// ledger records, routed per account mapping.
type Feed struct {
	client     *provider.Client
	store      AccountStore
	consumerID string
	currencies map[string]string
	logger     *logrus.Logger
}

// NewFeed creates the Skript transaction feed
func NewFeed(client *provider.Client, store AccountStore, consumerID string, logger *logrus.Logger) *Feed {
	return &Feed{
		client:     client,
		store:      store,
		consumerID: consumerID,
		currencies: make(map[string]string),
		logger:     logger,
	}
}

// Name returns the provider identifier
func (f *Feed) Name() string { return "skript" }

// Prepare verifies the account-mapping precondition and returns the provider
// account to ledger account routing table. Every known provider account must
// be mapped before a sync may start; an incomplete mapping fails the run
// before any network call.
func (f *Feed) Prepare(ctx context.Context) (map[string]string, error) {
	mappings, err := f.store.ListAccountMappings(ctx, f.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to load account mappings: %w", err)
	}

	var unmapped []string
	accountMap := make(map[string]string, len(mappings))
	currencies := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if !m.Mapped() {
			name := m.DisplayName
			if name == "" {
				name = m.ProviderAccountID
			}
			unmapped = append(unmapped, name)
			continue
		}
		accountMap[m.ProviderAccountID] = m.BankAccount
		currencies[m.ProviderAccountID] = m.Currency
	}
	if len(unmapped) > 0 {
		return nil, apperrors.NewUnmappedAccountsError(f.Name(), unmapped)
	}

	f.currencies = currencies
	return accountMap, nil
}

// FetchPage retrieves one page of consumer transactions posted strictly after
// the cursor, using Skript's SQL-like filter expression.
func (f *Feed) FetchPage(ctx context.Context, after time.Time, until *time.Time, size int) ([]models.ProviderRecord, error) {
	filter := fmt.Sprintf("postingDateTime > {ts '%s'}", after.Format(filterTimeLayout))
	if until != nil {
		filter = fmt.Sprintf("postingDateTime BETWEEN {ts '%s'} AND {ts '%s'}",
			after.Format(filterTimeLayout), until.Format(filterTimeLayout))
	}

	params := url.Values{}
	params.Set("filter", filter)
	params.Set("size", strconv.Itoa(size))

	endpoint := fmt.Sprintf("consumers/%s/transactions", f.consumerID)
	raw, err := f.client.Get(ctx, endpoint, params)
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
			f.logger.WithError(err).Warn("Skipping undecodable Skript transaction")
			continue
		}
		postingTime, err := ParsePostingTime(txn.PostingDateTime)
		if err != nil {
			f.logger.WithError(err).WithField("transaction", txn.ID).Warn("Skipping Skript transaction with bad postingDateTime")
			continue
		}
		records = append(records, models.ProviderRecord{
			ExternalID:  txn.ID,
			AccountID:   txn.AccountID,
			PostingTime: postingTime,
			Raw:         item,
		})
	}

	return records, nil
}

// Map converts a raw Skript transaction into a canonical ledger record
func (f *Feed) Map(rec models.ProviderRecord, bankAccount string) (*models.Transaction, error) {
	var txn Transaction
	if err := json.Unmarshal(rec.Raw, &txn); err != nil {
		return nil, apperrors.NewRecordError("failed to decode transaction "+rec.ExternalID, err)
	}
	return MapTransaction(&txn, bankAccount, f.currencies[rec.AccountID], f.logger)
}

// ListAccounts retrieves the consumer's accounts for mapping maintenance
func (f *Feed) ListAccounts(ctx context.Context, size int) ([]Account, error) {
	params := url.Values{}
	params.Set("size", strconv.Itoa(size))

	endpoint := fmt.Sprintf("consumers/%s/accounts", f.consumerID)
	raw, err := f.client.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	items, err := provider.NormalizePage(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize accounts page: %w", err)
	}

	accounts := make([]Account, 0, len(items))
	for _, item := range items {
		var acc Account
		if err := json.Unmarshal(item, &acc); err != nil {
			f.logger.WithError(err).Warn("Skipping undecodable Skript account")
			continue
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}
