package skript

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
)

// MockAccountStore is a mock implementation of AccountStore
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) ListAccountMappings(ctx context.Context, prov string) ([]*models.AccountMapping, error) {
	args := m.Called(ctx, prov)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AccountMapping), args.Error(1)
}

func TestFlexFloatUnmarshal(t *testing.T) {
	var txn Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","amount":12.5}`), &txn))
	assert.Equal(t, flexFloat(12.5), txn.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"b","amount":"-42.25"}`), &txn))
	assert.Equal(t, flexFloat(-42.25), txn.Amount)

	err := json.Unmarshal([]byte(`{"id":"c","amount":"lots"}`), &txn)
	assert.Error(t, err)
}

func TestPrepareBuildsRoutingTable(t *testing.T) {
	store := new(MockAccountStore)
	store.On("ListAccountMappings", mock.Anything, "skript").Return([]*models.AccountMapping{
		{Provider: "skript", ProviderAccountID: "acc-1", BankAccount: "Main Operating - AUD", Currency: "AUD"},
		{Provider: "skript", ProviderAccountID: "acc-2", BankAccount: "Savings - AUD", Currency: "AUD"},
	}, nil)

	feed := NewFeed(nil, store, "consumer-1", logrus.New())
	routes, err := feed.Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"acc-1": "Main Operating - AUD",
		"acc-2": "Savings - AUD",
	}, routes)
	store.AssertExpectations(t)
}

func TestPrepareFailsOnUnmappedAccounts(t *testing.T) {
	store := new(MockAccountStore)
	store.On("ListAccountMappings", mock.Anything, "skript").Return([]*models.AccountMapping{
		{Provider: "skript", ProviderAccountID: "acc-1", BankAccount: "Main Operating - AUD"},
		{Provider: "skript", ProviderAccountID: "acc-2", DisplayName: "Everyday Saver"},
		{Provider: "skript", ProviderAccountID: "acc-3"},
	}, nil)

	feed := NewFeed(nil, store, "consumer-1", logrus.New())
	_, err := feed.Prepare(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsUnmappedAccounts(err))

	var unmapped *apperrors.UnmappedAccountsError
	require.True(t, errors.As(err, &unmapped))
	assert.Equal(t, []string{"Everyday Saver", "acc-3"}, unmapped.Accounts)
}

func TestPrepareStoreError(t *testing.T) {
	store := new(MockAccountStore)
	store.On("ListAccountMappings", mock.Anything, "skript").Return(nil, errors.New("db down"))

	feed := NewFeed(nil, store, "consumer-1", logrus.New())
	_, err := feed.Prepare(context.Background())

	assert.Error(t, err)
	assert.False(t, apperrors.IsUnmappedAccounts(err))
}

func TestMapUsesAccountCurrency(t *testing.T) {
	store := new(MockAccountStore)
	store.On("ListAccountMappings", mock.Anything, "skript").Return([]*models.AccountMapping{
		{Provider: "skript", ProviderAccountID: "acc-1", BankAccount: "Main Operating - AUD", Currency: "AUD"},
	}, nil)

	feed := NewFeed(nil, store, "consumer-1", logrus.New())
	_, err := feed.Prepare(context.Background())
	require.NoError(t, err)

	raw := json.RawMessage(`{"id":"ob-1","accountId":"acc-1","amount":10,"currency":"USD","postingDateTime":"2025-10-23T00:00:00Z"}`)
	got, err := feed.Map(models.ProviderRecord{ExternalID: "ob-1", AccountID: "acc-1", Raw: raw}, "Main Operating - AUD")
	require.NoError(t, err)

	// USD transaction against an AUD account stays unassigned
	assert.Empty(t, got.BankAccount)
}
