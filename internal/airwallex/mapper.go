package airwallex

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
)

// MapStatus translates an Airwallex transaction status into the canonical
// vocabulary. Unrecognized statuses fall back to Pending so unreconciled
// records still land in the ledger.
func MapStatus(status string) models.TransactionStatus {
	switch strings.ToUpper(status) {
	case "PENDING":
		return models.StatusPending
	case "SETTLED":
		return models.StatusSettled
	case "CANCELLED":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

// ParseTimestamp parses an Airwallex created_at value. Settlement timestamps
// are instants compared across timezones, so offsets are normalized to UTC
// before the zone is dropped for storage.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			u := t.UTC()
			return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

// MapTransaction converts an Airwallex payload into a canonical ledger record.
// Direction comes from the signed net amount; exactly one of
// deposit/withdrawal is non-zero. A currency mismatch with the target account
// drops the account reference rather than forcing a bad assignment.
func MapTransaction(txn *Transaction, bankAccount, accountCurrency string, logger *logrus.Logger) (*models.Transaction, error) {
	if txn.ID == "" {
		return nil, apperrors.NewRecordError("transaction missing id", nil)
	}
	if txn.Currency == "" {
		return nil, apperrors.NewRecordError("transaction "+txn.ID+" missing currency", nil)
	}

	date, err := ParseTimestamp(txn.CreatedAt)
	if err != nil {
		return nil, apperrors.NewRecordError("transaction "+txn.ID+" has invalid created_at", err)
	}

	record := &models.Transaction{
		Provider:        "airwallex",
		ExternalID:      txn.ID,
		Date:            date,
		Currency:        txn.Currency,
		Status:          MapStatus(txn.Status),
		Description:     txn.Description,
		ReferenceNumber: txn.BatchID,
		TransactionType: txn.TransactionType,
		BankAccount:     bankAccount,
		SourceType:      txn.SourceType,
		SourceID:        txn.SourceID,
	}
	if record.Description == "" {
		record.Description = txn.SourceType
	}

	if txn.Net > 0 {
		record.Deposit = txn.Net
	} else {
		record.Withdrawal = -txn.Net
	}

	if accountCurrency != "" && !strings.EqualFold(txn.Currency, accountCurrency) {
		logger.WithFields(logrus.Fields{
			"transaction":      txn.ID,
			"currency":         txn.Currency,
			"account_currency": accountCurrency,
		}).Warn("Currency mismatch, leaving transaction unassigned")
		record.BankAccount = ""
	}

	return record, nil
}
