package skript

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
)

// MapStatus translates a Skript transaction status into the canonical
// vocabulary. Unrecognized statuses fall back to Pending.
func MapStatus(status string) models.TransactionStatus {
	switch strings.ToUpper(status) {
	case "POSTED", "SETTLED":
		return models.StatusSettled
	case "CANCELLED":
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

// ParsePostingTime parses a Skript postingDateTime value. A posting time
// represents the bank-statement local date, so the offset is stripped while
// the wall-clock digits are preserved; '2025-10-23T11:00:09+11:00' stays
// 11:00:09, not 00:00:09.
func ParsePostingTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable posting time %q", value)
}

// MapTransaction converts a Skript payload into a canonical ledger record.
// Direction comes from the signed amount. A currency mismatch with the target
// account drops the account reference rather than forcing a bad assignment.
func MapTransaction(txn *Transaction, bankAccount, accountCurrency string, logger *logrus.Logger) (*models.Transaction, error) {
	if txn.ID == "" {
		return nil, apperrors.NewRecordError("transaction missing id", nil)
	}

	date, err := ParsePostingTime(txn.PostingDateTime)
	if err != nil {
		return nil, apperrors.NewRecordError("transaction "+txn.ID+" has invalid postingDateTime", err)
	}

	currency := txn.Currency
	if currency == "" {
		currency = "AUD"
	}

	record := &models.Transaction{
		Provider:        "skript",
		ExternalID:      txn.ID,
		Date:            date,
		Currency:        currency,
		Status:          MapStatus(txn.Status),
		Description:     txn.Description,
		ReferenceNumber: txn.Reference,
		TransactionType: txn.Type,
		BankAccount:     bankAccount,
		SourceID:        txn.AccountID,
		SourceType:      txn.DataHolderName,
	}

	amount := float64(txn.Amount)
	if amount > 0 {
		record.Deposit = amount
	} else {
		record.Withdrawal = -amount
	}

	if accountCurrency != "" && !strings.EqualFold(currency, accountCurrency) {
		logger.WithFields(logrus.Fields{
			"transaction":      txn.ID,
			"currency":         currency,
			"account_currency": accountCurrency,
		}).Warn("Currency mismatch, leaving transaction unassigned")
		record.BankAccount = ""
	}

	return record, nil
}
