package models

import "time"

// TransactionStatus is the canonical reconciliation status of a ledger entry.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "Pending"
	StatusSettled   TransactionStatus = "Settled"
	StatusCancelled TransactionStatus = "Cancelled"
)

// Transaction is the provider-agnostic bank transaction persisted to the ledger.
// Exactly one of Deposit/Withdrawal is non-zero.
type Transaction struct {
	ID              int64             `json:"id"`
	Provider        string            `json:"provider"`
	ExternalID      string            `json:"external_id"`
	Date            time.Time         `json:"date"`
	Currency        string            `json:"currency"`
	Deposit         float64           `json:"deposit"`
	Withdrawal      float64           `json:"withdrawal"`
	Description     string            `json:"description"`
	ReferenceNumber string            `json:"reference_number"`
	TransactionType string            `json:"transaction_type"`
	Status          TransactionStatus `json:"status"`
	BankAccount     string            `json:"bank_account,omitempty"`
	SourceType      string            `json:"source_type,omitempty"`
	SourceID        string            `json:"source_id,omitempty"`
	Submitted       bool              `json:"submitted"`
}
