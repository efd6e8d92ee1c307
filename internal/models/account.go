package models

import "time"

// AccountMapping links a provider-side account to a local ledger account.
// A mapping with an empty BankAccount is known but unmapped; a sync that is
// account-aware refuses to start while any mapping is incomplete.
type AccountMapping struct {
	ID                int64     `json:"id"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	DisplayName       string    `json:"display_name,omitempty"`
	BankAccount       string    `json:"bank_account,omitempty"`
	Currency          string    `json:"currency,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Mapped reports whether the provider account has a local counterpart.
func (m *AccountMapping) Mapped() bool {
	return m.BankAccount != ""
}
