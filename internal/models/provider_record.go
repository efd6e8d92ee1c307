package models

import (
	"encoding/json"
	"time"
)

// ProviderRecord is one raw transaction from a provider page, carrying just
// enough decoded fields for the sync loop (dedupe key, account routing,
// watermark) while mapping stays with the provider that produced it.
type ProviderRecord struct {
	ExternalID  string
	AccountID   string
	PostingTime time.Time
	Raw         json.RawMessage
}
