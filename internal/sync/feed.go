package sync

import (
	"context"
	"time"

	"github.com/akhilaminc/bankfeed/internal/models"
)

// Feed is one provider transaction source driven by the engine. Implementations
// exist per provider (and per client for providers with multiple credentials).
type Feed interface {
	// Name returns the provider identifier the feed syncs under
	Name() string

	// Prepare runs the feed's preconditions before any network call and
	// returns the provider-account to ledger-account routing table. Feeds
	// without per-account routing return nil.
	Prepare(ctx context.Context) (map[string]string, error)

	// FetchPage retrieves one page of records posted strictly after the
	// cursor, optionally bounded above.
	FetchPage(ctx context.Context, after time.Time, until *time.Time, size int) ([]models.ProviderRecord, error)

	// Map converts one raw record into a canonical ledger transaction
	Map(rec models.ProviderRecord, bankAccount string) (*models.Transaction, error)
}
