package sync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akhilaminc/bankfeed/internal/config"
	"github.com/akhilaminc/bankfeed/internal/db"
	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
	"github.com/akhilaminc/bankfeed/internal/models"
)

// Engine drives the watermark-based sync loop for every registered feed.
// Exactly one run per provider may be in flight at a time; concurrency across
// providers is unconstrained.
type Engine struct {
	store     db.Store
	status    *StatusManager
	publisher Publisher
	cfg       *config.SyncConfig
	logger    *logrus.Logger
	feeds     map[string][]Feed
}

func NewEngine(store db.Store, status *StatusManager, publisher Publisher, cfg *config.SyncConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		store:     store,
		status:    status,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		feeds:     make(map[string][]Feed),
	}
}

// Register adds feeds for a provider. A provider may carry several feeds (one
// per credential set); they share one sync state and run sequentially.
func (e *Engine) Register(provider string, feeds ...Feed) {
	e.feeds[provider] = append(e.feeds[provider], feeds...)
}

// Providers returns the providers with at least one registered feed
func (e *Engine) Providers() []string {
	providers := make([]string, 0, len(e.feeds))
	for p := range e.feeds {
		providers = append(providers, p)
	}
	return providers
}

// runTally accumulates per-run counters across feeds and pages
type runTally struct {
	processed int
	created   int
	skipped   int
	errors    int
}

// Run executes one sync pass for the provider. The lower bound defaults to
// the persisted watermark; a non-nil from overrides it and a non-nil to caps
// the window for backfills. Returns the processed and created counts.
func (e *Engine) Run(ctx context.Context, provider string, from, to *time.Time) (int, int, error) {
	feeds, ok := e.feeds[provider]
	if !ok || len(feeds) == 0 {
		return 0, 0, apperrors.NewConfigError("no feeds registered for provider "+provider, nil)
	}

	started, err := e.store.TryStartSync(ctx, provider, e.cfg.StaleLockTimeout)
	if err != nil {
		return 0, 0, err
	}
	if !started {
		return 0, 0, apperrors.NewSyncInProgressError(provider)
	}
	e.status.Invalidate(provider)

	state, err := e.status.Refresh(ctx, provider)
	if err != nil {
		e.finish(ctx, provider, models.SyncFailed, &runTally{}, err)
		return 0, 0, err
	}

	logger := e.logger.WithFields(logrus.Fields{"provider": provider})

	// Preconditions run for every feed before any transaction is fetched,
	// so a half-configured provider fails whole rather than partially.
	routes := make([]map[string]string, len(feeds))
	for i, feed := range feeds {
		m, err := feed.Prepare(ctx)
		if err != nil {
			logger.WithError(err).Error("Sync precondition failed")
			e.finish(ctx, provider, models.SyncFailed, &runTally{}, err)
			return 0, 0, err
		}
		routes[i] = m
	}

	cursor := time.Now().UTC().Add(-e.cfg.DefaultLookback)
	if state.Watermark != nil {
		cursor = *state.Watermark
	}
	if from != nil {
		cursor = *from
	}

	logger.WithFields(logrus.Fields{
		"cursor": cursor.Format(time.RFC3339),
		"feeds":  len(feeds),
	}).Info("Starting sync")

	tally := &runTally{}
	stopped := false

feedLoop:
	for i, feed := range feeds {
		feedCursor := cursor
		for page := 1; page <= e.cfg.MaxPages; page++ {
			if e.stopRequested(ctx, provider) {
				logger.Info("Stop requested, halting sync at page boundary")
				stopped = true
				break feedLoop
			}
			if err := ctx.Err(); err != nil {
				stopped = true
				break feedLoop
			}

			records, err := feed.FetchPage(ctx, feedCursor, to, e.cfg.PageSize)
			if err != nil {
				logger.WithError(err).Error("Page fetch failed")
				e.finish(ctx, provider, models.SyncFailed, tally, err)
				return tally.processed, tally.created, err
			}
			if len(records) == 0 {
				break
			}

			maxSeen := e.processPage(ctx, provider, feed, records, routes[i], tally, logger)
			if !maxSeen.IsZero() {
				// Next fetch is strictly after the newest record seen,
				// at one second granularity.
				feedCursor = maxSeen.Add(time.Second)
				if err := e.store.SaveWatermark(ctx, provider, feedCursor); err != nil {
					logger.WithError(err).Warn("Failed to persist watermark")
				}
			}

			if page == e.cfg.MaxPages {
				logger.WithField("max_pages", e.cfg.MaxPages).Warn("Page cap reached, remaining records deferred to next run")
			}
		}
	}

	status := models.SyncCompleted
	switch {
	case stopped:
		status = models.SyncStopped
	case tally.errors > 0:
		status = models.SyncCompletedWithErrors
	}

	logger.WithFields(logrus.Fields{
		"status":    status,
		"processed": tally.processed,
		"created":   tally.created,
		"skipped":   tally.skipped,
		"errors":    tally.errors,
	}).Info("Sync finished")

	e.finish(ctx, provider, status, tally, nil)
	return tally.processed, tally.created, nil
}

// processPage walks one page of records and returns the newest posting time
// seen. Record-level failures are counted and logged, never fatal.
func (e *Engine) processPage(ctx context.Context, provider string, feed Feed, records []models.ProviderRecord, route map[string]string, tally *runTally, logger *logrus.Entry) time.Time {
	var maxSeen time.Time

	for _, rec := range records {
		tally.processed++
		if rec.PostingTime.After(maxSeen) {
			maxSeen = rec.PostingTime
		}

		bankAccount := ""
		if rec.AccountID != "" && route != nil {
			mapped, ok := route[rec.AccountID]
			if !ok {
				tally.skipped++
				e.maybePublish(ctx, provider, tally)
				continue
			}
			bankAccount = mapped
		}

		exists, err := e.store.TransactionExists(ctx, rec.ExternalID)
		if err != nil {
			tally.errors++
			logger.WithError(err).WithField("external_id", rec.ExternalID).Error("Dedup check failed")
			continue
		}
		if exists {
			tally.skipped++
			e.maybePublish(ctx, provider, tally)
			continue
		}

		txn, err := feed.Map(rec, bankAccount)
		if err != nil {
			tally.errors++
			logger.WithError(err).WithField("external_id", rec.ExternalID).Error("Record mapping failed")
			continue
		}

		id, err := e.store.InsertTransaction(ctx, txn)
		if err != nil {
			tally.errors++
			logger.WithError(err).WithField("external_id", rec.ExternalID).Error("Transaction insert failed")
			continue
		}
		tally.created++

		if err := e.store.SubmitTransaction(ctx, id); err != nil {
			tally.errors++
			logger.WithError(err).WithField("external_id", rec.ExternalID).Error("Transaction submit failed")
		}

		e.maybePublish(ctx, provider, tally)
	}

	return maxSeen
}

// maybePublish persists progress and emits an event every N processed records
func (e *Engine) maybePublish(ctx context.Context, provider string, tally *runTally) {
	if e.cfg.ProgressInterval <= 0 || tally.processed%e.cfg.ProgressInterval != 0 {
		return
	}
	if err := e.store.SaveProgress(ctx, provider, tally.processed, tally.processed); err != nil {
		e.logger.WithError(err).WithField("provider", provider).Warn("Failed to persist progress")
	}
	if e.publisher != nil {
		e.publisher.Publish(&models.ProgressEvent{
			Provider:  provider,
			Processed: tally.processed,
			Total:     tally.processed,
			Progress:  0,
			Status:    models.SyncInProgress,
			At:        time.Now(),
		})
	}
}

// stopRequested reads the persisted status so a stop issued through the API
// takes effect at the next page boundary
func (e *Engine) stopRequested(ctx context.Context, provider string) bool {
	state, err := e.status.Refresh(ctx, provider)
	if err != nil {
		e.logger.WithError(err).WithField("provider", provider).Warn("Failed to check stop flag")
		return false
	}
	return state.Status == models.SyncStopped
}

// finish records the terminal state of the run
func (e *Engine) finish(ctx context.Context, provider string, status models.SyncStatus, tally *runTally, runErr error) {
	state, err := e.status.Refresh(ctx, provider)
	if err != nil {
		e.logger.WithError(err).WithField("provider", provider).Error("Failed to load sync state for finalization")
		state = &models.SyncState{Provider: provider}
	}

	now := time.Now()
	state.Status = status
	state.Processed = tally.processed
	state.Total = tally.processed
	state.Progress = 100
	state.ErrorCount = tally.errors
	state.CreatedCount = tally.created
	state.LastSyncAt = &now
	if runErr != nil {
		state.LastError = runErr.Error()
	} else {
		state.LastError = ""
	}

	if err := e.status.Update(ctx, state); err != nil {
		e.logger.WithError(err).WithField("provider", provider).Error("Failed to persist final sync state")
	}

	if e.publisher != nil {
		e.publisher.Publish(&models.ProgressEvent{
			Provider:  provider,
			Processed: tally.processed,
			Total:     tally.processed,
			Progress:  100,
			Status:    status,
			At:        now,
		})
	}
}
