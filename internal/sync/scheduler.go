package sync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/akhilaminc/bankfeed/internal/errors"
)

// Schedule names accepted in provider configuration
const (
	ScheduleHourly  = "Hourly"
	ScheduleDaily   = "Daily"
	ScheduleWeekly  = "Weekly"
	ScheduleMonthly = "Monthly"
)

// firstRunLookback returns how far back a scheduled sync reaches when the
// provider has no watermark yet
func firstRunLookback(schedule string) time.Duration {
	switch schedule {
	case ScheduleHourly:
		return 2 * time.Hour
	case ScheduleDaily:
		return 24 * time.Hour
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	case ScheduleMonthly:
		return 30 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// Scheduler triggers engine runs on fixed intervals for providers whose
// configured schedule matches the firing tick
type Scheduler struct {
	engine    *Engine
	status    *StatusManager
	schedules map[string]string
	logger    *logrus.Logger
}

func NewScheduler(engine *Engine, status *StatusManager, schedules map[string]string, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		engine:    engine,
		status:    status,
		schedules: schedules,
		logger:    logger,
	}
}

// Start launches the interval tickers. It returns immediately; tickers stop
// when the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, ScheduleHourly, time.Hour)
	go s.loop(ctx, ScheduleDaily, 24*time.Hour)
	go s.loop(ctx, ScheduleWeekly, 7*24*time.Hour)
	go s.loop(ctx, ScheduleMonthly, 30*24*time.Hour)
}

func (s *Scheduler) loop(ctx context.Context, schedule string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunScheduled(ctx, schedule)
		}
	}
}

// RunHourly triggers every provider configured for hourly syncs
func (s *Scheduler) RunHourly(ctx context.Context) { s.RunScheduled(ctx, ScheduleHourly) }

// RunDaily triggers every provider configured for daily syncs
func (s *Scheduler) RunDaily(ctx context.Context) { s.RunScheduled(ctx, ScheduleDaily) }

// RunWeekly triggers every provider configured for weekly syncs
func (s *Scheduler) RunWeekly(ctx context.Context) { s.RunScheduled(ctx, ScheduleWeekly) }

// RunMonthly triggers every provider configured for monthly syncs
func (s *Scheduler) RunMonthly(ctx context.Context) { s.RunScheduled(ctx, ScheduleMonthly) }

// RunScheduled runs every provider whose configured schedule matches. A run
// already in flight is skipped, not an error.
func (s *Scheduler) RunScheduled(ctx context.Context, schedule string) {
	for provider, providerSchedule := range s.schedules {
		if providerSchedule != schedule {
			continue
		}

		logger := s.logger.WithFields(logrus.Fields{
			"provider": provider,
			"schedule": schedule,
		})

		from, err := s.firstRunFloor(ctx, provider, schedule)
		if err != nil {
			logger.WithError(err).Error("Failed to resolve sync window")
			continue
		}

		logger.Info("Scheduled sync triggered")
		if _, _, err := s.engine.Run(ctx, provider, from, nil); err != nil {
			if apperrors.IsSyncInProgress(err) {
				logger.Info("Sync already in progress, skipping scheduled run")
				continue
			}
			logger.WithError(err).Error("Scheduled sync failed")
		}
	}
}

// firstRunFloor returns an explicit lower bound only when the provider has
// never established a watermark, so scheduled first runs stay bounded.
func (s *Scheduler) firstRunFloor(ctx context.Context, provider, schedule string) (*time.Time, error) {
	state, err := s.status.Refresh(ctx, provider)
	if err != nil {
		return nil, err
	}
	if state.Watermark != nil {
		return nil, nil
	}
	floor := time.Now().UTC().Add(-firstRunLookback(schedule))
	return &floor, nil
}
