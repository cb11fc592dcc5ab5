package audit

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Purger deletes audit records older than a retention window.
type Purger interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// Sweeper runs the retention purge on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	store  Purger
	days   int
	logger *slog.Logger
}

// NewSweeper creates a retention sweeper. Retention applies only to the
// primary store; the fallback file is an operator artifact and is left alone.
func NewSweeper(store Purger, days int, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cron:   cron.New(),
		store:  store,
		days:   days,
		logger: logger.With("component", "audit-retention"),
	}
}

// Start registers the sweep on the given cron schedule and starts the
// scheduler.
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("audit retention sweeper started", "schedule", schedule, "days", s.days)
	return nil
}

// Stop gracefully stops the scheduler.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	s.logger.Info("audit retention sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	purged, err := s.store.PurgeOlderThan(ctx, s.days)
	if err != nil {
		s.logger.Warn("retention sweep failed", "error", err)
		return
	}
	if purged > 0 {
		s.logger.Info("purged expired audit records", "count", purged, "days", s.days)
	}
}

var _ Purger = (*SQLStore)(nil)
