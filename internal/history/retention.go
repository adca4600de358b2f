package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner is implemented by sinks that can delete old events.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// DefaultPruneSchedule runs retention once a day.
const DefaultPruneSchedule = "@daily"

// Retention deletes events older than MaxAge on a cron schedule.
type Retention struct {
	c      *cron.Cron
	pruner Pruner
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRetention validates schedule (standard five-field or descriptor syntax,
// optional seconds field) and prepares the job. Call Start to run it.
func NewRetention(p Pruner, schedule string, maxAge time.Duration, logger *slog.Logger) (*Retention, error) {
	if p == nil {
		return nil, errors.New("sink does not support pruning")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", maxAge)
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Retention{
		c:      cron.New(cron.WithParser(parser)),
		pruner: p,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
	if _, err := r.c.AddFunc(schedule, func() { _, _ = r.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return r, nil
}

// RunOnce deletes everything older than the retention window.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	before := r.now().Add(-r.maxAge).UTC()
	n, err := r.pruner.Prune(ctx, before)
	if err != nil {
		r.logger.Warn("history prune failed", "error", err)
		return 0, err
	}
	r.logger.Info("history pruned", "deleted", n, "before", before)
	return n, nil
}

func (r *Retention) Start() { r.c.Start() }

// Stop halts the schedule and waits for a running prune to finish.
func (r *Retention) Stop() { <-r.c.Stop().Done() }
