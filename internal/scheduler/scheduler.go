// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner removes sessions whose last activity is before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Retention periodically prunes history older than a maximum age.
type Retention struct {
	store    Pruner
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewRetention creates a Retention sweep. A zero maxAge disables pruning.
func NewRetention(store Pruner, maxAge time.Duration, schedule string) *Retention {
	return &Retention{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
		now:      time.Now,
	}
}

// ValidateSchedule reports whether expr is a schedule Start would accept.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return nil
}

// RunOnce prunes now and returns how many sessions were removed.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	if r.maxAge <= 0 {
		return 0, nil
	}
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	if n > 0 {
		slog.Info("pruned stale sessions", "count", n, "before", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Start registers the sweep and starts the cron ticker.
func (r *Retention) Start() error {
	if r.maxAge <= 0 {
		return nil
	}
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			slog.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.schedule, err)
	}
	slog.Info("scheduled retention sweep", "schedule", r.schedule, "max_age", r.maxAge.String())
	r.cron.Start()
	return nil
}

// Stop stops the cron ticker.
func (r *Retention) Stop() {
	r.cron.Stop()
}
