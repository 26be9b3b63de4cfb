// Package janitor evicts finished tickets from the queue store on a cron
// schedule, keeping the table bounded on long-running installs.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deskhive-io/deskhive/internal/queue"
)

// Janitor sweeps done items older than maxAge out of the queue.
type Janitor struct {
	cron   *cron.Cron
	queue  *queue.Store
	maxAge time.Duration
	logger *slog.Logger
}

// New creates a janitor. schedule is a cron expression or a predefined
// form like "@every 10m".
func New(q *queue.Store, schedule string, maxAge time.Duration, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		cron:   cron.New(),
		queue:  q,
		maxAge: maxAge,
		logger: logger,
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins the schedule. Blocks until the context is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron.Start()
	j.logger.Info("janitor started", "max_age", j.maxAge)

	<-ctx.Done()
	j.cron.Stop()
	j.logger.Info("janitor stopped")
	return ctx.Err()
}

// Sweep runs one eviction pass immediately.
func (j *Janitor) Sweep() int {
	n := j.queue.EvictDone(j.maxAge)
	return n
}

func (j *Janitor) sweep() {
	if n := j.Sweep(); n > 0 {
		j.logger.Info("evicted finished tickets", "count", n)
	}
}
