// Package poller drives periodic ticket synchronization: fetch, diff
// against the remembered snapshot, replace the snapshot, notify on change.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deskhive-io/deskhive/internal/diff"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// FetchFunc retrieves the agent's currently assigned tickets from the
// external source.
type FetchFunc func(ctx context.Context) ([]protocol.Ticket, error)

// ChangeFunc receives the classified changes of one poll. It is invoked
// only when at least one bucket is non-empty.
type ChangeFunc func(changes diff.Changes)

// SnapshotStore persists the known-ticket snapshot across restarts.
type SnapshotStore interface {
	Load() (diff.Snapshot, error)
	Replace(diff.Snapshot) error
}

// Config holds the poller's runtime settings.
type Config struct {
	Interval time.Duration
	// AutoProcess is carried for the orchestration layer and not
	// interpreted here.
	AutoProcess bool
}

// ConfigUpdate is a partial configuration change; nil fields are left
// untouched.
type ConfigUpdate struct {
	Interval    *time.Duration
	AutoProcess *bool
}

// Poller owns the recurring sync timer and the known-ticket snapshot. One
// instance per polling session; dependencies are injected.
type Poller struct {
	mu       sync.Mutex
	cfg      Config
	running  bool
	inflight bool
	known    diff.Snapshot
	stop     chan struct{}
	done     chan struct{}

	fetch    FetchFunc
	onChange ChangeFunc
	store    SnapshotStore // optional
	logger   *slog.Logger
}

// New creates a poller. If store is non-nil the persisted snapshot is
// loaded now; a malformed persisted snapshot fails fast rather than being
// silently discarded.
func New(cfg Config, fetch FetchFunc, onChange ChangeFunc, store SnapshotStore, logger *slog.Logger) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poller: interval must be positive, got %s", cfg.Interval)
	}
	if fetch == nil || onChange == nil {
		return nil, fmt.Errorf("poller: fetch and onChange are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		cfg:      cfg,
		known:    diff.Snapshot{},
		fetch:    fetch,
		onChange: onChange,
		store:    store,
		logger:   logger,
	}
	if store != nil {
		known, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("poller: load snapshot: %w", err)
		}
		p.known = known
	}
	return p, nil
}

// Start begins polling: one poll immediately, then one per interval. No-op
// if already running.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	interval := p.cfg.Interval
	stop, done := p.stop, p.done
	p.mu.Unlock()

	p.logger.Info("poller started", "interval", interval)
	go p.run(interval, stop, done)
}

func (p *Poller) run(interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	// Immediate first poll so a fresh start does not sit cold for a
	// full interval.
	p.Poll(context.Background())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Poll(context.Background())
		}
	}
}

// Stop halts the timer. In-flight polls are allowed to complete.
// Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done
	p.logger.Info("poller stopped")
}

// Poll performs one synchronization pass: fetch, diff, replace snapshot,
// notify. The snapshot is replaced even when the diff is empty so markers
// that round back to earlier values cannot cause drift. A fetch failure
// leaves the snapshot untouched and is returned for manual callers; the
// scheduled loop logs it and retries on the next tick. Overlapping calls
// are skipped.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	if p.inflight {
		p.mu.Unlock()
		p.logger.Debug("poll already in flight, skipping")
		return nil
	}
	p.inflight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inflight = false
		p.mu.Unlock()
	}()

	tickets, err := p.fetch(ctx)
	if err != nil {
		p.logger.Error("ticket fetch failed", "error", err)
		return fmt.Errorf("poller: fetch: %w", err)
	}

	p.mu.Lock()
	changes := diff.Diff(p.known, tickets)
	fresh := diff.SnapshotOf(tickets)
	p.known = fresh
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Replace(fresh); err != nil {
			// Persistence is best-effort; in-memory state stays
			// authoritative.
			p.logger.Error("snapshot persist failed", "error", err)
		}
	}

	if !changes.Empty() {
		p.logger.Info("ticket changes detected",
			"added", len(changes.Added),
			"updated", len(changes.Updated),
			"removed", len(changes.Removed),
		)
		p.onChange(changes)
	}
	return nil
}

// UpdateConfig merges a partial configuration change. A running poller is
// restarted so the next tick reflects the new cadence immediately.
func (p *Poller) UpdateConfig(u ConfigUpdate) error {
	p.mu.Lock()
	if u.Interval != nil && *u.Interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("poller: interval must be positive, got %s", *u.Interval)
	}
	if u.Interval != nil {
		p.cfg.Interval = *u.Interval
	}
	if u.AutoProcess != nil {
		p.cfg.AutoProcess = *u.AutoProcess
	}
	wasRunning := p.running
	p.mu.Unlock()

	if wasRunning {
		p.Stop()
		p.Start()
	}
	return nil
}

// Running reports whether the timer is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Config returns the current settings.
func (p *Poller) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Known returns a copy of the current snapshot.
func (p *Poller) Known() diff.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.known.Clone()
}
