// Package engine composes the sync/confirmation core behind one facade
// for the API layer: queue views, session lifecycle, action proposal and
// confirmation, and poll control.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deskhive-io/deskhive/internal/confirm"
	"github.com/deskhive-io/deskhive/internal/diff"
	"github.com/deskhive-io/deskhive/internal/notify"
	"github.com/deskhive-io/deskhive/internal/poller"
	"github.com/deskhive-io/deskhive/internal/queue"
	"github.com/deskhive-io/deskhive/internal/session"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// ContextFunc builds the AI-facing text context for a ticket.
type ContextFunc func(ctx context.Context, ticketID int64) (string, error)

// Engine is the orchestration facade over the core components.
type Engine struct {
	queue     *queue.Store
	poller    *poller.Poller
	confirmer *confirm.Confirmer
	sessions  *session.Manager
	context   ContextFunc
	notifier  *notify.Multi
	logger    *slog.Logger
}

// New wires an engine. contextFn may be nil when no ticket source supports
// body extraction.
func New(q *queue.Store, p *poller.Poller, c *confirm.Confirmer, s *session.Manager, contextFn ContextFunc, n *notify.Multi, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = notify.NewMulti(logger)
	}
	return &Engine{
		queue:     q,
		poller:    p,
		confirmer: c,
		sessions:  s,
		context:   contextFn,
		notifier:  n,
		logger:    logger,
	}
}

// Ingest applies one poll's changes to the queue.
func (e *Engine) Ingest(changes diff.Changes) {
	e.queue.Ingest(changes)
}

// --- queue views ---

// QueueItems returns the queue filtered by status; sorted selects the
// status-priority ordering instead of insertion order.
func (e *Engine) QueueItems(status protocol.ProcessingStatus, sorted bool) []queue.Item {
	if sorted && (status == "" || status == protocol.StatusAll) {
		return e.queue.Sorted()
	}
	if status == "" {
		status = protocol.StatusAll
	}
	return e.queue.Filter(status)
}

// QueueItem returns one item.
func (e *Engine) QueueItem(ticketID int64) (queue.Item, bool) {
	return e.queue.Get(ticketID)
}

// --- session lifecycle ---

// StartSession links a fresh AI session to a ticket.
func (e *Engine) StartSession(ticketID int64) (string, bool) {
	return e.sessions.Begin(ticketID)
}

// HandleSessionEvent routes one lifecycle event, telling the agent when a
// session dies.
func (e *Engine) HandleSessionEvent(ctx context.Context, ev protocol.SessionEvent) {
	if ev.Type == protocol.EventError {
		if item, ok := e.queue.FindBySession(ev.SessionID); ok {
			e.notifier.Notify(ctx, notify.Event{
				Kind:     notify.SessionErrored,
				TicketID: item.Ticket.ID,
				Subject:  item.Ticket.Subject,
				Detail:   ev.Error,
			})
		}
	}
	e.sessions.HandleEvent(ev)
}

// SetStatus updates a ticket's processing status.
func (e *Engine) SetStatus(ticketID int64, status protocol.ProcessingStatus, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("engine: invalid status %q", status)
	}
	e.queue.SetStatus(ticketID, status, errMsg)
	return nil
}

// --- actions ---

// ProposeAction queues an AI-proposed action for confirmation, assigning
// an id and creation time when missing, and tells the agent.
func (e *Engine) ProposeAction(ctx context.Context, ticketID int64, action protocol.Action) (protocol.Action, bool) {
	item, ok := e.queue.Get(ticketID)
	if !ok {
		return protocol.Action{}, false
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	e.queue.AppendAction(ticketID, action)
	e.notifier.Notify(ctx, notify.Event{
		Kind:     notify.ActionsProposed,
		TicketID: ticketID,
		Subject:  item.Ticket.Subject,
		Detail:   action.Label,
	})
	return action, true
}

// ConfirmAction applies one pending action; failures are surfaced to the
// caller and reported to the agent.
func (e *Engine) ConfirmAction(ctx context.Context, ticketID int64, actionID string) error {
	err := e.confirmer.ConfirmOne(ctx, ticketID, actionID)
	if err != nil {
		e.notifyConfirmFailure(ctx, ticketID, err.Error())
	}
	return err
}

// ConfirmAll applies every pending action of a ticket, best-effort.
func (e *Engine) ConfirmAll(ctx context.Context, ticketID int64) []confirm.Result {
	results := e.confirmer.ConfirmAll(ctx, ticketID)
	for _, r := range results {
		if r.Error != "" {
			e.notifyConfirmFailure(ctx, ticketID, r.Error)
		}
	}
	return results
}

// CancelAction discards one pending action.
func (e *Engine) CancelAction(ticketID int64, actionID string) bool {
	return e.confirmer.CancelOne(ticketID, actionID)
}

// CancelAll discards every pending action of a ticket.
func (e *Engine) CancelAll(ticketID int64) {
	e.confirmer.CancelAll(ticketID)
}

func (e *Engine) notifyConfirmFailure(ctx context.Context, ticketID int64, detail string) {
	subject := ""
	if item, ok := e.queue.Get(ticketID); ok {
		subject = item.Ticket.Subject
	}
	e.notifier.Notify(ctx, notify.Event{
		Kind:     notify.ConfirmFailed,
		TicketID: ticketID,
		Subject:  subject,
		Detail:   detail,
	})
}

// --- poll control ---

// PollNow triggers one immediate synchronization pass.
func (e *Engine) PollNow(ctx context.Context) error {
	return e.poller.Poll(ctx)
}

// Reconfigure merges a partial poller configuration change.
func (e *Engine) Reconfigure(u poller.ConfigUpdate) error {
	return e.poller.UpdateConfig(u)
}

// PollerConfig returns the poller's current settings.
func (e *Engine) PollerConfig() poller.Config {
	return e.poller.Config()
}

// TicketContext builds the AI-facing text context for a ticket.
func (e *Engine) TicketContext(ctx context.Context, ticketID int64) (string, error) {
	if e.context == nil {
		return "", fmt.Errorf("engine: no ticket context source configured")
	}
	return e.context(ctx, ticketID)
}
