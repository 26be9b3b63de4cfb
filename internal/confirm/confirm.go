// Package confirm governs how a proposed action moves from pending
// confirmation to applied or cancelled. Applying is at-least-once: a
// failure after the remote write but before local acknowledgment leaves
// the action queued, and re-confirming may duplicate the remote effect.
package confirm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deskhive-io/deskhive/internal/queue"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// Applier executes one action's side effect against the external ticket
// system.
type Applier interface {
	Apply(ctx context.Context, ticketID int64, action protocol.Action) error
}

// Result reports the outcome of one action within a confirm-all pass.
type Result struct {
	ActionID string `json:"action_id"`
	Label    string `json:"label"`
	Applied  bool   `json:"applied"`
	Error    string `json:"error,omitempty"`
}

// Confirmer drives the confirmation state machine over the queue store.
type Confirmer struct {
	queue   *queue.Store
	applier Applier
	logger  *slog.Logger
}

// New creates a confirmer.
func New(q *queue.Store, applier Applier, logger *slog.Logger) *Confirmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Confirmer{queue: q, applier: applier, logger: logger}
}

// ConfirmOne applies a single pending action. An unknown ticket or action
// id is a benign no-op: it was already confirmed or cancelled, possibly by
// a concurrent confirm-all. On success the action leaves the queue (an
// emptied queue marks the ticket done). On failure the action stays queued
// for a manual retry or cancel and the error is returned.
func (c *Confirmer) ConfirmOne(ctx context.Context, ticketID int64, actionID string) error {
	item, ok := c.queue.Get(ticketID)
	if !ok {
		c.logger.Debug("confirm for unknown ticket", "ticket", ticketID)
		return nil
	}
	var action *protocol.Action
	for i := range item.PendingActions {
		if item.PendingActions[i].ID == actionID {
			action = &item.PendingActions[i]
			break
		}
	}
	if action == nil {
		c.logger.Debug("confirm for absent action", "ticket", ticketID, "action", actionID)
		return nil
	}

	if err := c.applier.Apply(ctx, ticketID, *action); err != nil {
		c.logger.Warn("action apply failed",
			"ticket", ticketID,
			"action", actionID,
			"kind", action.Kind,
			"error", err,
		)
		return fmt.Errorf("confirm %s: %w", action.Kind, err)
	}

	c.queue.RemoveAction(ticketID, actionID)
	c.logger.Info("action applied", "ticket", ticketID, "action", actionID, "kind", action.Kind)
	return nil
}

// ConfirmAll applies every currently pending action of a ticket in queue
// order. Execution is best-effort and per-action independent: a failure
// does not abort the rest. Returns one result per action attempted.
func (c *Confirmer) ConfirmAll(ctx context.Context, ticketID int64) []Result {
	item, ok := c.queue.Get(ticketID)
	if !ok {
		return nil
	}

	results := make([]Result, 0, len(item.PendingActions))
	for _, action := range item.PendingActions {
		res := Result{ActionID: action.ID, Label: action.Label}
		if err := c.ConfirmOne(ctx, ticketID, action.ID); err != nil {
			res.Error = err.Error()
		} else {
			res.Applied = true
		}
		results = append(results, res)
	}
	return results
}

// CancelOne discards a single pending action without contacting the remote
// system. Reports whether the action was present.
func (c *Confirmer) CancelOne(ticketID int64, actionID string) bool {
	return c.queue.RemoveAction(ticketID, actionID)
}

// CancelAll discards every pending action of a ticket without contacting
// the remote system. The ticket becomes done.
func (c *Confirmer) CancelAll(ticketID int64) {
	c.queue.ClearActions(ticketID)
}
