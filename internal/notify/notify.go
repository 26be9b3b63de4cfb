// Package notify reports noteworthy engine events to the human agent on
// external messaging platforms. Delivery is best-effort: a failed
// notification is logged and dropped, never retried.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// EventKind classifies what happened.
type EventKind string

const (
	ActionsProposed EventKind = "actions_proposed"
	ConfirmFailed   EventKind = "confirm_failed"
	SessionErrored  EventKind = "session_errored"
)

// Event describes one occurrence worth telling the agent about.
type Event struct {
	Kind     EventKind
	TicketID int64
	Subject  string
	Detail   string
}

// Text renders the event as a short human-readable message.
func (e Event) Text() string {
	head := fmt.Sprintf("Ticket #%d", e.TicketID)
	if e.Subject != "" {
		head = fmt.Sprintf("Ticket #%d (%s)", e.TicketID, e.Subject)
	}
	switch e.Kind {
	case ActionsProposed:
		return fmt.Sprintf("%s: actions awaiting your confirmation. %s", head, e.Detail)
	case ConfirmFailed:
		return fmt.Sprintf("%s: confirming an action failed: %s", head, e.Detail)
	case SessionErrored:
		return fmt.Sprintf("%s: AI session failed: %s", head, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", head, e.Detail)
	}
}

// Notifier delivers one event to one platform.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Multi fans one event out to several notifiers, logging failures.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti builds a fan-out notifier. An empty list is valid and silent.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

// Notify sends the event to every configured platform.
func (m *Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			m.logger.Warn("notification failed", "platform", n.Name(), "ticket", ev.TicketID, "error", err)
		}
	}
}
