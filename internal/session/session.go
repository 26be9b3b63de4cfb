// Package session tracks AI session lifecycle against the queue store.
package session

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/deskhive-io/deskhive/internal/queue"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// Manager mints session ids and routes lifecycle events back to the queue.
type Manager struct {
	queue  *queue.Store
	logger *slog.Logger
}

// NewManager creates a session manager over the given queue store.
func NewManager(q *queue.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{queue: q, logger: logger}
}

// Begin allocates a session id for a ticket, links it, and marks the
// ticket working. If the ticket is gone the link is a no-op and ok is
// false.
func (m *Manager) Begin(ticketID int64) (sessionID string, ok bool) {
	if _, ok := m.queue.Get(ticketID); !ok {
		m.logger.Debug("begin session for unknown ticket", "ticket", ticketID)
		return "", false
	}
	sessionID = uuid.NewString()
	m.queue.LinkSession(ticketID, sessionID)
	m.logger.Info("session linked", "ticket", ticketID, "session", sessionID)
	return sessionID, true
}

// HandleEvent consumes one session lifecycle event. Error events move the
// owning ticket to error. A complete event on a still-working ticket moves
// it to needs_input so the agent sees the session ended without proposing
// anything. Everything else is informational. Events for unknown sessions
// are dropped: the ticket may have been removed already.
func (m *Manager) HandleEvent(ev protocol.SessionEvent) {
	item, ok := m.queue.FindBySession(ev.SessionID)
	if !ok {
		m.logger.Debug("event for unknown session", "session", ev.SessionID, "type", ev.Type)
		return
	}

	switch ev.Type {
	case protocol.EventError:
		m.queue.SetStatus(item.Ticket.ID, protocol.StatusError, ev.Error)
		m.logger.Warn("session errored", "ticket", item.Ticket.ID, "session", ev.SessionID, "error", ev.Error)
	case protocol.EventComplete:
		if item.Status == protocol.StatusWorking {
			m.queue.SetStatus(item.Ticket.ID, protocol.StatusNeedsInput, "")
		}
	default:
		m.logger.Debug("session event", "ticket", item.Ticket.ID, "type", ev.Type)
	}
}
