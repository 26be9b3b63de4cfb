// Package queue holds the authoritative in-memory table of tickets under
// management. Every mutation is applied as a whole under one lock, and
// every read view returns deep copies, so no reader ever observes a
// partially-applied mutation.
package queue

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/deskhive-io/deskhive/internal/diff"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// Item wraps one external ticket with its local processing state.
type Item struct {
	Ticket         protocol.Ticket           `json:"ticket"`
	Status         protocol.ProcessingStatus `json:"status"`
	SessionID      string                    `json:"session_id,omitempty"`
	PendingActions []protocol.Action         `json:"pending_actions"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
	AddedAt        time.Time                 `json:"added_at"`
	LastUpdatedAt  time.Time                 `json:"last_updated_at"`

	seq uint64 // insertion order, breaks ties in sorted views
}

func (it Item) clone() Item {
	c := it
	c.Ticket = it.Ticket.Clone()
	if it.PendingActions != nil {
		c.PendingActions = append([]protocol.Action(nil), it.PendingActions...)
	}
	return c
}

// Store is the ticket queue table, keyed by ticket id.
type Store struct {
	mu      sync.Mutex
	items   map[int64]*Item
	nextSeq uint64
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:  make(map[int64]*Item),
		now:    time.Now,
		logger: logger,
	}
}

// Ingest applies one poll's worth of changes. Added and updated tickets
// create or refresh items; local-only fields (status, session id, pending
// actions) survive updates. Removed ids are deleted unless the item is
// working: an in-flight AI turn must not be silently discarded.
func (s *Store) Ingest(changes diff.Changes) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range changes.Added {
		s.upsert(t, now)
	}
	for _, t := range changes.Updated {
		s.upsert(t, now)
	}
	for _, id := range changes.Removed {
		it, ok := s.items[id]
		if !ok {
			continue
		}
		if it.Status == protocol.StatusWorking {
			s.logger.Info("keeping removed ticket with session in flight", "ticket", id, "session", it.SessionID)
			continue
		}
		delete(s.items, id)
	}
}

// upsert must be called with the lock held.
func (s *Store) upsert(t protocol.Ticket, now time.Time) {
	if it, ok := s.items[t.ID]; ok {
		it.Ticket = t.Clone()
		it.LastUpdatedAt = now
		return
	}
	s.items[t.ID] = &Item{
		Ticket:        t.Clone(),
		Status:        protocol.StatusPending,
		AddedAt:       now,
		LastUpdatedAt: now,
		seq:           s.nextSeq,
	}
	s.nextSeq++
}

// LinkSession records the AI session handling a ticket and marks it
// working. Unknown ids are a benign no-op: the ticket may have been
// removed between the request and the response.
func (s *Store) LinkSession(ticketID int64, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ticketID]
	if !ok {
		s.logger.Debug("link session for unknown ticket", "ticket", ticketID)
		return
	}
	it.SessionID = sessionID
	it.Status = protocol.StatusWorking
	it.LastUpdatedAt = s.now()
}

// SetStatus updates a ticket's processing status. The error message is
// recorded only on transition into error and cleared otherwise. Unknown
// ids are a benign no-op.
func (s *Store) SetStatus(ticketID int64, status protocol.ProcessingStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ticketID]
	if !ok {
		s.logger.Debug("set status for unknown ticket", "ticket", ticketID, "status", status)
		return
	}
	it.Status = status
	if status == protocol.StatusError {
		it.ErrorMessage = errMsg
	} else {
		it.ErrorMessage = ""
	}
	it.LastUpdatedAt = s.now()
}

// AppendAction queues a proposed action and forces the ticket to ready:
// there is new actionable work for the agent. Unknown ids are a benign
// no-op.
func (s *Store) AppendAction(ticketID int64, action protocol.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ticketID]
	if !ok {
		s.logger.Debug("append action for unknown ticket", "ticket", ticketID, "action", action.ID)
		return
	}
	it.PendingActions = append(it.PendingActions, action)
	it.Status = protocol.StatusReady
	it.LastUpdatedAt = s.now()
}

// RemoveAction drops one pending action by id and reports whether it was
// present. An emptied queue moves the ticket to done; otherwise it stays
// ready.
func (s *Store) RemoveAction(ticketID int64, actionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ticketID]
	if !ok {
		return false
	}
	idx := slices.IndexFunc(it.PendingActions, func(a protocol.Action) bool {
		return a.ID == actionID
	})
	if idx < 0 {
		return false
	}
	it.PendingActions = slices.Delete(it.PendingActions, idx, idx+1)
	if len(it.PendingActions) == 0 {
		it.Status = protocol.StatusDone
	} else {
		it.Status = protocol.StatusReady
	}
	it.LastUpdatedAt = s.now()
	return true
}

// ClearActions discards every pending action and marks the ticket done.
// Unknown ids are a benign no-op.
func (s *Store) ClearActions(ticketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ticketID]
	if !ok {
		return
	}
	it.PendingActions = nil
	it.Status = protocol.StatusDone
	it.LastUpdatedAt = s.now()
}

// Get returns a copy of one item.
func (s *Store) Get(ticketID int64) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ticketID]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// FindBySession returns a copy of the item linked to the given session.
func (s *Store) FindBySession(sessionID string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.SessionID == sessionID {
			return it.clone(), true
		}
	}
	return Item{}, false
}

// All returns every item in insertion order.
func (s *Store) All() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(Item) bool { return true })
}

// Sorted returns every item ordered by status priority (actionable work
// first), ties broken by insertion order.
func (s *Store) Sorted() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.collect(func(Item) bool { return true })
	slices.SortFunc(out, func(a, b Item) int {
		if d := a.Status.Rank() - b.Status.Rank(); d != 0 {
			return d
		}
		return int(a.seq) - int(b.seq)
	})
	return out
}

// Filter returns items with the given status, in insertion order.
// StatusAll passes everything through.
func (s *Store) Filter(status protocol.ProcessingStatus) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == protocol.StatusAll {
		return s.collect(func(Item) bool { return true })
	}
	return s.collect(func(it Item) bool { return it.Status == status })
}

// collect must be called with the lock held. Results are copies in
// insertion order.
func (s *Store) collect(keep func(Item) bool) []Item {
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if keep(*it) {
			out = append(out, it.clone())
		}
	}
	slices.SortFunc(out, func(a, b Item) int {
		return int(a.seq) - int(b.seq)
	})
	return out
}

// Len returns the number of items in the table.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// EvictDone deletes done items whose last update is older than maxAge and
// returns how many were removed.
func (s *Store) EvictDone(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	n := 0
	for id, it := range s.items {
		if it.Status == protocol.StatusDone && it.LastUpdatedAt.Before(cutoff) {
			delete(s.items, id)
			n++
		}
	}
	return n
}
