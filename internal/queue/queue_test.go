package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/deskhive-io/deskhive/internal/diff"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

func tk(id int64, rev string) protocol.Ticket {
	return protocol.Ticket{ID: id, Subject: "subject", UpdatedAt: rev}
}

func action(id string) protocol.Action {
	return protocol.Action{
		ID:      id,
		Kind:    protocol.ActionSendReply,
		Label:   "Send reply",
		Payload: json.RawMessage(`{"text":"hi"}`),
	}
}

func ingestOne(s *Store, t protocol.Ticket) {
	s.Ingest(diff.Changes{Added: []protocol.Ticket{t}})
}

func TestIngest_NewTicketStartsPending(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))

	it, ok := s.Get(1)
	if !ok {
		t.Fatal("ticket not found after ingest")
	}
	if it.Status != protocol.StatusPending {
		t.Errorf("status = %q, want pending", it.Status)
	}
	if it.AddedAt.IsZero() || it.LastUpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestIngest_UpdatePreservesLocalFields(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	s.LinkSession(1, "sess-1")
	s.AppendAction(1, action("act-1"))

	s.Ingest(diff.Changes{Updated: []protocol.Ticket{tk(1, "b")}})

	it, _ := s.Get(1)
	if it.Ticket.UpdatedAt != "b" {
		t.Errorf("ticket not refreshed, marker = %q", it.Ticket.UpdatedAt)
	}
	if it.SessionID != "sess-1" {
		t.Errorf("session id lost: %q", it.SessionID)
	}
	if len(it.PendingActions) != 1 {
		t.Errorf("pending actions lost: %d", len(it.PendingActions))
	}
	if it.Status != protocol.StatusReady {
		t.Errorf("status = %q, want ready", it.Status)
	}
}

func TestIngest_RemovalDeletes(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))

	s.Ingest(diff.Changes{Removed: []int64{1}})
	if _, ok := s.Get(1); ok {
		t.Error("removed ticket still present")
	}
}

func TestIngest_WorkingTicketSurvivesRemoval(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	s.LinkSession(1, "sess-1")

	s.Ingest(diff.Changes{Removed: []int64{1}})

	it, ok := s.Get(1)
	if !ok {
		t.Fatal("working ticket was deleted")
	}
	if it.Status != protocol.StatusWorking {
		t.Errorf("status = %q, want working", it.Status)
	}
}

func TestLinkSession_UnknownTicketNoop(t *testing.T) {
	s := New(nil)
	s.LinkSession(99, "sess-1") // must not panic
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestSetStatus_ErrorMessageLifecycle(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))

	s.SetStatus(1, protocol.StatusError, "llm exploded")
	it, _ := s.Get(1)
	if it.ErrorMessage != "llm exploded" {
		t.Errorf("error message = %q", it.ErrorMessage)
	}

	s.SetStatus(1, protocol.StatusPaused, "")
	it, _ = s.Get(1)
	if it.ErrorMessage != "" {
		t.Errorf("error message not cleared: %q", it.ErrorMessage)
	}
}

func TestAppendAction_ForcesReady(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	s.LinkSession(1, "sess-1")

	s.AppendAction(1, action("act-1"))

	it, _ := s.Get(1)
	if it.Status != protocol.StatusReady {
		t.Errorf("status = %q, want ready", it.Status)
	}
	if len(it.PendingActions) != 1 || it.PendingActions[0].ID != "act-1" {
		t.Errorf("pending actions = %+v", it.PendingActions)
	}
}

func TestRemoveAction_QueueTransitions(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	s.AppendAction(1, action("act-1"))
	s.AppendAction(1, action("act-2"))

	if !s.RemoveAction(1, "act-1") {
		t.Fatal("remove reported not found")
	}
	it, _ := s.Get(1)
	if it.Status != protocol.StatusReady {
		t.Errorf("status = %q, want ready while actions remain", it.Status)
	}

	if !s.RemoveAction(1, "act-2") {
		t.Fatal("remove reported not found")
	}
	it, _ = s.Get(1)
	if it.Status != protocol.StatusDone {
		t.Errorf("status = %q, want done after last action", it.Status)
	}

	if s.RemoveAction(1, "act-2") {
		t.Error("removing an absent action reported found")
	}
	if s.RemoveAction(99, "act-1") {
		t.Error("removing from unknown ticket reported found")
	}
}

func TestClearActions_AlwaysDone(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	s.AppendAction(1, action("act-1"))
	s.AppendAction(1, action("act-2"))

	s.ClearActions(1)
	it, _ := s.Get(1)
	if it.Status != protocol.StatusDone {
		t.Errorf("status = %q, want done", it.Status)
	}
	if len(it.PendingActions) != 0 {
		t.Errorf("pending actions = %d, want 0", len(it.PendingActions))
	}

	// Empty queue: clear is still done.
	ingestOne(s, tk(2, "a"))
	s.ClearActions(2)
	it, _ = s.Get(2)
	if it.Status != protocol.StatusDone {
		t.Errorf("status = %q, want done", it.Status)
	}
}

func TestSorted_StatusPriorityThenInsertion(t *testing.T) {
	s := New(nil)
	for id := int64(1); id <= 5; id++ {
		ingestOne(s, tk(id, "a"))
	}
	s.SetStatus(2, protocol.StatusDone, "")
	s.SetStatus(3, protocol.StatusReady, "")
	s.SetStatus(4, protocol.StatusWorking, "")
	s.SetStatus(5, protocol.StatusReady, "")

	var got []int64
	for _, it := range s.Sorted() {
		got = append(got, it.Ticket.ID)
	}
	// ready(3,5 insertion order) < working(4) < pending(1) < done(2)
	want := []int64{3, 5, 4, 1, 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	ingestOne(s, tk(2, "a"))
	s.SetStatus(2, protocol.StatusDone, "")

	done := s.Filter(protocol.StatusDone)
	if len(done) != 1 || done[0].Ticket.ID != 2 {
		t.Errorf("filter(done) = %+v", done)
	}
	all := s.Filter(protocol.StatusAll)
	if len(all) != 2 {
		t.Errorf("filter(all) = %d items, want 2", len(all))
	}
}

func TestFindBySession(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	s.LinkSession(1, "sess-1")

	it, ok := s.FindBySession("sess-1")
	if !ok || it.Ticket.ID != 1 {
		t.Errorf("find = %+v, %v", it, ok)
	}
	if _, ok := s.FindBySession("nope"); ok {
		t.Error("found item for unknown session")
	}
}

func TestViewsReturnCopies(t *testing.T) {
	s := New(nil)
	ingestOne(s, tk(1, "a"))
	s.AppendAction(1, action("act-1"))

	it, _ := s.Get(1)
	it.PendingActions[0].Label = "mutated"
	it.Ticket.Subject = "mutated"

	fresh, _ := s.Get(1)
	if fresh.PendingActions[0].Label == "mutated" || fresh.Ticket.Subject == "mutated" {
		t.Error("reader mutation leaked into the store")
	}
}

func TestEvictDone(t *testing.T) {
	s := New(nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	ingestOne(s, tk(1, "a"))
	ingestOne(s, tk(2, "a"))
	s.SetStatus(1, protocol.StatusDone, "")
	s.SetStatus(2, protocol.StatusReady, "")

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if n := s.EvictDone(time.Hour); n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if _, ok := s.Get(1); ok {
		t.Error("stale done item survived eviction")
	}
	if _, ok := s.Get(2); !ok {
		t.Error("non-done item was evicted")
	}
}
