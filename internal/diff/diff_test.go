package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/deskhive-io/deskhive/pkg/protocol"
)

func tk(id int64, rev string) protocol.Ticket {
	return protocol.Ticket{ID: id, Subject: "subject", UpdatedAt: rev}
}

func TestDiff_FirstPollEverythingAdded(t *testing.T) {
	incoming := []protocol.Ticket{tk(1, "a"), tk(2, "b")}
	c := Diff(Snapshot{}, incoming)

	if len(c.Added) != 2 {
		t.Fatalf("added = %d, want 2", len(c.Added))
	}
	if len(c.Updated) != 0 || len(c.Removed) != 0 {
		t.Errorf("updated/removed not empty: %+v", c)
	}
}

func TestDiff_EmptyIncomingEverythingRemoved(t *testing.T) {
	known := Snapshot{5: "x", 3: "y"}
	c := Diff(known, nil)

	if diff := cmp.Diff([]int64{3, 5}, c.Removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	if len(c.Added) != 0 || len(c.Updated) != 0 {
		t.Errorf("added/updated not empty: %+v", c)
	}
}

func TestDiff_NewTicketAdded(t *testing.T) {
	known := Snapshot{100: "2026-01-01"}
	incoming := []protocol.Ticket{tk(100, "2026-01-01"), tk(101, "2026-01-02")}
	c := Diff(known, incoming)

	if len(c.Added) != 1 || c.Added[0].ID != 101 {
		t.Errorf("added = %+v, want [101]", c.Added)
	}
	if len(c.Updated) != 0 || len(c.Removed) != 0 {
		t.Errorf("updated/removed not empty: %+v", c)
	}
}

func TestDiff_ChangedMarkerUpdated(t *testing.T) {
	known := Snapshot{100: "2026-01-01"}
	incoming := []protocol.Ticket{tk(100, "2026-01-02")}
	c := Diff(known, incoming)

	if len(c.Updated) != 1 || c.Updated[0].ID != 100 {
		t.Errorf("updated = %+v, want [100]", c.Updated)
	}
	if len(c.Added) != 0 || len(c.Removed) != 0 {
		t.Errorf("added/removed not empty: %+v", c)
	}
}

func TestDiff_MissingIDRemoved(t *testing.T) {
	known := Snapshot{100: "a", 101: "b"}
	incoming := []protocol.Ticket{tk(100, "a")}
	c := Diff(known, incoming)

	if diff := cmp.Diff([]int64{101}, c.Removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_IdenticalInputsNoop(t *testing.T) {
	known := Snapshot{1: "a", 2: "b", 3: "c"}
	incoming := []protocol.Ticket{tk(2, "b"), tk(3, "c"), tk(1, "a")}
	c := Diff(known, incoming)

	if !c.Empty() {
		t.Errorf("expected empty changes, got %+v", c)
	}
}

func TestDiff_OrderIndependent(t *testing.T) {
	known := Snapshot{1: "a", 2: "b"}
	forward := []protocol.Ticket{tk(1, "a2"), tk(2, "b"), tk(4, "d")}
	reverse := []protocol.Ticket{tk(4, "d"), tk(2, "b"), tk(1, "a2")}

	a := Diff(known, forward)
	b := Diff(known, reverse)

	if len(a.Added) != len(b.Added) || len(a.Updated) != len(b.Updated) || len(a.Removed) != len(b.Removed) {
		t.Errorf("classification depends on order: %+v vs %+v", a, b)
	}
	if a.Added[0].ID != 4 || a.Updated[0].ID != 1 {
		t.Errorf("unexpected classification: %+v", a)
	}
}

func TestDiff_BucketsDisjoint(t *testing.T) {
	known := Snapshot{1: "a", 2: "b", 3: "c"}
	incoming := []protocol.Ticket{tk(2, "b2"), tk(4, "d")}
	c := Diff(known, incoming)

	seen := make(map[int64]string)
	for _, t2 := range c.Added {
		seen[t2.ID] = "added"
	}
	for _, t2 := range c.Updated {
		if prev, ok := seen[t2.ID]; ok {
			t.Errorf("id %d in both %s and updated", t2.ID, prev)
		}
		seen[t2.ID] = "updated"
	}
	for _, id := range c.Removed {
		if prev, ok := seen[id]; ok {
			t.Errorf("id %d in both %s and removed", id, prev)
		}
	}
}

func TestSnapshotOf(t *testing.T) {
	s := SnapshotOf([]protocol.Ticket{tk(1, "a"), tk(2, "b")})
	want := Snapshot{1: "a", 2: "b"}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotClone(t *testing.T) {
	s := Snapshot{1: "a"}
	c := s.Clone()
	c[1] = "changed"
	if s[1] != "a" {
		t.Error("clone aliases original")
	}
}
