// Package diff classifies changes between a remembered ticket snapshot and
// a freshly fetched ticket list. It is pure: no I/O, no clock, no state.
package diff

import (
	"slices"

	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// Snapshot maps ticket id to the revision marker last seen for it.
type Snapshot map[int64]string

// Changes is the result of one comparison. Tickets whose marker is
// unchanged appear in no bucket. Removed carries bare ids because the full
// record is no longer available from the source.
type Changes struct {
	Added   []protocol.Ticket `json:"added"`
	Updated []protocol.Ticket `json:"updated"`
	Removed []int64           `json:"removed"`
}

// Empty reports whether all three buckets are empty.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Diff compares known against incoming. Classification depends only on set
// membership and marker equality, never on input order. An empty known map
// classifies everything as added; an empty incoming list classifies
// everything in known as removed.
func Diff(known Snapshot, incoming []protocol.Ticket) Changes {
	var c Changes
	seen := make(map[int64]struct{}, len(incoming))
	for _, t := range incoming {
		seen[t.ID] = struct{}{}
		rev, ok := known[t.ID]
		switch {
		case !ok:
			c.Added = append(c.Added, t)
		case rev != t.UpdatedAt:
			c.Updated = append(c.Updated, t)
		}
	}
	for id := range known {
		if _, ok := seen[id]; !ok {
			c.Removed = append(c.Removed, id)
		}
	}
	// Map iteration order is random; keep removals deterministic.
	slices.Sort(c.Removed)
	return c
}

// SnapshotOf derives a fresh snapshot from a fetched ticket list. If the
// same id appears twice the later entry wins.
func SnapshotOf(tickets []protocol.Ticket) Snapshot {
	s := make(Snapshot, len(tickets))
	for _, t := range tickets {
		s[t.ID] = t.UpdatedAt
	}
	return s
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for id, rev := range s {
		c[id] = rev
	}
	return c
}
