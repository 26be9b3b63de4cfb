// Package logbuf keeps a bounded in-memory tail of the process log so it
// can be queried over the API without shipping logs anywhere.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Ring holds the newest entries up to a fixed capacity.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	next    int
	full    bool
}

// NewRing creates a ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	return &Ring{
		entries: make([]Entry, capacity),
		cap:     capacity,
	}
}

// Append stores an entry, overwriting the oldest when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next++
	if r.next == r.cap {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Query returns entries at or above minLevel recorded at or after since,
// oldest first. A zero since matches everything; limit <= 0 means no
// limit. When a limit applies the newest matching entries are kept.
func (r *Ring) Query(since time.Time, minLevel slog.Level, limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, n := 0, r.next
	if r.full {
		start, n = r.next, r.cap
	}

	var out []Entry
	for i := 0; i < n; i++ {
		e := r.entries[(start+i)%r.cap]
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if levelOf(e.Level) < minLevel {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return r.cap
	}
	return r.next
}

func levelOf(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
