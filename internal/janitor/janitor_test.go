package janitor

import (
	"testing"

	"github.com/deskhive-io/deskhive/internal/diff"
	"github.com/deskhive-io/deskhive/internal/queue"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New(queue.New(nil), "not-a-schedule", 0, nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestSweep(t *testing.T) {
	q := queue.New(nil)
	q.Ingest(diff.Changes{Added: []protocol.Ticket{
		{ID: 1, UpdatedAt: "a"},
		{ID: 2, UpdatedAt: "a"},
	}})
	q.SetStatus(1, protocol.StatusDone, "")

	j, err := New(q, "@every 1h", 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if n := j.Sweep(); n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
	if _, ok := q.Get(1); ok {
		t.Error("done item survived sweep")
	}
	if _, ok := q.Get(2); !ok {
		t.Error("pending item was swept")
	}
}
