package logbuf

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func entry(msg string, level slog.Level, at time.Time) Entry {
	return Entry{Time: at, Level: level.String(), Message: msg}
}

func TestRing_Wraparound(t *testing.T) {
	r := NewRing(3)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r.Append(entry(string(rune('a'+i)), slog.LevelInfo, base.Add(time.Duration(i)*time.Second)))
	}

	if r.Len() != 3 {
		t.Errorf("len = %d, want 3", r.Len())
	}
	got := r.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 3 || got[0].Message != "c" || got[2].Message != "e" {
		t.Errorf("query = %+v", got)
	}
}

func TestRing_QueryFilters(t *testing.T) {
	r := NewRing(10)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r.Append(entry("old-debug", slog.LevelDebug, base))
	r.Append(entry("old-error", slog.LevelError, base))
	r.Append(entry("new-info", slog.LevelInfo, base.Add(time.Minute)))

	got := r.Query(base.Add(30*time.Second), slog.LevelDebug, 0)
	if len(got) != 1 || got[0].Message != "new-info" {
		t.Errorf("since filter: %+v", got)
	}

	got = r.Query(time.Time{}, slog.LevelError, 0)
	if len(got) != 1 || got[0].Message != "old-error" {
		t.Errorf("level filter: %+v", got)
	}

	got = r.Query(time.Time{}, slog.LevelDebug, 2)
	if len(got) != 2 || got[1].Message != "new-info" {
		t.Errorf("limit keeps newest: %+v", got)
	}
}

func TestHandler_CapturesAllLevels(t *testing.T) {
	ring := NewRing(10)
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewHandler(inner, ring))

	logger.Debug("hidden from stderr", "n", 1)
	logger.Error("loud", "cause", errors.New("boom"))

	got := ring.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 2 {
		t.Fatalf("captured = %d, want 2", len(got))
	}
	if got[0].Attrs["n"] != int64(1) {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
	if got[1].Attrs["cause"] != "boom" {
		t.Errorf("error attr = %v, want string form", got[1].Attrs["cause"])
	}
}

func TestHandler_GroupsPrefixKeys(t *testing.T) {
	ring := NewRing(10)
	inner := slog.NewTextHandler(os.Stderr, nil)
	logger := slog.New(NewHandler(inner, ring)).WithGroup("poll").With("tick", 3)

	logger.Info("done")

	got := ring.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 1 {
		t.Fatalf("captured = %d, want 1", len(got))
	}
	if _, ok := got[0].Attrs["poll.tick"]; !ok {
		t.Errorf("attrs = %v, want poll.tick", got[0].Attrs)
	}
}
