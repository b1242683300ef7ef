package web

import (
	"testing"
	"time"

	"github.com/hourwatch/hourwatch/internal/pipeline"
)

func TestRunManagerCreateAndGet(t *testing.T) {
	rm := NewRunManager()

	run := rm.Create("week36.xlsx", 12)
	if run.ID == "" {
		t.Fatal("expected a run ID")
	}
	if run.Status != RunStatusRunning {
		t.Errorf("new run status = %q, want %q", run.Status, RunStatusRunning)
	}

	got := rm.Get(run.ID)
	if got != run {
		t.Error("Get returned a different run")
	}
	if rm.Get("missing") != nil {
		t.Error("Get for unknown ID should return nil")
	}
}

func TestRunProgressAndComplete(t *testing.T) {
	rm := NewRunManager()
	run := rm.Create("week36.xlsx", 4)

	run.UpdateProgress(1, 4)
	if p := run.Progress(); p != 25 {
		t.Errorf("Progress() = %d, want 25", p)
	}

	summary := &pipeline.Summary{Skipped: 4}
	run.Complete(summary)

	status, done, total, _ := run.Snapshot()
	if status != RunStatusCompleted {
		t.Errorf("status = %q, want completed", status)
	}
	if done != total {
		t.Errorf("done = %d, want total %d", done, total)
	}
	if run.Summary != summary {
		t.Error("summary not stored on run")
	}
}

func TestRunManagerRecentOrder(t *testing.T) {
	rm := NewRunManager()

	first := rm.Create("a.xlsx", 1)
	first.StartedAt = time.Now().Add(-time.Hour)
	second := rm.Create("b.xlsx", 1)

	recent := rm.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("Recent returned %d runs, want 2", len(recent))
	}
	if recent[0] != second || recent[1] != first {
		t.Error("Recent should return newest run first")
	}

	if got := rm.Recent(1); len(got) != 1 || got[0] != second {
		t.Error("Recent(1) should return only the newest run")
	}
}

func TestRunManagerCleanup(t *testing.T) {
	rm := NewRunManager()

	old := rm.Create("old.xlsx", 1)
	old.Complete(&pipeline.Summary{})
	old.CompletedAt = time.Now().Add(-48 * time.Hour)

	active := rm.Create("active.xlsx", 1)

	rm.Cleanup(24 * time.Hour)

	if rm.Get(old.ID) != nil {
		t.Error("old completed run should have been removed")
	}
	if rm.Get(active.ID) == nil {
		t.Error("running run must survive cleanup regardless of age")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    2,
		window:   time.Minute,
	}

	if !rl.Allow("run") || !rl.Allow("run") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.Allow("run") {
		t.Error("third request inside the window should be denied")
	}
	if !rl.Allow("other") {
		t.Error("limits are per key")
	}
}
