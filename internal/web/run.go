package web

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hourwatch/hourwatch/internal/pipeline"
)

// RunStatus represents the state of a processing run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one background processing of an uploaded spreadsheet. There is
// no cancellation: a started run always processes every record.
type Run struct {
	ID          string
	FileName    string
	Status      RunStatus
	Done        int
	Total       int
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string

	// Summary is set once the run completes and is never mutated after.
	Summary *pipeline.Summary

	mu sync.Mutex
}

// UpdateProgress records how many records have been handled so far.
func (r *Run) UpdateProgress(done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Done = done
	r.Total = total
}

// Complete marks the run as finished with its summary.
func (r *Run) Complete(summary *pipeline.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusCompleted
	r.CompletedAt = time.Now()
	r.Summary = summary
	r.Done = r.Total
}

// Fail marks the run as aborted before processing could start.
func (r *Run) Fail(errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusFailed
	r.CompletedAt = time.Now()
	r.Error = errMsg
}

// Snapshot returns a consistent copy of the mutable fields.
func (r *Run) Snapshot() (status RunStatus, done, total int, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status, r.Done, r.Total, r.Error
}

// Progress returns completion as a percentage.
func (r *Run) Progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Total == 0 {
		return 0
	}
	return (r.Done * 100) / r.Total
}

// RunManager keeps completed and in-flight runs in memory. Nothing is
// persisted across process restarts.
type RunManager struct {
	runs map[string]*Run
	mu   sync.RWMutex
}

func NewRunManager() *RunManager {
	return &RunManager{runs: make(map[string]*Run)}
}

// Create registers a new running run for an uploaded file.
func (rm *RunManager) Create(fileName string, total int) *Run {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	run := &Run{
		ID:        uuid.New().String(),
		FileName:  fileName,
		Status:    RunStatusRunning,
		Total:     total,
		StartedAt: time.Now(),
	}
	rm.runs[run.ID] = run
	return run
}

// Get returns a run by ID, or nil if not found
func (rm *RunManager) Get(id string) *Run {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.runs[id]
}

// Recent returns up to limit runs, newest first.
func (rm *RunManager) Recent(limit int) []*Run {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	all := make([]*Run, 0, len(rm.runs))
	for _, r := range rm.runs {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Cleanup removes finished runs older than maxAge.
func (rm *RunManager) Cleanup(maxAge time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, run := range rm.runs {
		if run.Status != RunStatusRunning && run.CompletedAt.Before(cutoff) {
			delete(rm.runs, id)
		}
	}
}
