// Package pipeline orchestrates recording ingestion: fetch, speaker
// resolution, quality gating, extraction, dedup and persistence.
package pipeline

import (
	"sync"
	"time"
)

// Sync triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// SyncSummary reports the outcome of one sync run. Sync never raises to its
// caller; failures surface only through skip counts and the audit trail.
type SyncSummary struct {
	RunID               string    `json:"run_id"`
	Trigger             string    `json:"trigger"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	RecordingsSeen      int       `json:"recordings_seen"`
	RecordingsProcessed int       `json:"recordings_processed"`
	RecordingsSkipped   int       `json:"recordings_skipped"`
	MemoriesCreated     int       `json:"memories_created"`
	TasksCreated        int       `json:"tasks_created"`
	FetchError          string    `json:"fetch_error,omitempty"`
}

// summaryAccumulator collects counts from concurrent per-recording workers.
type summaryAccumulator struct {
	mu sync.Mutex
	s  SyncSummary
}

func (a *summaryAccumulator) add(processed, skipped, memories, tasks int) {
	a.mu.Lock()
	a.s.RecordingsProcessed += processed
	a.s.RecordingsSkipped += skipped
	a.s.MemoriesCreated += memories
	a.s.TasksCreated += tasks
	a.mu.Unlock()
}

func (a *summaryAccumulator) snapshot() SyncSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.s
}
