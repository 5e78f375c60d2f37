// Package perf records per-stage pipeline timings and derives operator-facing
// summaries from them.
package perf

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline stage names.
const (
	StageFetch       = "fetch"
	StageSpeakers    = "speaker_resolution"
	StageQuality     = "quality_filter"
	StageExtraction  = "extraction"
	StagePersistence = "persistence"
)

// Processing outcomes, the terminal states of the per-recording state machine.
const (
	OutcomePersisted        = "persisted"
	OutcomeSkippedLowScore  = "skipped_low_quality"
	OutcomeSkippedDuplicate = "skipped_duplicate"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeFailed           = "failed"
)

// ProcessingRecord is the append-only audit row for one processed recording.
type ProcessingRecord struct {
	ID              uuid.UUID          `json:"id"`
	RecordingID     string             `json:"recording_id"`
	StageTimings    map[string]float64 `json:"stage_timings"`
	MemoriesCreated int                `json:"memories_created"`
	TasksCreated    int                `json:"tasks_created"`
	Outcome         string             `json:"outcome"`
	ProcessedAt     time.Time          `json:"processed_at"`
}

// Summary aggregates processing records over a window for monitoring.
type Summary struct {
	RecordsAnalyzed int                `json:"records_analyzed"`
	AvgByStage      map[string]float64 `json:"avg_by_stage_seconds"`
	BottleneckStage string             `json:"bottleneck_stage,omitempty"`
	Issues          []string           `json:"issues"`
}
