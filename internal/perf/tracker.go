package perf

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/recallhq/recall/internal/metrics"
)

// bottleneckShare is the fraction of total per-recording time above which a
// stage is flagged for operators.
const bottleneckShare = 0.30

// Tracker builds per-recording timing records and computes summaries.
type Tracker struct {
	repo RecordRepository
}

// NewTracker creates a tracker persisting records through repo.
func NewTracker(repo RecordRepository) *Tracker {
	return &Tracker{repo: repo}
}

// Recorder accumulates stage timings for one recording. Safe for use from a
// single worker goroutine; stages within a recording run sequentially.
type Recorder struct {
	tracker     *Tracker
	recordingID string

	mu      sync.Mutex
	timings map[string]float64
}

// Begin starts a timing record for one recording.
func (t *Tracker) Begin(recordingID string) *Recorder {
	return &Recorder{
		tracker:     t,
		recordingID: recordingID,
		timings:     make(map[string]float64),
	}
}

// Stage starts timing a named stage and returns the function that stops it.
// Typical use: defer r.Stage(perf.StageExtraction)().
func (r *Recorder) Stage(name string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start).Seconds()
		r.mu.Lock()
		r.timings[name] += elapsed
		r.mu.Unlock()
		metrics.StageDuration.WithLabelValues(name).Observe(elapsed)
	}
}

// TimeStage times a batch-level stage that has no per-recording record, such
// as the fetch of a whole sync window, reporting only to metrics.
func TimeStage(name string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// Complete persists the finished record. Persistence failures are logged, not
// returned: losing one audit row must not fail the recording it describes.
func (r *Recorder) Complete(ctx context.Context, outcome string, memoriesCreated, tasksCreated int) {
	r.mu.Lock()
	timings := make(map[string]float64, len(r.timings))
	for k, v := range r.timings {
		timings[k] = v
	}
	r.mu.Unlock()

	rec := &ProcessingRecord{
		RecordingID:     r.recordingID,
		StageTimings:    timings,
		MemoriesCreated: memoriesCreated,
		TasksCreated:    tasksCreated,
		Outcome:         outcome,
		ProcessedAt:     time.Now().UTC(),
	}
	if err := r.tracker.repo.Insert(ctx, rec); err != nil {
		slog.Error("persisting processing record", "error", err, "recording_id", r.recordingID)
	}
}

// Recent returns processing records within the window, newest first.
func (t *Tracker) Recent(ctx context.Context, window time.Duration, limit int) ([]ProcessingRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	records, err := t.repo.ListSince(ctx, time.Now().UTC().Add(-window), limit)
	if err != nil {
		return nil, fmt.Errorf("loading processing records: %w", err)
	}
	return records, nil
}

// Summarize computes per-stage averages and flags the bottleneck stage over
// the given window. Zero-duration entries (skipped stages) are excluded so
// they do not distort averages or percentage shares.
func (t *Tracker) Summarize(ctx context.Context, window time.Duration) (*Summary, error) {
	records, err := t.repo.ListSince(ctx, time.Now().UTC().Add(-window), 1000)
	if err != nil {
		return nil, fmt.Errorf("loading processing records: %w", err)
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range records {
		for stage, secs := range rec.StageTimings {
			if secs <= 0 {
				continue
			}
			sums[stage] += secs
			counts[stage]++
		}
	}

	summary := &Summary{
		RecordsAnalyzed: len(records),
		AvgByStage:      make(map[string]float64, len(sums)),
		Issues:          []string{},
	}

	var total float64
	for stage, sum := range sums {
		summary.AvgByStage[stage] = sum / float64(counts[stage])
		total += sum
	}

	if total > 0 {
		stages := make([]string, 0, len(sums))
		for stage := range sums {
			stages = append(stages, stage)
		}
		sort.Strings(stages)

		var worst string
		var worstShare float64
		for _, stage := range stages {
			share := sums[stage] / total
			if share > worstShare {
				worst, worstShare = stage, share
			}
		}
		if worstShare > bottleneckShare {
			summary.BottleneckStage = worst
			summary.Issues = append(summary.Issues,
				fmt.Sprintf("stage %s consumes %.0f%% of pipeline time", worst, worstShare*100))
		}
	}

	failures := 0
	for _, rec := range records {
		if rec.Outcome == OutcomeExtractionFailed || rec.Outcome == OutcomeFailed {
			failures++
		}
	}
	if failures > 0 {
		summary.Issues = append(summary.Issues,
			fmt.Sprintf("%d recording(s) failed processing in the window", failures))
	}

	return summary, nil
}
