package perf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecordRepo struct {
	inserted []ProcessingRecord
	listed   []ProcessingRecord
}

func (f *fakeRecordRepo) Insert(_ context.Context, rec *ProcessingRecord) error {
	f.inserted = append(f.inserted, *rec)
	return nil
}

func (f *fakeRecordRepo) ListSince(_ context.Context, _ time.Time, _ int) ([]ProcessingRecord, error) {
	return f.listed, nil
}

func TestRecorder_StageTimingsAccumulate(t *testing.T) {
	repo := &fakeRecordRepo{}
	tracker := NewTracker(repo)

	rec := tracker.Begin("rec-1")
	stop := rec.Stage(StageExtraction)
	time.Sleep(5 * time.Millisecond)
	stop()
	rec.Stage(StageSpeakers)()
	rec.Complete(context.Background(), OutcomePersisted, 1, 2)

	require.Len(t, repo.inserted, 1)
	got := repo.inserted[0]
	assert.Equal(t, "rec-1", got.RecordingID)
	assert.Equal(t, OutcomePersisted, got.Outcome)
	assert.Equal(t, 1, got.MemoriesCreated)
	assert.Equal(t, 2, got.TasksCreated)
	assert.Greater(t, got.StageTimings[StageExtraction], 0.0)
	assert.Contains(t, got.StageTimings, StageSpeakers)
}

func TestSummarize_BottleneckFlagged(t *testing.T) {
	repo := &fakeRecordRepo{
		listed: []ProcessingRecord{
			{StageTimings: map[string]float64{StageExtraction: 8, StageSpeakers: 1, StagePersistence: 1}},
			{StageTimings: map[string]float64{StageExtraction: 6, StageSpeakers: 1, StagePersistence: 1}},
		},
	}
	tracker := NewTracker(repo)

	summary, err := tracker.Summarize(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RecordsAnalyzed)
	assert.Equal(t, StageExtraction, summary.BottleneckStage)
	assert.InDelta(t, 7.0, summary.AvgByStage[StageExtraction], 1e-9)
	require.NotEmpty(t, summary.Issues)
}

func TestSummarize_ZeroDurationStagesExcluded(t *testing.T) {
	// A skipped stage records zero seconds; it must not drag down averages or
	// count toward percentage shares.
	repo := &fakeRecordRepo{
		listed: []ProcessingRecord{
			{StageTimings: map[string]float64{StageExtraction: 4, StageQuality: 0}},
			{StageTimings: map[string]float64{StageExtraction: 2, StageQuality: 1}},
		},
	}
	tracker := NewTracker(repo)

	summary, err := tracker.Summarize(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, summary.AvgByStage[StageExtraction], 1e-9)
	// Only the single non-zero quality timing participates.
	assert.InDelta(t, 1.0, summary.AvgByStage[StageQuality], 1e-9)
}

func TestSummarize_NoBottleneckWhenBalanced(t *testing.T) {
	repo := &fakeRecordRepo{
		listed: []ProcessingRecord{
			{StageTimings: map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1}},
		},
	}
	tracker := NewTracker(repo)

	summary, err := tracker.Summarize(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, summary.BottleneckStage)
}

func TestSummarize_FailuresReported(t *testing.T) {
	repo := &fakeRecordRepo{
		listed: []ProcessingRecord{
			{Outcome: OutcomeExtractionFailed, StageTimings: map[string]float64{StageExtraction: 1}},
			{Outcome: OutcomePersisted, StageTimings: map[string]float64{StageExtraction: 1}},
		},
	}
	tracker := NewTracker(repo)

	summary, err := tracker.Summarize(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Contains(t, summary.Issues[len(summary.Issues)-1], "1 recording(s) failed")
}

func TestSummarize_EmptyWindow(t *testing.T) {
	tracker := NewTracker(&fakeRecordRepo{})
	summary, err := tracker.Summarize(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, summary.RecordsAnalyzed)
	assert.Empty(t, summary.AvgByStage)
}
