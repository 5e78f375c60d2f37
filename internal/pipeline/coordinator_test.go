package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/dedup"
	"github.com/recallhq/recall/internal/insight"
	"github.com/recallhq/recall/internal/memory"
	inats "github.com/recallhq/recall/internal/nats"
	"github.com/recallhq/recall/internal/perf"
	"github.com/recallhq/recall/internal/quality"
	"github.com/recallhq/recall/internal/recording"
	"github.com/recallhq/recall/internal/speaker"
)

type fakeSource struct {
	mu        sync.Mutex
	recs      []recording.Recording
	listErr   error
	processed map[string]bool
	cleared   []string
}

func newFakeSource(recs ...recording.Recording) *fakeSource {
	return &fakeSource{recs: recs, processed: make(map[string]bool)}
}

func (s *fakeSource) ListSince(_ context.Context, _, _ time.Time) ([]recording.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]recording.Recording, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *fakeSource) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = true
	return nil
}

func (s *fakeSource) ClearProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processed, id)
	s.cleared = append(s.cleared, id)
	return nil
}

func (s *fakeSource) isProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[id]
}

type stubExtractor struct {
	mu    sync.Mutex
	calls int
	fn    func(rec *recording.Recording) (*insight.Insight, error)
}

func (e *stubExtractor) Extract(_ context.Context, rec *recording.Recording, _ map[string]speaker.Canonical) (*insight.Insight, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(rec)
	}
	return &insight.Insight{
		Facts: []string{"fact"},
		Tasks: []insight.Task{{Description: "review the doc", Source: "recording_pipeline"}},
		Events: []insight.Event{
			{Description: "team offsite", When: "Friday"},
		},
		People: []insight.Person{},
	}, nil
}

func (e *stubExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeMemories struct {
	mu      sync.Mutex
	created []*memory.Memory
	err     error
}

func (m *fakeMemories) CreateFromRecording(_ context.Context, rec *recording.Recording, _ *insight.Insight, score float64) (*memory.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	mem := &memory.Memory{
		ID:          uuid.New(),
		OwnerID:     rec.OwnerID,
		RecordingID: rec.ID,
		Metadata:    memory.Metadata{QualityScore: score},
	}
	m.created = append(m.created, mem)
	return mem, nil
}

func (m *fakeMemories) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	records []perf.ProcessingRecord
}

func (r *fakeRecordRepo) Insert(_ context.Context, rec *perf.ProcessingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *fakeRecordRepo) ListSince(_ context.Context, since time.Time, _ int) ([]perf.ProcessingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []perf.ProcessingRecord
	for _, rec := range r.records {
		if rec.ProcessedAt.After(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRecordRepo) outcomes() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, rec := range r.records {
		out[rec.Outcome]++
	}
	return out
}

type capturingPublisher struct {
	mu     sync.Mutex
	tasks  []inats.TaskHandoff
	events []inats.EventHandoff
	audits []inats.AuditEvent
}

func (p *capturingPublisher) PublishTaskHandoff(_ context.Context, t inats.TaskHandoff) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, t)
	return nil
}

func (p *capturingPublisher) PublishEventHandoff(_ context.Context, e inats.EventHandoff) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) PublishAuditEvent(_ context.Context, e inats.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, e)
	return nil
}

func (p *capturingPublisher) auditTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, a := range p.audits {
		out = append(out, a.EventType)
	}
	return out
}

func substantiveRecording(id string) recording.Recording {
	text := strings.Repeat("We agreed on the rollout plan and the deadline for review. ", 12)
	return recording.Recording{
		ID:        id,
		OwnerID:   "owner-1",
		StartedAt: time.Now().UTC().Add(-time.Hour),
		Title:     "Planning call",
		Summary:   "Discussed the rollout plan and upcoming deadline in detail.",
		Segments: []recording.TranscriptSegment{
			{RawSpeakerID: "spk_0", RawSpeakerName: "Alice", Text: text},
			{RawSpeakerID: "spk_1", Text: "Should we schedule the review? What about the deadline? Will it hold?", IsOwner: true},
		},
	}
}

func trivialRecording(id string) recording.Recording {
	return recording.Recording{
		ID:      id,
		OwnerID: "owner-1",
		Segments: []recording.TranscriptSegment{
			{RawSpeakerID: "spk_0", Text: "ok"},
		},
	}
}

type fixture struct {
	coordinator *Coordinator
	source      *fakeSource
	extractor   *stubExtractor
	memories    *fakeMemories
	records     *fakeRecordRepo
	publisher   *capturingPublisher
	guard       *dedup.Guard
	rdb         *redis.Client
}

func newFixture(t *testing.T, source *fakeSource) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		source:    source,
		extractor: &stubExtractor{},
		memories:  &fakeMemories{},
		records:   &fakeRecordRepo{},
		publisher: &capturingPublisher{},
		guard:     dedup.NewGuard(rdb, time.Hour),
		rdb:       rdb,
	}
	f.coordinator = NewCoordinator(
		source,
		quality.NewFilter(5),
		f.extractor,
		f.memories,
		f.guard,
		perf.NewTracker(f.records),
		f.publisher,
		rdb,
		config.PipelineConfig{
			QualityThreshold: 5,
			Workers:          4,
			MarkerTTL:        time.Hour,
			PendingTTL:       time.Minute,
			SummaryTTL:       time.Hour,
			SyncWindow:       24 * time.Hour,
		},
	)
	return f
}

func TestRunPersistsOneMemoryPerRecording(t *testing.T) {
	f := newFixture(t, newFakeSource(substantiveRecording("rec-1")))

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 1, summary.RecordingsSeen)
	assert.Equal(t, 1, summary.RecordingsProcessed)
	assert.Equal(t, 0, summary.RecordingsSkipped)
	assert.Equal(t, 1, summary.MemoriesCreated)
	assert.Equal(t, 1, summary.TasksCreated)

	require.Equal(t, 1, f.memories.count())
	assert.Equal(t, "rec-1", f.memories.created[0].RecordingID)
	assert.True(t, f.source.isProcessed("rec-1"))

	reserved, err := f.guard.IsReserved(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.True(t, reserved)

	require.Len(t, f.publisher.tasks, 1)
	assert.Equal(t, "review the doc", f.publisher.tasks[0].Description)
	require.Len(t, f.publisher.events, 1)
	assert.Contains(t, f.publisher.auditTypes(), "recording_processed")
}

func TestRunTwiceCreatesOnlyOneMemory(t *testing.T) {
	f := newFixture(t, newFakeSource(substantiveRecording("rec-1")))

	first := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)
	require.Equal(t, 1, first.MemoriesCreated)

	// The source still returns the recording (processed flag not reflected in
	// the fake's listing), so only the dedup marker stands between the second
	// run and a duplicate memory.
	second := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 0, second.MemoriesCreated)
	assert.Equal(t, 1, second.RecordingsSkipped)
	assert.Equal(t, 1, f.memories.count())
	assert.Contains(t, f.publisher.auditTypes(), "skipped_duplicate")
	assert.Equal(t, 1, f.records.outcomes()[perf.OutcomeSkippedDuplicate])
}

func TestRunSkipsLowQualityWithoutExtracting(t *testing.T) {
	f := newFixture(t, newFakeSource(trivialRecording("rec-low")))

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 1, summary.RecordingsSkipped)
	assert.Equal(t, 0, summary.MemoriesCreated)
	assert.Equal(t, 0, f.extractor.callCount(), "low-quality recordings must not reach the AI call")
	assert.Equal(t, 0, f.memories.count())
	assert.True(t, f.source.isProcessed("rec-low"), "skipped recordings are still marked processed")
	assert.Equal(t, 1, f.records.outcomes()[perf.OutcomeSkippedLowScore])
}

func TestRunExtractionFailureDoesNotCreateMemory(t *testing.T) {
	f := newFixture(t, newFakeSource(substantiveRecording("rec-1")))
	f.extractor.fn = func(*recording.Recording) (*insight.Insight, error) {
		return insight.Empty(), errors.New("model unavailable")
	}

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 0, summary.MemoriesCreated)
	assert.Equal(t, 1, summary.RecordingsSkipped)
	assert.Equal(t, 0, f.memories.count())
	assert.True(t, f.source.isProcessed("rec-1"), "failed extraction still marks the recording processed")

	reserved, err := f.guard.IsReserved(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.False(t, reserved, "no reservation is taken before extraction succeeds")
	assert.Contains(t, f.publisher.auditTypes(), "extraction_failed")
}

func TestRunPersistFailureReleasesReservation(t *testing.T) {
	f := newFixture(t, newFakeSource(substantiveRecording("rec-1")))
	f.memories.err = errors.New("db down")

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 0, summary.MemoriesCreated)
	assert.False(t, f.source.isProcessed("rec-1"), "persist failure leaves the recording for retry")

	reserved, err := f.guard.IsReserved(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.False(t, reserved, "reservation must roll back when persistence fails")

	// Retry succeeds once the store recovers.
	f.memories.err = nil
	retry := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)
	assert.Equal(t, 1, retry.MemoriesCreated)
}

func TestRunOneFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, newFakeSource(
		substantiveRecording("rec-1"),
		substantiveRecording("rec-2"),
		substantiveRecording("rec-3"),
	))
	f.extractor.fn = func(rec *recording.Recording) (*insight.Insight, error) {
		if rec.ID == "rec-2" {
			return insight.Empty(), errors.New("boom")
		}
		return &insight.Insight{Facts: []string{"fact"}}, nil
	}

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 3, summary.RecordingsSeen)
	assert.Equal(t, 2, summary.RecordingsProcessed)
	assert.Equal(t, 1, summary.RecordingsSkipped)
	assert.Equal(t, 2, f.memories.count())
}

func TestRunSkipsAlreadyProcessedRecordings(t *testing.T) {
	done := substantiveRecording("rec-done")
	done.IsProcessed = true
	f := newFixture(t, newFakeSource(done, substantiveRecording("rec-new")))

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 2, summary.RecordingsSeen)
	assert.Equal(t, 1, summary.RecordingsProcessed)
	assert.Equal(t, 1, summary.RecordingsSkipped, "processed recordings still count as skipped")
	assert.Equal(t, 1, f.memories.count())
	assert.Equal(t, "rec-new", f.memories.created[0].RecordingID)
}

func TestRunAllRecordingsAlreadyProcessed(t *testing.T) {
	done := substantiveRecording("rec-done")
	done.IsProcessed = true
	f := newFixture(t, newFakeSource(done))

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 1, summary.RecordingsSeen)
	assert.Equal(t, 0, summary.RecordingsProcessed)
	assert.Equal(t, 1, summary.RecordingsSkipped)
	assert.Equal(t, 0, f.extractor.callCount())
	assert.Equal(t, 0, f.memories.count())
}

func TestRunFetchFailureReturnsSummaryWithError(t *testing.T) {
	source := newFakeSource()
	source.listErr = errors.New("source unreachable")
	f := newFixture(t, source)

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, "source unreachable", summary.FetchError)
	assert.Equal(t, 0, summary.RecordingsSeen)

	// Even a failed run caches its summary for the status endpoint.
	last, err := f.coordinator.LastSummary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, summary.RunID, last.RunID)
}

func TestRunManyRecordingsWithBoundedWorkers(t *testing.T) {
	var recs []recording.Recording
	for i := 0; i < 20; i++ {
		recs = append(recs, substantiveRecording(fmt.Sprintf("rec-%02d", i)))
	}
	f := newFixture(t, newFakeSource(recs...))

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	assert.Equal(t, 20, summary.RecordingsProcessed)
	assert.Equal(t, 20, summary.MemoriesCreated)
	assert.Equal(t, 20, f.memories.count())

	pending, err := f.coordinator.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending, "pending counter is cleared after the run")
}

func TestConcurrentRunsCreateOneMemory(t *testing.T) {
	f := newFixture(t, newFakeSource(substantiveRecording("rec-1")))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.memories.count(), "overlapping runs must not duplicate the memory")
}

func TestLastSummaryRoundTrip(t *testing.T) {
	f := newFixture(t, newFakeSource(substantiveRecording("rec-1")))

	none, err := f.coordinator.LastSummary(context.Background())
	require.NoError(t, err)
	assert.Nil(t, none)

	summary := f.coordinator.RunBlocking(context.Background(), 0, TriggerScheduled)

	last, err := f.coordinator.LastSummary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, summary.RunID, last.RunID)
	assert.Equal(t, TriggerScheduled, last.Trigger)
	assert.Equal(t, 1, last.MemoriesCreated)
}

// fakeMemoryRepo backs the real memory service for the end-to-end scenario.
type fakeMemoryRepo struct {
	mu     sync.Mutex
	stored []*memory.Memory
}

func (r *fakeMemoryRepo) Create(_ context.Context, mem *memory.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, mem)
	return nil
}

func (r *fakeMemoryRepo) GetByID(context.Context, uuid.UUID) (*memory.Memory, error) {
	return nil, nil
}

func (r *fakeMemoryRepo) GetByRecording(context.Context, string, string) (*memory.Memory, error) {
	return nil, nil
}

func (r *fakeMemoryRepo) ListByOwner(context.Context, string, int, int) ([]memory.Memory, int64, error) {
	return nil, 0, nil
}

func (r *fakeMemoryRepo) SearchSimilar(context.Context, string, []float32, int, float64) ([]memory.SearchResult, error) {
	return nil, nil
}

func (r *fakeMemoryRepo) Delete(context.Context, uuid.UUID) error { return nil }

// speakerAwareExtractor mimics the real extractor's speaker handling: mentioned
// people are built from the resolved canonical speakers.
type speakerAwareExtractor struct{}

func (speakerAwareExtractor) Extract(_ context.Context, _ *recording.Recording, speakers map[string]speaker.Canonical) (*insight.Insight, error) {
	ins := &insight.Insight{
		Facts: []string{"The team ships Friday"},
		Tasks: []insight.Task{{Description: "review the doc", Source: "recording_pipeline"}},
	}
	for _, c := range speakers {
		if c.IsSelf {
			continue
		}
		ins.People = append(ins.People, insight.Person{
			Name:      c.DisplayName,
			Context:   "spoke in this recording",
			IsSpeaker: true,
		})
	}
	return ins, nil
}

func TestRunResolvesUnknownSpeakersIntoMemoryMetadata(t *testing.T) {
	rec := recording.Recording{
		ID:        "r1",
		OwnerID:   "owner-1",
		StartedAt: time.Now().UTC().Add(-time.Hour),
		Title:     "Shipping discussion",
		Summary:   "Agreed the release ships Friday and the doc needs review.",
		Segments: []recording.TranscriptSegment{
			{RawSpeakerID: "s1", RawSpeakerName: "Unknown",
				Text: strings.Repeat("We agreed we will ship Friday. Should we schedule the review meeting? ", 10)},
			{RawSpeakerID: "s2", RawSpeakerName: "Unknown",
				Text: "I'll review the doc before the deadline. What about the plan?"},
		},
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := &fakeMemoryRepo{}
	source := newFakeSource(rec)
	coordinator := NewCoordinator(
		source,
		quality.NewFilter(5),
		speakerAwareExtractor{},
		memory.NewService(repo, nil, 0.92),
		dedup.NewGuard(rdb, time.Hour),
		perf.NewTracker(&fakeRecordRepo{}),
		nil,
		rdb,
		config.PipelineConfig{Workers: 2, PendingTTL: time.Minute, SummaryTTL: time.Hour, SyncWindow: 24 * time.Hour},
	)

	summary := coordinator.RunBlocking(context.Background(), 0, TriggerManual)

	require.Equal(t, 1, summary.MemoriesCreated)
	require.Len(t, repo.stored, 1)

	mem := repo.stored[0]
	assert.Equal(t, "r1", mem.RecordingID)
	assert.Contains(t, mem.Content, "review the doc")
	assert.Contains(t, mem.Content, "The team ships Friday")

	names := make([]string, 0, len(mem.Metadata.PeopleMentioned))
	for _, p := range mem.Metadata.PeopleMentioned {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Speaker 0", "Speaker 1"}, names,
		"two distinct Unknown speakers resolve to distinct ordinal labels")
}

func TestReprocessClearsMarkerAndProcessedFlag(t *testing.T) {
	f := newFixture(t, newFakeSource(substantiveRecording("rec-1")))

	first := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)
	require.Equal(t, 1, first.MemoriesCreated)

	require.NoError(t, f.coordinator.Reprocess(context.Background(), "rec-1"))

	reserved, err := f.guard.IsReserved(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.False(t, f.source.isProcessed("rec-1"))
	assert.Contains(t, f.source.cleared, "rec-1")

	second := f.coordinator.RunBlocking(context.Background(), 0, TriggerManual)
	assert.Equal(t, 1, second.MemoriesCreated, "reprocessing intentionally allows a second memory")
	assert.Equal(t, 2, f.memories.count())
}
