package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/insight"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/metrics"
	inats "github.com/recallhq/recall/internal/nats"
	"github.com/recallhq/recall/internal/perf"
	"github.com/recallhq/recall/internal/quality"
	"github.com/recallhq/recall/internal/recording"
	"github.com/recallhq/recall/internal/speaker"
)

const (
	pendingKey     = "recall:sync:pending"
	lastSummaryKey = "recall:sync:last_summary"
)

// reservationGuard is the slice of the dedup guard the coordinator needs.
type reservationGuard interface {
	Reserve(ctx context.Context, recordingID string) (bool, error)
	Release(ctx context.Context, recordingID string) error
}

// memoryCreator is the slice of the memory service the coordinator needs.
type memoryCreator interface {
	CreateFromRecording(ctx context.Context, rec *recording.Recording, ins *insight.Insight, qualityScore float64) (*memory.Memory, error)
}

// EventPublisher publishes handoffs and audit events to downstream consumers.
type EventPublisher interface {
	PublishTaskHandoff(ctx context.Context, task inats.TaskHandoff) error
	PublishEventHandoff(ctx context.Context, event inats.EventHandoff) error
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Coordinator runs sync: it fetches recordings from the capture source and
// drives each through speaker resolution, quality gating, extraction, the
// dedup guard and persistence. One recording failing must never abort the
// batch, so every per-recording error ends in a logged terminal outcome.
type Coordinator struct {
	source    recording.Source
	filter    *quality.Filter
	extractor insight.Extractor
	memories  memoryCreator
	guard     reservationGuard
	tracker   *perf.Tracker
	publisher EventPublisher
	rdb       redis.Cmdable
	cfg       config.PipelineConfig
}

// NewCoordinator wires the pipeline. publisher may be nil when NATS is not
// configured; handoffs and audit events are then dropped.
func NewCoordinator(
	source recording.Source,
	filter *quality.Filter,
	extractor insight.Extractor,
	memories memoryCreator,
	guard reservationGuard,
	tracker *perf.Tracker,
	publisher EventPublisher,
	rdb redis.Cmdable,
	cfg config.PipelineConfig,
) *Coordinator {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Coordinator{
		source:    source,
		filter:    filter,
		extractor: extractor,
		memories:  memories,
		guard:     guard,
		tracker:   tracker,
		publisher: publisher,
		rdb:       rdb,
		cfg:       cfg,
	}
}

// Sync starts a run in the background and returns its id immediately. The run
// detaches from the caller's context so an HTTP client disconnecting cannot
// cancel in-flight processing.
func (c *Coordinator) Sync(window time.Duration, trigger string) string {
	runID := uuid.NewString()
	go func() {
		c.run(context.Background(), runID, window, trigger)
	}()
	return runID
}

// RunBlocking executes a full sync and waits for the summary. Used by the
// scheduler and by operators through tests; the HTTP path uses Sync.
func (c *Coordinator) RunBlocking(ctx context.Context, window time.Duration, trigger string) *SyncSummary {
	return c.run(ctx, uuid.NewString(), window, trigger)
}

func (c *Coordinator) run(ctx context.Context, runID string, window time.Duration, trigger string) *SyncSummary {
	if window <= 0 {
		window = c.cfg.SyncWindow
	}
	metrics.SyncRunsTotal.WithLabelValues(trigger).Inc()

	acc := &summaryAccumulator{s: SyncSummary{
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}}
	slog.Info("sync run started", "run_id", runID, "trigger", trigger, "window", window)

	until := time.Now().UTC()
	fetchDone := perf.TimeStage(perf.StageFetch)
	recs, err := c.source.ListSince(ctx, until.Add(-window), until)
	fetchDone()
	if err != nil {
		slog.Error("sync: fetching recordings", "error", err, "run_id", runID)
		acc.mu.Lock()
		acc.s.FetchError = err.Error()
		acc.s.FinishedAt = time.Now().UTC()
		acc.mu.Unlock()
		summary := acc.snapshot()
		c.storeSummary(ctx, &summary)
		return &summary
	}

	var toProcess []recording.Recording
	alreadyProcessed := 0
	for _, rec := range recs {
		if rec.IsProcessed {
			slog.Debug("sync: recording already processed on source",
				"recording_id", rec.ID, "run_id", runID)
			alreadyProcessed++
			continue
		}
		toProcess = append(toProcess, rec)
	}
	acc.mu.Lock()
	acc.s.RecordingsSeen = len(recs)
	acc.s.RecordingsSkipped = alreadyProcessed
	acc.mu.Unlock()

	c.setPending(ctx, len(toProcess))

	sem := make(chan struct{}, c.workers())
	var wg sync.WaitGroup
	for i := range toProcess {
		rec := toProcess[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer c.decrPending(ctx)
			c.processOne(ctx, &rec, acc)
		}()
	}
	wg.Wait()

	c.clearPending(ctx)

	acc.mu.Lock()
	acc.s.FinishedAt = time.Now().UTC()
	acc.mu.Unlock()
	summary := acc.snapshot()

	c.storeSummary(ctx, &summary)
	slog.Info("sync run finished",
		"run_id", runID,
		"seen", summary.RecordingsSeen,
		"processed", summary.RecordingsProcessed,
		"skipped", summary.RecordingsSkipped,
		"memories", summary.MemoriesCreated,
		"tasks", summary.TasksCreated,
	)
	return &summary
}

// processOne drives a single recording to a terminal outcome. Panics are
// contained here so a malformed recording cannot take down the batch.
func (c *Coordinator) processOne(ctx context.Context, rec *recording.Recording, acc *summaryAccumulator) {
	recorder := c.tracker.Begin(rec.ID)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync: recovered panic processing recording", "recording_id", rec.ID, "panic", r)
			c.finish(ctx, recorder, perf.OutcomeFailed, 0, 0)
			acc.add(0, 1, 0, 0)
		}
	}()

	stopSpeakers := recorder.Stage(perf.StageSpeakers)
	speakers := speaker.Resolve(rec)
	stopSpeakers()

	stopQuality := recorder.Stage(perf.StageQuality)
	score := c.filter.Evaluate(rec)
	stopQuality()

	if !score.ShouldMemorize {
		slog.Debug("sync: recording below quality threshold",
			"recording_id", rec.ID, "score", score.Value)
		c.markProcessed(ctx, rec.ID)
		c.audit(ctx, rec.ID, "skipped_low_quality", "info",
			fmt.Sprintf("quality score %.1f below threshold", score.Value))
		c.finish(ctx, recorder, perf.OutcomeSkippedLowScore, 0, 0)
		acc.add(0, 1, 0, 0)
		return
	}

	stopExtraction := recorder.Stage(perf.StageExtraction)
	ins, err := c.extractor.Extract(ctx, rec, speakers)
	stopExtraction()
	if err != nil {
		metrics.ExtractionFailuresTotal.Inc()
		slog.Error("sync: extraction failed", "error", err, "recording_id", rec.ID)
		c.markProcessed(ctx, rec.ID)
		c.audit(ctx, rec.ID, "extraction_failed", "error", err.Error())
		c.finish(ctx, recorder, perf.OutcomeExtractionFailed, 0, 0)
		acc.add(0, 1, 0, 0)
		return
	}
	if ins.IsEmpty() {
		slog.Debug("sync: nothing extracted from recording", "recording_id", rec.ID)
		c.markProcessed(ctx, rec.ID)
		c.audit(ctx, rec.ID, "empty_extraction", "info", "extraction returned no insights")
		c.finish(ctx, recorder, perf.OutcomeExtractionFailed, 0, 0)
		acc.add(0, 1, 0, 0)
		return
	}

	reserved, err := c.guard.Reserve(ctx, rec.ID)
	if err != nil {
		slog.Error("sync: reserving recording", "error", err, "recording_id", rec.ID)
		c.finish(ctx, recorder, perf.OutcomeFailed, 0, 0)
		acc.add(0, 1, 0, 0)
		return
	}
	if !reserved {
		slog.Debug("sync: recording already memorized", "recording_id", rec.ID)
		c.markProcessed(ctx, rec.ID)
		c.audit(ctx, rec.ID, "skipped_duplicate", "info", "memory already exists for recording")
		c.finish(ctx, recorder, perf.OutcomeSkippedDuplicate, 0, 0)
		acc.add(0, 1, 0, 0)
		return
	}

	stopPersist := recorder.Stage(perf.StagePersistence)
	mem, err := c.memories.CreateFromRecording(ctx, rec, ins, score.Value)
	stopPersist()
	if err != nil {
		// Roll back the reservation so a later run can retry; the source
		// processed flag stays clear for the same reason.
		if relErr := c.guard.Release(ctx, rec.ID); relErr != nil {
			slog.Error("sync: releasing reservation after failed persist",
				"error", relErr, "recording_id", rec.ID)
		}
		slog.Error("sync: persisting memory", "error", err, "recording_id", rec.ID)
		c.audit(ctx, rec.ID, "persistence_failed", "error", err.Error())
		c.finish(ctx, recorder, perf.OutcomeFailed, 0, 0)
		acc.add(0, 1, 0, 0)
		return
	}

	tasks := c.publishHandoffs(ctx, rec, ins)
	c.markProcessed(ctx, rec.ID)
	c.audit(ctx, rec.ID, "recording_processed", "info",
		fmt.Sprintf("memory %s created with %d task(s)", mem.ID, tasks))

	metrics.MemoriesCreatedTotal.Inc()
	c.finish(ctx, recorder, perf.OutcomePersisted, 1, tasks)
	acc.add(1, 0, 1, tasks)
}

// publishHandoffs hands extracted tasks and events to downstream consumers.
// Publish failures are logged and skipped: the memory is already durable and
// handoffs are best-effort.
func (c *Coordinator) publishHandoffs(ctx context.Context, rec *recording.Recording, ins *insight.Insight) int {
	now := time.Now().UTC()
	published := 0
	for _, task := range ins.Tasks {
		err := c.publisher.PublishTaskHandoff(ctx, inats.TaskHandoff{
			RecordingID: rec.ID,
			OwnerID:     rec.OwnerID,
			Description: task.Description,
			DueDate:     task.DueDate,
			Source:      task.Source,
			CreatedAt:   now,
		})
		if err != nil {
			slog.Warn("sync: publishing task handoff", "error", err, "recording_id", rec.ID)
			continue
		}
		published++
	}
	for _, event := range ins.Events {
		err := c.publisher.PublishEventHandoff(ctx, inats.EventHandoff{
			RecordingID: rec.ID,
			OwnerID:     rec.OwnerID,
			Description: event.Description,
			When:        event.When,
			CreatedAt:   now,
		})
		if err != nil {
			slog.Warn("sync: publishing event handoff", "error", err, "recording_id", rec.ID)
		}
	}
	return published
}

func (c *Coordinator) finish(ctx context.Context, recorder *perf.Recorder, outcome string, memories, tasks int) {
	metrics.RecordingsProcessedTotal.WithLabelValues(outcome).Inc()
	recorder.Complete(ctx, outcome, memories, tasks)
}

func (c *Coordinator) markProcessed(ctx context.Context, recordingID string) {
	if err := c.source.MarkProcessed(ctx, recordingID); err != nil {
		slog.Warn("sync: marking recording processed on source", "error", err, "recording_id", recordingID)
	}
}

func (c *Coordinator) audit(ctx context.Context, recordingID, eventType, severity, details string) {
	err := c.publisher.PublishAuditEvent(ctx, inats.AuditEvent{
		RecordingID: recordingID,
		EventType:   eventType,
		Severity:    severity,
		Details:     details,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("sync: publishing audit event", "error", err, "recording_id", recordingID)
	}
}

// Reprocess clears both the processed flag on the source and the dedup marker
// so the next sync run picks the recording up again.
func (c *Coordinator) Reprocess(ctx context.Context, recordingID string) error {
	if err := c.guard.Release(ctx, recordingID); err != nil {
		return fmt.Errorf("clearing dedup marker: %w", err)
	}
	if err := c.source.ClearProcessed(ctx, recordingID); err != nil {
		return fmt.Errorf("clearing processed flag on source: %w", err)
	}
	slog.Info("recording queued for reprocessing", "recording_id", recordingID)
	return nil
}

// LastSummary returns the most recent sync summary, or nil when none is cached.
func (c *Coordinator) LastSummary(ctx context.Context) (*SyncSummary, error) {
	data, err := c.rdb.Get(ctx, lastSummaryKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading last sync summary: %w", err)
	}
	var summary SyncSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decoding last sync summary: %w", err)
	}
	return &summary, nil
}

// PendingCount returns how many recordings the current run still has in flight.
func (c *Coordinator) PendingCount(ctx context.Context) (int64, error) {
	n, err := c.rdb.Get(ctx, pendingKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading pending counter: %w", err)
	}
	return n, nil
}

func (c *Coordinator) storeSummary(ctx context.Context, summary *SyncSummary) {
	data, err := json.Marshal(summary)
	if err != nil {
		slog.Error("encoding sync summary", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, lastSummaryKey, data, c.cfg.SummaryTTL).Err(); err != nil {
		slog.Warn("caching sync summary", "error", err)
	}
}

// setPending writes the in-flight counter with a TTL so a crashed run cannot
// leave a stale nonzero count behind.
func (c *Coordinator) setPending(ctx context.Context, n int) {
	if err := c.rdb.Set(ctx, pendingKey, n, c.cfg.PendingTTL).Err(); err != nil {
		slog.Warn("writing pending counter", "error", err)
	}
}

func (c *Coordinator) decrPending(ctx context.Context) {
	if err := c.rdb.Decr(ctx, pendingKey).Err(); err != nil {
		slog.Debug("decrementing pending counter", "error", err)
	}
}

func (c *Coordinator) clearPending(ctx context.Context) {
	if err := c.rdb.Del(ctx, pendingKey).Err(); err != nil {
		slog.Debug("clearing pending counter", "error", err)
	}
}

func (c *Coordinator) workers() int {
	if c.cfg.Workers <= 0 {
		return 1
	}
	return c.cfg.Workers
}

// noopPublisher drops handoffs and audit events when NATS is not configured.
type noopPublisher struct{}

func (noopPublisher) PublishTaskHandoff(context.Context, inats.TaskHandoff) error   { return nil }
func (noopPublisher) PublishEventHandoff(context.Context, inats.EventHandoff) error { return nil }
func (noopPublisher) PublishAuditEvent(context.Context, inats.AuditEvent) error     { return nil }
