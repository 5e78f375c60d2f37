package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/insight"
	"github.com/recallhq/recall/internal/recording"
)

// Service owns memory creation policy: consolidation for the recording
// pipeline, semantic dedup for manual entries.
type Service struct {
	repo            Repository
	embedder        insight.Embedder
	dedupSimilarity float64
}

// NewService creates a memory service. embedder may be nil, which disables
// the manual-entry semantic dedup path.
func NewService(repo Repository, embedder insight.Embedder, dedupSimilarity float64) *Service {
	return &Service{repo: repo, embedder: embedder, dedupSimilarity: dedupSimilarity}
}

// CreateFromRecording persists exactly one consolidated memory for a
// recording. The caller must hold the dedup guard's reservation. This path
// skips semantic deduplication entirely: uniqueness per recording is already
// enforced by the idempotency marker, and a full similarity pass per
// recording does not scale.
func (s *Service) CreateFromRecording(ctx context.Context, rec *recording.Recording, ins *insight.Insight, qualityScore float64) (*Memory, error) {
	mem := &Memory{
		ID:          uuid.New(),
		OwnerID:     rec.OwnerID,
		MemoryType:  TypeNote,
		Content:     insight.Consolidate(rec, ins),
		RecordingID: rec.ID,
		Source:      SourceRecordingPipeline,
		Importance:  insight.Importance(ins),
		Metadata: Metadata{
			RecordingID:     rec.ID,
			QualityScore:    qualityScore,
			PeopleMentioned: ins.People,
		},
	}

	if err := s.repo.Create(ctx, mem); err != nil {
		return nil, fmt.Errorf("persisting memory for recording %s: %w", rec.ID, err)
	}
	return mem, nil
}

// CreateManual persists a manually entered memory, running the semantic
// dedup path when an embedder is configured: a near-duplicate existing memory
// is superseded by the new one via a one-way relation with a confidence
// score, never mutated in place.
func (s *Service) CreateManual(ctx context.Context, req *CreateMemoryRequest) (*Memory, error) {
	if !ValidTypes[req.MemoryType] {
		return nil, fmt.Errorf("invalid memory type %q", req.MemoryType)
	}

	importance := req.Importance
	if importance == 0 {
		importance = 5
	}

	mem := &Memory{
		ID:         uuid.New(),
		OwnerID:    req.OwnerID,
		MemoryType: req.MemoryType,
		Content:    req.Content,
		Source:     SourceManual,
		Importance: importance,
	}

	if s.embedder != nil {
		embedding, err := s.embedder.Embed(ctx, req.Content)
		if err != nil {
			// Dedup is best-effort for manual entries; store without embedding.
			slog.Warn("embedding manual memory failed, skipping dedup", "error", err, "owner_id", req.OwnerID)
		} else {
			mem.Embedding = embedding
			s.linkNearDuplicate(ctx, mem)
		}
	}

	if err := s.repo.Create(ctx, mem); err != nil {
		return nil, fmt.Errorf("persisting manual memory: %w", err)
	}
	return mem, nil
}

func (s *Service) linkNearDuplicate(ctx context.Context, mem *Memory) {
	results, err := s.repo.SearchSimilar(ctx, mem.OwnerID, mem.Embedding, 1, s.dedupSimilarity)
	if err != nil {
		slog.Warn("semantic dedup search failed", "error", err, "owner_id", mem.OwnerID)
		return
	}
	if len(results) == 0 {
		return
	}

	dup := results[0]
	supersedes := dup.Memory.ID
	confidence := dup.Similarity
	mem.SupersedesID = &supersedes
	mem.Confidence = &confidence
	slog.Info("manual memory supersedes near-duplicate",
		"memory_id", mem.ID, "supersedes", supersedes, "confidence", confidence)
}

// GetByRecording returns the memory created for a recording, or nil.
func (s *Service) GetByRecording(ctx context.Context, ownerID, recordingID string) (*Memory, error) {
	return s.repo.GetByRecording(ctx, ownerID, recordingID)
}

// Get returns one memory by id, or nil when absent.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Memory, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns paginated memories for an owner, newest first.
func (s *Service) List(ctx context.Context, ownerID string, page, pageSize int) ([]Memory, int64, error) {
	return s.repo.ListByOwner(ctx, ownerID, page, pageSize)
}

// Search embeds the query text and returns similar memories.
func (s *Service) Search(ctx context.Context, req *SearchMemoryRequest) ([]SearchResult, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("semantic search is not configured")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}

	embedding, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}
	return s.repo.SearchSimilar(ctx, req.OwnerID, embedding, limit, threshold)
}

// Delete removes a memory by explicit user action. The pipeline never calls
// this.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
