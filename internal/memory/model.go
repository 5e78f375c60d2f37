package memory

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/insight"
)

// Memory types.
const (
	TypeFact          = "fact"
	TypePreference    = "preference"
	TypeRelationship  = "relationship"
	TypeRoutine       = "routine"
	TypeImportantDate = "important_date"
	TypePersonalInfo  = "personal_info"
	TypeAllergy       = "allergy"
	TypeNote          = "note"
)

// Memory sources.
const (
	SourceManual            = "manual"
	SourceMessagingChannel  = "messaging_channel"
	SourceRecordingPipeline = "recording_pipeline"
)

// ValidTypes enumerates accepted memory types for request validation.
var ValidTypes = map[string]bool{
	TypeFact: true, TypePreference: true, TypeRelationship: true,
	TypeRoutine: true, TypeImportantDate: true, TypePersonalInfo: true,
	TypeAllergy: true, TypeNote: true,
}

// Metadata is the structured companion to a memory's content. For pipeline
// memories it carries the recording id and every person mentioned, so one
// memory row covers the whole recording.
type Metadata struct {
	RecordingID     string           `json:"recording_id,omitempty"`
	QualityScore    float64          `json:"quality_score,omitempty"`
	PeopleMentioned []insight.Person `json:"people_mentioned,omitempty"`
}

// Memory is a durable, consolidated record about the owner. Normal operation
// yields at most one memory per (owner, recording) pair — operator-forced
// reprocessing is the deliberate exception — and memories are never deleted
// by the pipeline itself.
type Memory struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      string     `json:"owner_id"`
	MemoryType   string     `json:"memory_type"`
	Content      string     `json:"content"`
	Metadata     Metadata   `json:"metadata"`
	RecordingID  string     `json:"recording_id,omitempty"`
	Source       string     `json:"source"`
	Importance   int        `json:"importance"`
	Embedding    []float32  `json:"-"`
	SupersedesID *uuid.UUID `json:"supersedes_id,omitempty"`
	Confidence   *float64   `json:"confidence,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MetadataJSON renders metadata for the jsonb column.
func (m *Memory) MetadataJSON() json.RawMessage {
	data, err := json.Marshal(m.Metadata)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// CreateMemoryRequest is the manual-entry API payload.
type CreateMemoryRequest struct {
	OwnerID    string `json:"owner_id" validate:"required"`
	MemoryType string `json:"memory_type" validate:"required"`
	Content    string `json:"content" validate:"required,min=1"`
	Importance int    `json:"importance" validate:"omitempty,min=1,max=10"`
}

// SearchMemoryRequest searches an owner's memories by semantic similarity.
type SearchMemoryRequest struct {
	OwnerID   string  `json:"owner_id" validate:"required"`
	Query     string  `json:"query" validate:"required,min=1"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// SearchResult wraps a Memory with its similarity score.
type SearchResult struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
}
