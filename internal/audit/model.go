package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry matches the pipeline_audit table schema. Entries are append-only and
// exist so fire-and-forget background processing stays traceable.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	RecordingID string          `json:"recording_id"`
	EventType   string          `json:"event_type"`
	Severity    string          `json:"severity"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit queries.
type ListParams struct {
	RecordingID string
	EventType   string
	Severity    string
	Page        int
	PageSize    int
}
