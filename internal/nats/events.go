package nats

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamHandoff = "RECALL_HANDOFF"
	StreamEvents  = "RECALL_EVENTS"
)

// Subject constants.
const (
	SubjectTaskHandoff  = "recall.handoff.tasks"
	SubjectEventHandoff = "recall.handoff.events"
	SubjectAuditEvent   = "recall.events.audit"
)

// TaskHandoff is published for downstream task/note integrations. The
// pipeline's responsibility ends at publishing a well-formed description;
// delivery into third-party systems is the consumer's problem.
type TaskHandoff struct {
	RecordingID string    `json:"recording_id"`
	OwnerID     string    `json:"owner_id"`
	Description string    `json:"description"`
	DueDate     string    `json:"due_date,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventHandoff is published for downstream calendar integrations.
type EventHandoff struct {
	RecordingID string    `json:"recording_id"`
	OwnerID     string    `json:"owner_id"`
	Description string    `json:"description"`
	When        string    `json:"when,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEvent is published for each pipeline lifecycle event and persisted by
// the audit consumer.
type AuditEvent struct {
	RecordingID string    `json:"recording_id"`
	EventType   string    `json:"event_type"` // e.g., "recording_processed", "extraction_failed"
	Severity    string    `json:"severity"`   // info, warn, error
	Details     string    `json:"details"`
	Timestamp   time.Time `json:"timestamp"`
}
