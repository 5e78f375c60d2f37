package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishTaskHandoff publishes an extracted task for downstream integrations.
func (p *Publisher) PublishTaskHandoff(ctx context.Context, task TaskHandoff) error {
	return p.publish(ctx, SubjectTaskHandoff, task)
}

// PublishEventHandoff publishes an extracted event for calendar integrations.
func (p *Publisher) PublishEventHandoff(ctx context.Context, event EventHandoff) error {
	return p.publish(ctx, SubjectEventHandoff, event)
}

// PublishAuditEvent publishes a pipeline audit event.
func (p *Publisher) PublishAuditEvent(ctx context.Context, event AuditEvent) error {
	return p.publish(ctx, SubjectAuditEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
