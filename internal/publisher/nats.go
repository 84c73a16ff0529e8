// Package publisher sends archive events to NATS.
package publisher

import (
	"context"
	"fmt"

	"github.com/blockedby/tg-archive/internal/collector"
	"github.com/blockedby/tg-archive/internal/nats"
)

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher implements collector.EventPublisher
type NATSPublisher struct {
	js NATSClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(client *nats.Client) *NATSPublisher {
	return &NATSPublisher{js: client}
}

// PublishMessageArchived publishes a message saved event
func (p *NATSPublisher) PublishMessageArchived(ctx context.Context, event collector.MessageArchivedEvent) error {
	if err := p.js.Publish(ctx, nats.SubjectMessageSaved, event); err != nil {
		return fmt.Errorf("publish message event: %w", err)
	}
	return nil
}

// PublishBatchCompleted publishes a batch completed event
func (p *NATSPublisher) PublishBatchCompleted(ctx context.Context, event collector.BatchCompletedEvent) error {
	if err := p.js.Publish(ctx, nats.SubjectBatchCompleted, event); err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}
	return nil
}

var _ collector.EventPublisher = (*NATSPublisher)(nil)
