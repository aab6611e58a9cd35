package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageSender is the queue transport used by QueuePublisher.
type MessageSender interface {
	Send(ctx context.Context, body string) error
}

// Envelope is the message body published for every outbox entry.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SubjectID string          `json:"subject_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// QueuePublisher forwards outbox entries to a message queue.
type QueuePublisher struct {
	sender MessageSender
}

func NewQueuePublisher(sender MessageSender) *QueuePublisher {
	return &QueuePublisher{sender: sender}
}

func (p *QueuePublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	if p == nil || p.sender == nil {
		return errors.New("events: queue publisher not configured")
	}
	body, err := json.Marshal(Envelope{
		ID:        entry.ID.String(),
		Type:      entry.Type,
		SubjectID: entry.SubjectID,
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := p.sender.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.Type, err)
	}
	return nil
}
