// Package notify fans out data-change events over AMQP so companion
// consumers (reminder bots, exporters) can react to restores and edits.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "aman.events"

// Event is one published data-change notification.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Detail     string    `json:"detail,omitempty"`
}

// Event types.
const (
	EventRestoreCompleted = "restore.completed"
	EventBackupCompleted  = "backup.completed"
)

// Publisher sends events to a fanout exchange. A nil Publisher is a no-op,
// so callers never need to branch on whether AMQP is configured.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect dials AMQP and declares the fanout exchange. An empty URL returns
// a nil publisher.
func Connect(amqpURL string) (*Publisher, error) {
	if amqpURL == "" {
		return nil, nil
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, channel: channel}, nil
}

// Publish sends one event. Failures are logged, not returned: the data
// change already happened and must not be rolled back over a lost
// notification.
func (p *Publisher) Publish(ctx context.Context, eventType, detail string) {
	if p == nil {
		return
	}
	event := Event{Type: eventType, OccurredAt: time.Now().UTC(), Detail: detail}
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event", "type", eventType, "error", err)
		return
	}
	err = p.channel.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		slog.Error("publish event", "type", eventType, "error", err)
	}
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
