package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/retailbank/accountsvc/internal/domain"
)

// LedgerEventQueue is the queue balance-affecting operations publish to.
const LedgerEventQueue = "ledger-events"

// Publisher emits ledger events after a committed operation. Publishing
// is best-effort: a failure must never roll back the committed ledger
// change.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev domain.LedgerEvent) error
}

// Nop discards every event. Used when AMQP_URL is unset and in tests.
type Nop struct{}

func (Nop) PublishLedgerEvent(ctx context.Context, ev domain.LedgerEvent) error {
	return nil
}

// RabbitMQ publishes ledger events to a durable queue.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func NewRabbitMQ(uri string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		LedgerEventQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &RabbitMQ{conn: conn, channel: ch, queue: q}, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

func (r *RabbitMQ) PublishLedgerEvent(ctx context.Context, ev domain.LedgerEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger event: %w", err)
	}

	err = r.channel.PublishWithContext(ctx,
		"",               // exchange
		LedgerEventQueue, // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("failed to publish ledger event: %w", err)
	}
	return nil
}
