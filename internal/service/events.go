// Package service holds the server side of the chat API: turning a user
// message into an engine turn, persisting the transcript, storing
// predictions and publishing lifecycle events.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/queue"
)

// Publisher sends lifecycle events. Failures are reported to the caller,
// which logs and moves on.
type Publisher interface {
	Publish(ctx context.Context, ev queue.LifecycleEvent) error
}

// NewPublisher returns an AMQP publisher, or a no-op one when url is empty.
func NewPublisher(url string, log *logger.Logger) Publisher {
	if url == "" {
		return NopPublisher{}
	}
	return &AMQPPublisher{URL: url, Log: log}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.LifecycleEvent) error { return nil }

// AMQPPublisher dials per publish; lifecycle events are rare enough that
// holding a channel open is not worth the reconnect handling.
type AMQPPublisher struct {
	URL string
	Log *logger.Logger
}

// Publish declares the durable lifecycle queue and publishes ev to it as
// a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.LifecycleEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Log.Warn("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Warn("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue.LifecycleQueue, // name
		true,                 // durable
		false,                // autoDelete
		false,                // exclusive
		false,                // noWait
		nil,                  // args
	); err != nil {
		p.Log.Warn("rabbitmq: queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.LifecycleQueue, false, false, pub); err != nil {
		p.Log.Warn("rabbitmq: publish failed", "error", err, "type", ev.Type)
		return err
	}
	return nil
}
