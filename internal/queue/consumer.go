package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cardiosense/assessment-api/internal/logger"
)

// AuditConsumer drains LifecycleQueue into a single-line audit log.
type AuditConsumer struct {
	URL     string
	LogPath string
	Log     *logger.Logger
}

// NewAuditConsumer writes to logs/lifecycle.log.
func NewAuditConsumer(url string, log *logger.Logger) *AuditConsumer {
	return &AuditConsumer{URL: url, LogPath: filepath.Join("logs", "lifecycle.log"), Log: log}
}

// Run connects to RabbitMQ, declares the queue and consumes until ctx is
// cancelled. Broker failures are retried with exponential backoff capped
// at 30s; bad messages are rejected without requeue so the loop keeps
// going.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(a.URL)
		if err != nil {
			a.Log.Warn("audit consumer: dial failed", "error", err, "retry_in", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = a.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Log.Warn("audit consumer: loop ended, reconnecting", "error", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (a *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.Log.Warn("audit consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(LifecycleQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(LifecycleQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := a.Handle(d.Body); err != nil {
				a.Log.Warn("audit consumer: handle message failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one event body and appends its audit line.
func (a *AuditConsumer) Handle(body []byte) error {
	var ev LifecycleEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.UserID == "" {
		return errors.New("event without type or user")
	}
	if err := os.MkdirAll(filepath.Dir(a.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(a.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as one audit log line ending in a newline.
func FormatLine(ev LifecycleEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | user_id=%s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.UserID)
	switch ev.Type {
	case EventAssessmentCreated:
		fmt.Fprintf(&b, " | assessment_id=%s | session_id=%s | model=%q | risk=%.2f (%s)",
			ev.AssessmentID, ev.SessionID, ev.ModelUsed, ev.RiskScore, ev.RiskLevel)
	case EventPlanDeleted:
		fmt.Fprintf(&b, " | assessment_id=%s", ev.AssessmentID)
	case EventAccountReset:
		fmt.Fprintf(&b, " | sessions=%d | messages=%d | assessments=%d",
			ev.SessionsDeleted, ev.MessagesDeleted, ev.AssessmentsDeleted)
	}
	if len(ev.Errors) > 0 {
		fmt.Fprintf(&b, " | errors=[%s]", strings.Join(ev.Errors, "; "))
	}
	b.WriteByte('\n')
	return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
