// Package publisher forwards committed operation records to NATS for
// downstream consumers such as keeper bots and analytics. Publishing is
// best-effort: records always land in the Postgres operation log first,
// so a consumer that misses a message can backfill from there.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"levengine/internal/event"
	"levengine/internal/observability"
)

// OutboundMessage is the wire shape on lev.engine.events.>.
type OutboundMessage struct {
	Sequence       int64           `json:"sequence"`
	RecordType     string          `json:"record_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Asset          string          `json:"asset,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
}

// Publisher drains the publish channel and pushes records to JetStream.
// Subjects follow lev.engine.events.{record_type}.{asset}.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Envelope
	metrics   *observability.Metrics
}

func New(js jetstream.JetStream, inputChan <-chan event.Envelope, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run publishes until ctx is cancelled or the channel closes. A failed
// publish is logged and dropped; it is never retried inline because the
// operation log is the source of truth.
func (p *Publisher) Run(ctx context.Context) error {
	logger := observability.NewLogger("publisher")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, env); err != nil {
				logger.Warn().
					Err(err).
					Int64("sequence", env.Sequence).
					Msg("outbound publish failed")
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env event.Envelope) error {
	msg := OutboundMessage{
		Sequence:       env.Sequence,
		RecordType:     env.RecordType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Asset:          env.Asset,
		Timestamp:      env.Timestamp,
		Payload:        env.Payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	subject := fmt.Sprintf("lev.engine.events.%s", msg.RecordType)
	if msg.Asset != "" {
		subject = fmt.Sprintf("%s.%s", subject, msg.Asset)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEV_ENGINE_EVENTS",
		Subjects:  []string{"lev.engine.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
