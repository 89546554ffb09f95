// Package events publishes import-run notifications for downstream consumers
// (the review UI, audit trail).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/catalogsync/import-service/internal/types"
)

// DefaultTopic receives one message per analyzed import
const DefaultTopic = "catalog.import.previewed"

// PreviewEvent summarizes one analyzed import
type PreviewEvent struct {
	RunID      string               `json:"run_id"`
	Tenant     string               `json:"tenant"`
	Filename   string               `json:"filename,omitempty"`
	Format     string               `json:"format"`
	Summary    types.PreviewSummary `json:"summary"`
	Warnings   int                  `json:"warnings"`
	DurationMs int64                `json:"duration_ms"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Publisher delivers preview events
type Publisher interface {
	PublishPreview(ctx context.Context, evt PreviewEvent) error
	Close() error
}

// Config configures the Kafka publisher; no brokers means events are dropped
type Config struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// New returns a Kafka publisher when brokers are configured, otherwise a noop
func New(cfg Config) Publisher {
	if len(cfg.Brokers) == 0 {
		return Noop{}
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes preview events to a Kafka topic, keyed by tenant so
// one tenant's runs stay ordered on a partition
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	log.Info().Str("topic", topic).Strs("brokers", brokers).Msg("Kafka publisher initialized")
	return &KafkaPublisher{writer: w, topic: topic}
}

// PublishPreview serializes and writes one event
func (p *KafkaPublisher) PublishPreview(ctx context.Context, evt PreviewEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal preview event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.Tenant),
		Value: data,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(evt.RunID)},
			{Key: "format", Value: []byte(evt.Format)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Str("run_id", evt.RunID).Str("topic", p.topic).Msg("Failed to publish preview event")
		return fmt.Errorf("failed to publish preview event: %w", err)
	}
	log.Debug().Str("run_id", evt.RunID).Str("tenant", evt.Tenant).Msg("Preview event published")
	return nil
}

// Close flushes pending messages
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards events
type Noop struct{}

// PublishPreview does nothing
func (Noop) PublishPreview(context.Context, PreviewEvent) error { return nil }

// Close does nothing
func (Noop) Close() error { return nil }
