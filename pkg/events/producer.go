// Package events announces finished pipeline runs on Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	EventRunCompleted = "pipeline.run.completed"
	EventRunFailed    = "pipeline.run.failed"

	schemaVersion = "1.0"
)

// Publisher emits run lifecycle events.
type Publisher interface {
	PublishRun(ctx context.Context, event *RunEvent) error
	Close() error
}

// RunEvent is the payload published when a run ends.
type RunEvent struct {
	EventType string             `json:"event_type"`
	RunID     string             `json:"run_id"`
	TraceID   string             `json:"trace_id,omitempty"`
	Error     string             `json:"error,omitempty"`
	Summary   *models.RunSummary `json:"summary,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer publishes run events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              1,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishRun writes one event keyed by run ID.
func (p *Producer) PublishRun(ctx context.Context, event *RunEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Producer.PublishRun")
	defer span.End()

	msg, err := newRunMessage(p.topic, event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish run event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"run_id":     event.RunID,
		"topic":      p.topic,
	}).Debug("Published run event")
	return nil
}

func newRunMessage(topic string, event *RunEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "schema_version", Value: []byte(schemaVersion)},
		},
	}, nil
}

// NoopPublisher drops events. It is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishRun(context.Context, *RunEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
