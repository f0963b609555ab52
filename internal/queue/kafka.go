package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// ReadingEvent is published once for every newly stored reading.
type ReadingEvent struct {
	EventID     string             `json:"event_id"`
	PublishedAt time.Time          `json:"published_at"`
	Reading     airquality.Reading `json:"reading"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes reading events to Kafka, partitioned by location key.
type Producer struct {
	writer messageWriter
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by key (location)
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Publish sends a message to Kafka
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Accept publishes r as a ReadingEvent. It makes the producer a collector sink.
func (p *Producer) Accept(ctx context.Context, r airquality.Reading) error {
	evt := ReadingEvent{
		EventID:     uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Reading:     r,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal reading event: %w", err)
	}
	return p.Publish(ctx, r.LocationKey, value)
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
