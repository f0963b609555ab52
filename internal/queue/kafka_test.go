package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestAcceptPublishesKeyedEvent(t *testing.T) {
	w := &mockWriter{}
	p := &Producer{writer: w}

	r := airquality.Reading{
		LocationKey: "london:uk",
		City:        "London",
		Country:     "UK",
		Timestamp:   time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
		AQI:         airquality.Float(42),
	}
	if err := p.Accept(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "london:uk" {
		t.Fatalf("expected location key, got %q", w.msgs[0].Key)
	}

	var evt ReadingEvent
	if err := json.Unmarshal(w.msgs[0].Value, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.EventID == "" || evt.Reading.AQI == nil || *evt.Reading.AQI != 42 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if !evt.Reading.Timestamp.Equal(r.Timestamp) {
		t.Fatalf("timestamp mismatch: %v", evt.Reading.Timestamp)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	brokerDown := errors.New("broker down")
	p := &Producer{writer: &mockWriter{err: brokerDown}}

	if err := p.Publish(context.Background(), "k", []byte("v")); !errors.Is(err, brokerDown) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestClose(t *testing.T) {
	w := &mockWriter{}
	p := &Producer{writer: w}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatal("expected writer to be closed")
	}
}
