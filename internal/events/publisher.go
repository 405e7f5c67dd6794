// Package events publishes trip lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Event is a trip lifecycle event addressed to one recipient.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	TripID      string         `json:"trip_id"`
	RecipientID string         `json:"recipient_id"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events to a Kafka topic keyed by trip ID, so all
// events of a trip land on one partition in order.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaWriter creates a Kafka writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaPublisher creates a new KafkaPublisher.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish writes all events in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.TripID),
			Value: payload,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	return nil
}

// LogPublisher logs events instead of delivering them.
type LogPublisher struct {
	logger logrus.FieldLogger
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs each event.
func (p *LogPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		p.logger.WithFields(logrus.Fields{
			"event_type": e.Type,
			"trip_id":    e.TripID,
			"recipient":  e.RecipientID,
		}).Info(e.Message)
	}
	return nil
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)
