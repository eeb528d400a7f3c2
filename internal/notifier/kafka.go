package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"SignalSentinel/internal/model"
)

// Event types carried in the envelope.
const (
	EventSignal      = "signal"
	EventLifecycle   = "lifecycle"
	EventRegimeShift = "regime_shift"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON value of every published message.
type Envelope struct {
	Type    string          `json:"type"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// KafkaPublisher streams publications to a topic keyed by symbol.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher. Brokers must not be empty.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, topic: topic, now: time.Now}, nil
}

func (p *KafkaPublisher) PublishSignal(ctx context.Context, sig *model.Signal) error {
	return p.publish(ctx, EventSignal, sig.Symbol, sig)
}

func (p *KafkaPublisher) PublishLifecycle(ctx context.Context, evt model.LifecycleEvent) error {
	return p.publish(ctx, EventLifecycle, evt.Symbol, evt)
}

func (p *KafkaPublisher) PublishRegimeShift(ctx context.Context, shift model.RegimeShift) error {
	return p.publish(ctx, EventRegimeShift, "", shift)
}

func (p *KafkaPublisher) publish(ctx context.Context, kind, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	now := p.now()
	value, err := json.Marshal(Envelope{Type: kind, At: now, Payload: body})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Time:  now,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", kind, p.topic, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
