package publisher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/logger"
)

// Publisher 아웃박스 이벤트 다운스트림 전달
type Publisher interface {
	Publish(ctx context.Context, events []contracts.OutboxEvent) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used here
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by forecast id
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logger.Logger
}

// NewKafkaPublisher creates a synchronous, acks=all writer
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 같은 forecast 는 같은 파티션
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic, log), nil
}

func newKafkaPublisher(w messageWriter, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: log.WithModule("publisher.kafka"),
	}
}

// Publish writes all events in one batch; any error fails the whole batch
func (p *KafkaPublisher) Publish(ctx context.Context, events []contracts.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, Message(e))
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.topic, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"topic": p.topic,
		"count": len(msgs),
	}).Debug("Published events")
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message converts an outbox event to a kafka message
func Message(e contracts.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(e.ForecastID, 10)),
		Value: e.Payload,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(strconv.FormatInt(e.ID, 10))},
		},
	}
}

// LogPublisher 브로커 미설정 시 로그로만 전달
type LogPublisher struct {
	logger *logger.Logger
}

// NewLogPublisher creates the fallback publisher
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log.WithModule("publisher.log")}
}

// Publish logs each event
func (p *LogPublisher) Publish(_ context.Context, events []contracts.OutboxEvent) error {
	for _, e := range events {
		p.logger.WithFields(map[string]interface{}{
			"event_id":    e.ID,
			"forecast_id": e.ForecastID,
			"type":        string(e.Type),
		}).Info("forecast event")
	}
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error { return nil }
