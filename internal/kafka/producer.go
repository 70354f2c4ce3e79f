// Package kafka mirrors lifecycle events onto a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/imrishuroy/canteen-orderflow/internal/events"
)

type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	done     chan struct{}
}

// NewProducer dials the brokers and starts an async producer.
func NewProducer(brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("start kafka producer: %w", err)
	}
	return newProducer(producer, topic, logger), nil
}

func newProducer(ap sarama.AsyncProducer, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{producer: ap, topic: topic, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for err := range ap.Errors() {
			logger.Error("kafka publish failed", "topic", topic, "error", err)
		}
	}()
	return p
}

// Notify queues the event keyed by order id so one order's events stay
// ordered within a partition.
func (p *Producer) Notify(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.OrderID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(e.Type)},
		},
	}
	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered messages and stops the producer.
func (p *Producer) Close() error {
	err := p.producer.Close()
	<-p.done
	return err
}
