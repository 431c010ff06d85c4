// Package kafka publishes card events so downstream services can react to
// new publications.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/deusflow/briefs/internal/feed"
)

const EventPublished = "card.published"

// Event is the JSON message body.
type Event struct {
	Type   string    `json:"type"`
	Card   feed.Card `json:"card"`
	SentAt time.Time `json:"sentAt"`
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// Publisher is a Notifier backed by a synchronous producer.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
	now      func() time.Time
}

func NewPublisher(config ProducerConfig, log *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newPublisher(producer, config.Topic, log), nil
}

func newPublisher(p sarama.SyncProducer, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{producer: p, topic: topic, log: log, now: time.Now}
}

// Notify sends one event keyed by card ID. The producer call itself is not
// cancellable; ctx is checked before sending.
func (p *Publisher) Notify(ctx context.Context, card feed.Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(Event{Type: EventPublished, Card: card, SentAt: p.now().UTC()})
	if err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(card.ID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("failed to publish card %s: %w", card.ID, err)
	}
	p.log.Debug("card event published", "card", card.ID, "partition", partition, "offset", offset)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
