package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aloneinabyss/lovelace"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the notification producer.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaNotifier publishes notifications keyed by recipient, so one user's messages stay
// ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (k *KafkaNotifier) Notify(ctx context.Context, n lovelace.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.Recipient),
		Value: data,
		Headers: []kafka.Header{
			{Key: "template", Value: []byte(n.Template)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
