package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"harbor/internal/config"
)

const (
	kafkaMaxAttempts    = 3
	kafkaWriteTimeout   = 10 * time.Second
	kafkaAttemptTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes envelopes to a topic keyed by entity id, so events for
// one dataset stay on one partition and keep their order.
type KafkaSink struct {
	writer      messageWriter
	topic       string
	filter      eventFilter
	maxAttempts int
	backoff     time.Duration
}

func NewKafkaSink(cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: kafkaWriteTimeout,
	})
	return newKafkaSink(w, cfg), nil
}

func newKafkaSink(w messageWriter, cfg config.KafkaConfig) *KafkaSink {
	return &KafkaSink{
		writer:      w,
		topic:       cfg.Topic,
		filter:      newEventFilter(cfg.Events),
		maxAttempts: kafkaMaxAttempts,
		backoff:     100 * time.Millisecond,
	}
}

func (k *KafkaSink) Name() string { return "kafka:" + k.topic }

func (k *KafkaSink) Accepts(evtType string) bool { return k.filter.match(evtType) }

// Deliver retries transient write failures with exponential backoff.
func (k *KafkaSink) Deliver(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.EntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
		},
	}
	backoff := k.backoff
	var lastErr error
	for attempt := 1; attempt <= k.maxAttempts; attempt++ {
		msg.Time = time.Now().UTC()
		attemptCtx, cancel := context.WithTimeout(ctx, kafkaAttemptTimeout)
		err := k.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == k.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", k.maxAttempts, lastErr)
}

func (k *KafkaSink) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
