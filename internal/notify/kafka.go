package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the slice of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// TopicEnsurer creates a topic before its first record.
type TopicEnsurer interface {
	Ensure(ctx context.Context, topic string) error
}

// KafkaChannel writes every event to its tenant's topic, keyed by tenant so
// one tenant's events stay ordered within a partition.
type KafkaChannel struct {
	producer Producer
	topics   TopicEnsurer
	prefix   string
}

func NewKafkaChannel(producer Producer, topics TopicEnsurer, prefix string) *KafkaChannel {
	if prefix == "" {
		prefix = "timekeep"
	}
	return &KafkaChannel{producer: producer, topics: topics, prefix: prefix}
}

func (k *KafkaChannel) Name() string { return "kafka" }

// Topic is the per-tenant topic name.
func (k *KafkaChannel) Topic(ev Event) string {
	return fmt.Sprintf("%s.%s.events", k.prefix, ev.TenantID)
}

func (k *KafkaChannel) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	topic := k.Topic(ev)
	if k.topics != nil {
		if err := k.topics.Ensure(ctx, topic); err != nil {
			return err
		}
	}
	rec := &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.TenantID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
		Timestamp: ev.OccurredAt,
	}
	if err := k.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}
