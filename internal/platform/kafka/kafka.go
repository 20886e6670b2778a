// Package kafka builds franz-go clients and bootstraps per-tenant topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"timekeep/internal/platform/config"
)

// NewClient returns a producer client, or nil when no brokers are configured.
func NewClient(cfg config.KafkaConfig, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	all := append([]kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}, opts...)
	client, err := kgo.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// TopicEnsurer creates topics on first use and remembers which exist.
type TopicEnsurer struct {
	admin             *kadm.Client
	partitions        int32
	replicationFactor int16
	logger            *slog.Logger

	mu    sync.Mutex
	known map[string]struct{}
}

func NewTopicEnsurer(client *kgo.Client, cfg config.KafkaConfig, logger *slog.Logger) *TopicEnsurer {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	rf := cfg.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	return &TopicEnsurer{
		admin:             kadm.NewClient(client),
		partitions:        partitions,
		replicationFactor: rf,
		logger:            logger,
		known:             make(map[string]struct{}),
	}
}

// Ensure creates topic if it has not been seen. Already-existing topics are
// not an error.
func (e *TopicEnsurer) Ensure(ctx context.Context, topic string) error {
	e.mu.Lock()
	_, ok := e.known[topic]
	e.mu.Unlock()
	if ok {
		return nil
	}

	resp, err := e.admin.CreateTopic(ctx, e.partitions, e.replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	if e.logger != nil && resp.Err == nil {
		e.logger.InfoContext(ctx, "kafka topic created", "topic", topic, "partitions", e.partitions)
	}

	e.mu.Lock()
	e.known[topic] = struct{}{}
	e.mu.Unlock()
	return nil
}
