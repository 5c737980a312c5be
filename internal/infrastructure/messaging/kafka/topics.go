package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// Topic names.  Extraction jobs flow through the extractions topic, their
// terminal outcomes through the completed topic, and messages that exhaust
// the retry budget land on the dead-letter topic.
const (
	TopicExtractions          = "legisgraph.extractions"
	TopicExtractionsCompleted = "legisgraph.extractions.completed"
	TopicExtractionsDLQ       = "legisgraph.extractions.dlq"
)

const (
	defaultNumPartitions     = 3
	defaultReplicationFactor = 1

	weekRetentionMs  = 7 * 24 * 3600 * 1000
	monthRetentionMs = 30 * 24 * 3600 * 1000
)

// TopicConfig describes one topic to ensure at startup.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopics returns the topics the extraction pipeline depends on,
// sized from the Kafka configuration.  Dead letters are retained longer
// than live traffic so failed jobs stay inspectable.
func DefaultTopics(cfg config.KafkaConfig) []TopicConfig {
	partitions := cfg.NumPartitions
	if partitions <= 0 {
		partitions = defaultNumPartitions
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = defaultReplicationFactor
	}
	return []TopicConfig{
		{Name: TopicExtractions, NumPartitions: partitions, ReplicationFactor: replication, RetentionMs: weekRetentionMs},
		{Name: TopicExtractionsCompleted, NumPartitions: partitions, ReplicationFactor: replication, RetentionMs: weekRetentionMs},
		{Name: TopicExtractionsDLQ, NumPartitions: 1, ReplicationFactor: replication, RetentionMs: monthRetentionMs},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Topic manager
// ─────────────────────────────────────────────────────────────────────────────

// ConnInterface abstracts the broker admin connection for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates and inspects topics over an admin connection.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials the first broker for topic administration.
func NewTopicManager(brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "kafka brokers are required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodePublish, "failed to dial kafka broker")
	}
	return &TopicManager{
		conn:   conn,
		logger: log,
	}, nil
}

// CreateTopic creates one topic, treating an already existing topic as
// success.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return appErrors.New(appErrors.ErrCodeValidation, "topic name is required")
	}
	if cfg.NumPartitions <= 0 {
		return appErrors.New(appErrors.ErrCodeValidation, "topic partitions must be positive")
	}
	if cfg.ReplicationFactor <= 0 {
		return appErrors.New(appErrors.ErrCodeValidation, "topic replication factor must be positive")
	}

	topicCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		topicCfg.ConfigEntries = append(topicCfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs),
		})
	}

	if err := m.conn.CreateTopics(topicCfg); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		// Some brokers report existing topics as a generic error.
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrCodePublish, "failed to create topic")
	}
	m.logger.Info("Created Kafka topic",
		logging.String("topic", cfg.Name),
		logging.Int("partitions", cfg.NumPartitions))
	return nil
}

// TopicExists reports whether the topic has at least one partition.
func (m *TopicManager) TopicExists(_ context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

// EnsureTopics creates every given topic that does not exist yet.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDefaultTopics creates the extraction pipeline topics.
func (m *TopicManager) EnsureDefaultTopics(ctx context.Context, cfg config.KafkaConfig) error {
	return m.EnsureTopics(ctx, DefaultTopics(cfg))
}

// Close releases the admin connection.
func (m *TopicManager) Close() error {
	return m.conn.Close()
}
