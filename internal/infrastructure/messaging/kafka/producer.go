package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
)

// ErrProducerClosed is returned by publishes issued after Close.
var ErrProducerClosed = appErrors.New(appErrors.ErrCodePublish, "producer is closed")

const defaultMaxMessageBytes = 1024 * 1024

// ─────────────────────────────────────────────────────────────────────────────
// Message envelope
// ─────────────────────────────────────────────────────────────────────────────

// ProducerMessage is one message to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// BatchItemError reports one failed message within a batch.
type BatchItemError struct {
	Index int
	Topic string
	Err   error
}

// BatchResult summarises a batch publish.
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    []BatchItemError
}

// ─────────────────────────────────────────────────────────────────────────────
// Producer
// ─────────────────────────────────────────────────────────────────────────────

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.WriterStats
}

type producerMetrics struct {
	messagesSent   atomic.Int64
	messagesFailed atomic.Int64
	bytesSent      atomic.Int64
	lastSentAt     atomic.Value // time.Time
}

// ProducerMetricsSnapshot is a point-in-time copy of producer counters.
type ProducerMetricsSnapshot struct {
	MessagesSent   int64
	MessagesFailed int64
	BytesSent      int64
	LastSentAt     time.Time
}

// Producer publishes extraction pipeline messages.  Messages are keyed by
// document so the hash balancer keeps each document's events in order.
type Producer struct {
	writer          WriterInterface
	maxMessageBytes int
	logger          logging.Logger
	closed          atomic.Bool
	metrics         *producerMetrics
}

// NewProducer builds a producer from the Kafka configuration.  Writes
// require acknowledgement from all in-sync replicas because a lost job
// means a document that never gets extracted.
func NewProducer(cfg config.KafkaConfig, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "kafka brokers are required")
	}

	retries := cfg.ProducerRetries
	if retries <= 0 {
		retries = 3
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            retries + 1,
		BatchSize:              batchSize,
		BatchTimeout:           time.Second,
		WriteTimeout:           timeout,
		ReadTimeout:            timeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
	}

	return &Producer{
		writer:          writer,
		maxMessageBytes: defaultMaxMessageBytes,
		logger:          log,
		metrics:         &producerMetrics{},
	}, nil
}

// Publish publishes a single message.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		return appErrors.New(appErrors.ErrCodeValidation, "message topic is required")
	}
	if len(msg.Value) == 0 {
		return appErrors.New(appErrors.ErrCodeValidation, "message value is required")
	}
	if len(msg.Value) > p.maxMessageBytes {
		return appErrors.Newf(appErrors.ErrCodeValidation, "message exceeds %d bytes", p.maxMessageBytes)
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, p.toKafkaMessage(msg)); err != nil {
		p.metrics.messagesFailed.Add(1)
		return appErrors.Wrap(err, appErrors.ErrCodePublish, "failed to publish message")
	}

	p.metrics.messagesSent.Add(1)
	p.metrics.bytesSent.Add(int64(len(msg.Value)))
	p.metrics.lastSentAt.Store(time.Now())

	p.logger.Debug("Published message",
		logging.String("topic", msg.Topic),
		logging.Duration("latency", time.Since(start)))
	return nil
}

// PublishBatch publishes several messages in one write, reporting per-item
// failures instead of failing the whole batch.
func (p *Producer) PublishBatch(ctx context.Context, msgs []*ProducerMessage) (*BatchResult, error) {
	if p.closed.Load() {
		return nil, ErrProducerClosed
	}
	if len(msgs) == 0 {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "batch is empty")
	}

	kmsgs := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		kmsgs[i] = p.toKafkaMessage(msg)
	}

	result := &BatchResult{}
	if err := p.writer.WriteMessages(ctx, kmsgs...); err != nil {
		writeErrs, ok := err.(kafka.WriteErrors)
		if !ok {
			result.Failed = len(msgs)
			result.Errors = append(result.Errors, BatchItemError{Index: -1, Err: err})
		} else {
			for i, itemErr := range writeErrs {
				if itemErr == nil {
					result.Succeeded++
					continue
				}
				result.Failed++
				result.Errors = append(result.Errors, BatchItemError{
					Index: i,
					Topic: msgs[i].Topic,
					Err:   itemErr,
				})
			}
		}
	} else {
		result.Succeeded = len(msgs)
	}

	p.metrics.messagesSent.Add(int64(result.Succeeded))
	p.metrics.messagesFailed.Add(int64(result.Failed))

	p.logger.Info("Published batch",
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Typed publishes
// ─────────────────────────────────────────────────────────────────────────────

// PublishExtractionJob enqueues one extraction job.
func (p *Producer) PublishExtractionJob(ctx context.Context, job btypes.ExtractionJobMessage) error {
	if err := job.Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeValidation, "invalid extraction job")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode extraction job")
	}
	return p.Publish(ctx, &ProducerMessage{
		Topic: TopicExtractions,
		Key:   []byte(job.DocumentID),
		Value: body,
	})
}

// PublishExtractionCompleted reports one finished extraction run.
func (p *Producer) PublishExtractionCompleted(ctx context.Context, msg btypes.ExtractionCompletedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode completion event")
	}
	return p.Publish(ctx, &ProducerMessage{
		Topic: TopicExtractionsCompleted,
		Key:   []byte(msg.DocumentID),
		Value: body,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// GetMetrics returns a snapshot of producer counters.
func (p *Producer) GetMetrics() ProducerMetricsSnapshot {
	snapshot := ProducerMetricsSnapshot{
		MessagesSent:   p.metrics.messagesSent.Load(),
		MessagesFailed: p.metrics.messagesFailed.Load(),
		BytesSent:      p.metrics.bytesSent.Load(),
	}
	if at, ok := p.metrics.lastSentAt.Load().(time.Time); ok {
		snapshot.LastSentAt = at
	}
	return snapshot
}

// Close shuts the producer down.  Safe to call more than once.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("Kafka producer closed",
		logging.Int64("sent", p.metrics.messagesSent.Load()))
	return err
}

func (p *Producer) toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}
