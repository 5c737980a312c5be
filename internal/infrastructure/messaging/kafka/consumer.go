// Package kafka provides the producer, consumer and topic management for
// the asynchronous extraction pipeline.  Jobs are consumed with bounded
// exponential retry; messages that exhaust the budget move to a dead-letter
// topic so the partition keeps draining.
package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// ErrAlreadyRunning is returned when Start is called on a running consumer.
var ErrAlreadyRunning = appErrors.New(appErrors.ErrCodeConflict, "consumer already running")

// Message is one consumed message.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one consumed message.  A nil return commits the
// message; an error triggers the retry policy.
type Handler func(ctx context.Context, msg *Message) error

// RetryPolicy bounds how often a failing message is retried before it is
// dead-lettered.
type RetryPolicy struct {
	// MaxAttempts counts the first delivery plus retries.
	MaxAttempts int
	// InitialBackoff is the pause before the first retry; it doubles per
	// attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the extraction worker policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.ReaderStats
}

type consumerMetrics struct {
	messagesConsumed     atomic.Int64
	messagesProcessed    atomic.Int64
	messagesFailed       atomic.Int64
	messagesRetried      atomic.Int64
	messagesDeadLettered atomic.Int64
	lag                  atomic.Int64
	lastConsumedAt       atomic.Value // time.Time
}

// ConsumerMetricsSnapshot is a point-in-time copy of consumer counters.
type ConsumerMetricsSnapshot struct {
	MessagesConsumed     int64
	MessagesProcessed    int64
	MessagesFailed       int64
	MessagesRetried      int64
	MessagesDeadLettered int64
	Lag                  int64
	LastConsumedAt       time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Consumer
// ─────────────────────────────────────────────────────────────────────────────

// Consumer runs a group consumer loop dispatching messages to per-topic
// handlers.  Commits are manual: a message is committed once handled,
// dead-lettered, or dropped, so a crash mid-processing redelivers it.
type Consumer struct {
	reader   ReaderInterface
	dlq      *Producer
	dlqTopic string
	retry    RetryPolicy
	logger   logging.Logger

	handlers map[string]Handler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *consumerMetrics
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ConsumerOption {
	return func(c *Consumer) { c.retry = policy }
}

// WithDeadLetterTopic routes messages that exhaust the retry budget to the
// given topic instead of dropping them.
func WithDeadLetterTopic(topic string) ConsumerOption {
	return func(c *Consumer) { c.dlqTopic = topic }
}

// NewConsumer builds a group consumer over the given topics.
func NewConsumer(cfg config.KafkaConfig, topics []string, log logging.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "kafka brokers are required")
	}
	if cfg.GroupID == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "kafka group id is required")
	}
	if len(topics) == 0 {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "at least one topic is required")
	}

	startOffset := kafka.FirstOffset
	switch cfg.AutoOffsetReset {
	case "", "earliest":
	case "latest":
		startOffset = kafka.LastOffset
	default:
		return nil, appErrors.Newf(appErrors.ErrCodeValidation, "auto_offset_reset %q is not supported", cfg.AutoOffsetReset)
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		GroupTopics:       topics,
		MinBytes:          1,
		MaxBytes:          10 * 1024 * 1024,
		MaxWait:           time.Second,
		SessionTimeout:    timeout,
		HeartbeatInterval: 3 * time.Second,
		StartOffset:       startOffset,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})

	c := &Consumer{
		reader:   reader,
		retry:    DefaultRetryPolicy(),
		logger:   log,
		handlers: make(map[string]Handler),
		metrics:  &consumerMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dlqTopic != "" {
		producer, err := NewProducer(cfg, log)
		if err != nil {
			reader.Close()
			return nil, err
		}
		c.dlq = producer
	}

	return c, nil
}

// Subscribe registers the handler for a topic.
func (c *Consumer) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("Subscribed to topic", logging.String("topic", topic))
}

// Start launches the consume loop.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("Kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message", logging.Err(err))
			time.Sleep(time.Second)
			continue
		}

		c.metrics.messagesConsumed.Add(1)
		c.metrics.lastConsumedAt.Store(time.Now())
		c.metrics.lag.Store(m.HighWaterMark - m.Offset)

		msg := fromKafkaMessage(m)

		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("No handler for topic", logging.String("topic", m.Topic))
			c.commit(ctx, m)
			continue
		}

		if c.handleMessage(ctx, msg, handler) {
			c.commit(ctx, m)
		}
	}
}

// handleMessage runs the handler with retries and reports whether the
// message may be committed.
func (c *Consumer) handleMessage(ctx context.Context, msg *Message, handler Handler) bool {
	err := c.processWithRetry(ctx, msg, handler)
	if err == nil {
		c.metrics.messagesProcessed.Add(1)
		return true
	}
	if ctx.Err() != nil {
		// Shutdown mid-processing; leave uncommitted for redelivery.
		return false
	}

	c.metrics.messagesFailed.Add(1)
	c.logger.Error("Message processing failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(err))

	if c.dlq == nil {
		return true
	}
	if dlqErr := c.sendToDeadLetter(ctx, msg, err); dlqErr != nil {
		// Committing now would lose the message, so leave it for
		// redelivery.
		c.logger.Error("Failed to publish to dead letter topic", logging.Err(dlqErr))
		return false
	}
	c.metrics.messagesDeadLettered.Add(1)
	return true
}

func (c *Consumer) processWithRetry(ctx context.Context, msg *Message, handler Handler) error {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := c.retry.InitialBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		c.metrics.messagesRetried.Add(1)
		c.logger.Warn("Message handler failed, retrying",
			logging.String("topic", msg.Topic),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", backoff),
			logging.Err(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.retry.MaxBackoff {
			backoff = c.retry.MaxBackoff
		}
	}
	return err
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg *Message, cause error) error {
	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["original_topic"] = msg.Topic
	headers["error"] = cause.Error()

	return c.dlq.Publish(ctx, &ProducerMessage{
		Topic:   c.dlqTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.logger.Error("Failed to commit message",
			logging.String("topic", m.Topic),
			logging.Int64("offset", m.Offset),
			logging.Err(err))
	}
}

// GetMetrics returns a snapshot of consumer counters.
func (c *Consumer) GetMetrics() ConsumerMetricsSnapshot {
	snapshot := ConsumerMetricsSnapshot{
		MessagesConsumed:     c.metrics.messagesConsumed.Load(),
		MessagesProcessed:    c.metrics.messagesProcessed.Load(),
		MessagesFailed:       c.metrics.messagesFailed.Load(),
		MessagesRetried:      c.metrics.messagesRetried.Load(),
		MessagesDeadLettered: c.metrics.messagesDeadLettered.Load(),
		Lag:                  c.metrics.lag.Load(),
	}
	if at, ok := c.metrics.lastConsumedAt.Load().(time.Time); ok {
		snapshot.LastConsumedAt = at
	}
	return snapshot
}

// Close stops the loop and releases the reader and dead-letter producer.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	if c.dlq != nil {
		if dlqErr := c.dlq.Close(); err == nil {
			err = dlqErr
		}
	}

	c.logger.Info("Kafka consumer closed",
		logging.Int64("consumed", c.metrics.messagesConsumed.Load()))
	return err
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   make(map[string]string, len(m.Headers)),
		Timestamp: m.Time,
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
