package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SignalHandler consumes one decoded signal.
type SignalHandler interface {
	Ingest(ctx context.Context, transport string, sig models.Signal) (*Result, error)
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	Topic      string
	GroupID    string
	MinBytes   int
	MaxBytes   int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*ConsumerConfig)

// WithConsumerRetry configures retry attempts and backoff range for
// transient handler failures.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// KafkaConsumer reads signals from a topic and hands them to the ingestor.
// Offsets are committed after handling; messages that can never succeed
// (bad JSON, invalid signals) are committed too so they do not block the
// partition.
type KafkaConsumer struct {
	cfg     ConsumerConfig
	reader  Reader
	handler SignalHandler
	logger  *logrus.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewKafkaConsumer creates a consumer group reader for the configured topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, handler SignalHandler, logger *logrus.Logger, opts ...ConsumerOption) (*KafkaConsumer, error) {
	cfg := ConsumerConfig{
		Brokers:    brokers,
		Topic:      topic,
		GroupID:    groupID,
		MinBytes:   1,
		MaxBytes:   10e6, // 10MB
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newKafkaConsumerWithReader(cfg, reader, handler, logger), nil
}

func newKafkaConsumerWithReader(cfg ConsumerConfig, reader Reader, handler SignalHandler, logger *logrus.Logger) *KafkaConsumer {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 50 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	return &KafkaConsumer{cfg: cfg, reader: reader, handler: handler, logger: logger}
}

// Run consumes until ctx is done, then closes the reader.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.WithFields(logrus.Fields{
		"topic":    c.cfg.Topic,
		"group_id": c.cfg.GroupID,
		"brokers":  c.cfg.Brokers,
	}).Info("Starting kafka signal consumer")

	defer func() {
		if err := c.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close kafka reader")
		}
		c.logger.Info("Kafka signal consumer stopped")
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).Error("Failed to fetch kafka message")
			if !sleepCtx(ctx, c.cfg.BackoffMax) {
				return nil
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Offsets are cumulative per partition, so the next commit would
			// pass this message anyway. Commit it now and move on.
			c.logger.WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).WithError(err).Error("Giving up on kafka message, skipping")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).WithError(err).Warn("Failed to commit kafka offset")
		}
	}
}

// Close closes the reader. It is safe to call more than once and is only
// needed when Run was never started.
func (c *KafkaConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.reader.Close()
	})
	return c.closeErr
}

// handle returns an error only once the retry budget is spent.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var sig models.Signal
	if err := json.Unmarshal(msg.Value, &sig); err != nil {
		c.logger.WithFields(logrus.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).WithError(err).Warn("Dropping undecodable signal")
		return nil
	}

	var err error
	for attempt := 1; ; attempt++ {
		_, err = c.handler.Ingest(ctx, TransportKafka, sig)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidSignal) {
			c.logger.WithFields(logrus.Fields{
				"signal_id": sig.ID,
				"offset":    msg.Offset,
			}).WithError(err).Warn("Dropping invalid signal")
			return nil
		}
		if attempt > c.cfg.RetryMax {
			return err
		}
		if !sleepCtx(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return ctx.Err()
		}
	}
}

func backoff(min, max time.Duration, attempt int) time.Duration {
	d := min << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
