package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ErrQueueUnavailable signals that background work cannot be handed to the queue.
var ErrQueueUnavailable = errors.New("synthesis: queue unavailable")

// Job is one queued synthesis request.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Trigger    Trigger   `json:"trigger"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob stamps a job with a fresh id.
func NewJob(userID string, trigger Trigger, at time.Time) Job {
	return Job{ID: uuid.NewString(), UserID: userID, Trigger: trigger, EnqueuedAt: at.UTC()}
}

// Queue accepts background synthesis jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// KafkaQueue publishes jobs to a Kafka topic keyed by user.
type KafkaQueue struct {
	writer *kafka.Writer
}

// NewKafkaQueue returns nil when no brokers are configured.
func NewKafkaQueue(brokers []string, topic string) *KafkaQueue {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaQueue{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Enqueue writes the job. Every failure wraps ErrQueueUnavailable.
func (q *KafkaQueue) Enqueue(ctx context.Context, job Job) error {
	if q == nil || q.writer == nil {
		return ErrQueueUnavailable
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode synthesis job: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(job.UserID), Value: payload}); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Close closes the writer.
func (q *KafkaQueue) Close() error {
	if q == nil || q.writer == nil {
		return nil
	}
	return q.writer.Close()
}

// JobHandler processes one dequeued job.
type JobHandler func(ctx context.Context, job Job) error

// Consumer reads jobs from Kafka as part of a consumer group.
type Consumer struct {
	reader     *kafka.Reader
	jobTimeout time.Duration
	logger     zerolog.Logger
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Brokers    []string
	Topic      string
	GroupID    string
	JobTimeout time.Duration
}

// NewConsumer builds a Kafka consumer.
func NewConsumer(opts ConsumerOptions, logger zerolog.Logger) (*Consumer, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%w: no brokers configured", ErrQueueUnavailable)
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        opts.Brokers,
		Topic:          opts.Topic,
		GroupID:        opts.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return &Consumer{
		reader:     reader,
		jobTimeout: timeout,
		logger:     logger.With().Str("component", "synthesis_consumer").Logger(),
	}, nil
}

// Run consumes until ctx is cancelled. Handler failures are logged and the job is skipped.
func (c *Consumer) Run(ctx context.Context, handle JobHandler) error {
	c.logger.Info().Str("topic", c.reader.Config().Topic).Str("group", c.reader.Config().GroupID).Msg("consuming synthesis jobs")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("kafka read error")
			continue
		}

		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping undecodable job")
			continue
		}

		jobCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
		if err := handle(jobCtx, job); err != nil {
			c.logger.Error().Err(err).Str("job_id", job.ID).Str("user_id", job.UserID).Msg("synthesis job failed")
		}
		cancel()
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

var _ Queue = (*KafkaQueue)(nil)
