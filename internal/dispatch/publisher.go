// Package dispatch provides the outbound email task queue. Tasks are
// published to a Redis stream and drained by a worker that hands them to the
// mailer service; the publishing side is fire-and-forget.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apodmail/apodmail/internal/metrics"
	"github.com/apodmail/apodmail/internal/model"
)

const (
	// StreamKey is the Redis stream for email tasks.
	StreamKey = "stream:email_tasks"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:email_tasks:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Publisher enqueues email tasks to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new email task publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "dispatch.publisher"),
		metrics: recorder,
	}
}

// Dispatch adds an email task to the stream.
func (p *Publisher) Dispatch(ctx context.Context, task model.EmailTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		p.metrics.IncEmailEnqueued("dropped")
		return fmt.Errorf("marshal task: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	id, err := p.redis.XAdd(publishCtx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		p.metrics.IncEmailEnqueued("dropped")
		return fmt.Errorf("xadd email task: %w", err)
	}

	p.metrics.IncEmailEnqueued("success")
	p.logger.Debug("email task enqueued",
		slog.String("message_id", id),
		slog.String("recipient", task.Recipient),
	)

	return nil
}
