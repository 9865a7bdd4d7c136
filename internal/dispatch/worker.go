package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apodmail/apodmail/internal/metrics"
	"github.com/apodmail/apodmail/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "mail_workers"

	// DefaultBatchSize is the max tasks read per batch.
	DefaultBatchSize = 50

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultDeliverTimeout bounds one POST to the mailer.
	DefaultDeliverTimeout = 30 * time.Second

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMaxDeliveries is the delivery attempts before dead-lettering.
	DefaultMaxDeliveries = 3

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second
)

// Worker drains email tasks from the Redis stream and hands each one to the
// mailer service as a form-encoded POST. Returning a non-2xx response leaves
// the message pending so it is reclaimed and retried; tasks that exhaust
// their delivery attempts are moved to the dead-letter stream.
type Worker struct {
	redis           *redis.Client
	httpClient      *http.Client
	mailerURL       string
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	maxDeliveries   int64
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a new mail dispatch worker.
func NewWorker(client *redis.Client, mailerURL string, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		httpClient:      &http.Client{Timeout: DefaultDeliverTimeout},
		mailerURL:       mailerURL,
		logger:          logger.With("component", "dispatch.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		maxDeliveries:   DefaultMaxDeliveries,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	// Ensure consumer group exists
	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("mail dispatch worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()

		if draining {
			w.logger.Info("mail dispatch worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("mail dispatch worker stopping")
			return ctx.Err()
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, completing any in-flight batch.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("mail dispatch worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("mail dispatch worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("mail dispatch worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

// ensureConsumerGroup creates the consumer group if it doesn't exist.
func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce reads and delivers a single batch.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	claimed, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}

	messages := claimed
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}

	if len(messages) == 0 {
		return nil
	}

	for _, msg := range messages {
		w.handleMessage(ctx, msg)
	}

	return nil
}

// handleMessage delivers one task. Malformed payloads and tasks that have
// exhausted their delivery attempts go to the dead-letter stream; transient
// delivery failures stay pending for a later reclaim.
func (w *Worker) handleMessage(ctx context.Context, msg redis.XMessage) {
	payload, _ := msg.Values["payload"].(string)

	var task model.EmailTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		w.logger.Warn("malformed email task, dead-lettering",
			slog.String("message_id", msg.ID),
			"error", err,
		)
		w.deadLetter(ctx, msg, "malformed payload")
		return
	}

	if err := w.deliver(ctx, task); err != nil {
		w.metrics.IncEmailDelivered("failed")
		w.logger.Error("email delivery failed",
			slog.String("message_id", msg.ID),
			slog.String("recipient", task.Recipient),
			"error", err,
		)

		if w.deliveryCount(ctx, msg.ID) >= w.maxDeliveries {
			w.deadLetter(ctx, msg, err.Error())
		}
		// Otherwise leave the message pending for reclaim.
		return
	}

	w.metrics.IncEmailDelivered("success")
	w.ack(ctx, msg.ID)
}

// deliver POSTs one task to the mailer service as form data, the shape the
// legacy mailer expects.
func (w *Worker) deliver(ctx context.Context, task model.EmailTask) error {
	form := url.Values{}
	form.Set("email", task.Recipient)
	form.Set("subject", task.Subject)
	form.Set("body", task.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.mailerURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build mailer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to mailer: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mailer returned status %d", resp.StatusCode)
	}

	return nil
}

// deliveryCount returns how many times a pending message has been delivered.
func (w *Worker) deliveryCount(ctx context.Context, messageID string) int64 {
	pending, err := w.redis.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamKey,
		Group:  ConsumerGroup,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return pending[0].RetryCount
}

// deadLetter moves a message to the dead-letter stream and ACKs it.
func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	payload, _ := msg.Values["payload"].(string)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		ID:     "*",
		Values: map[string]interface{}{
			"payload":     payload,
			"reason":      reason,
			"original_id": msg.ID,
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to dead-letter message",
			slog.String("message_id", msg.ID),
			"error", err,
		)
		return
	}

	w.ack(ctx, msg.ID)
}

func (w *Worker) ack(ctx context.Context, messageID string) {
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageID).Err(); err != nil {
		w.logger.Warn("failed to ack message",
			slog.String("message_id", messageID),
			"error", err,
		)
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()

	if err == redis.Nil || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	return streams[0].Messages, nil
}

// maybeClaimPending checks for stuck pending messages and reclaims them.
func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}

	w.lastClaim = time.Now()
	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := w.redis.XLen(ctx, StreamKey).Result()
	if err != nil {
		return
	}
	w.metrics.SetMailQueueDepth(depth)
}

// isConsumerGroupExistsError checks if the error is "BUSYGROUP" (group exists).
func isConsumerGroupExistsError(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" ||
		err.Error() == "BUSYGROUP")
}
