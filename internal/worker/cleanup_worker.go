package worker

import (
	"CloudVault/config"
	"CloudVault/internal/common"
	"CloudVault/internal/logging"
	"CloudVault/internal/mq"
	"CloudVault/internal/storage"
	"CloudVault/internal/task"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

type dlqMessage struct {
	task.CleanupMessage
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// retryPublisher is the part of mq.Client the worker publishes through.
type retryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

// CleanupWorker removes orphaned objects reported by the file version service.
type CleanupWorker struct {
	backend   storage.Backend
	versions  task.PathLookup
	publisher retryPublisher
	limiter   *rate.Limiter
	log       logging.Logger
	maxRetry  int
	delays    []time.Duration
}

// NewCleanupWorker returns a worker. Objects that versions still records are
// never removed; a nil versions skips that check.
func NewCleanupWorker(cfg config.Config, backend storage.Backend, versions task.PathLookup, publisher retryPublisher, logger logging.Logger) *CleanupWorker {
	burst := cfg.CleanupBurst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if cfg.CleanupRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(cfg.CleanupRate), burst)
	}
	maxRetry := cfg.CleanupRetryMax
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &CleanupWorker{
		backend:   backend,
		versions:  versions,
		publisher: publisher,
		limiter:   limiter,
		log:       logger.With("component", "cleanup_worker"),
		maxRetry:  maxRetry,
		delays:    cfg.CleanupRetryDelays,
	}
}

// RunCleanupWorker consumes cleanup tasks from RabbitMQ until ctx is done.
// It returns once every in-flight delivery has been acked or nacked.
func RunCleanupWorker(ctx context.Context, cfg config.Config, backend storage.Backend, versions task.PathLookup, logger logging.Logger) error {
	client, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	prefetch := cfg.RabbitMQPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueTasks,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	w := NewCleanupWorker(cfg, backend, versions, client, logger)
	return w.Consume(ctx, deliveries, cfg.CleanupWorkerConcurrency)
}

// Consume runs Handle for each delivery with at most concurrency handlers at a
// time. It stops reading when ctx is done or deliveries is closed and waits
// for running handlers before returning, so the channel they ack on is still
// open.
func (w *CleanupWorker) Consume(ctx context.Context, deliveries <-chan amqp.Delivery, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("cleanup worker: delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				w.Handle(ctx, d)
			}(delivery)
		}
	}
}

// Handle processes one delivery and always acks or nacks it.
func (w *CleanupWorker) Handle(ctx context.Context, delivery amqp.Delivery) {
	var msg task.CleanupMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		w.log.Warn(ctx, "invalid cleanup message", "error", err)
		_ = delivery.Ack(false)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	err := task.ProcessCleanupTask(ctx, w.backend, w.versions, msg)
	if err == nil {
		w.log.Info(ctx, "orphan removed", "version_id", msg.VersionID, "path", msg.Path, "attempt", msg.Attempt)
		_ = delivery.Ack(false)
		return
	}
	if errors.Is(err, task.ErrObjectReferenced) {
		w.log.Warn(ctx, "orphan still referenced, skipped", "version_id", msg.VersionID, "error", err)
		_ = delivery.Ack(false)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = delivery.Nack(false, true)
		return
	}
	if shouldRetry(err) {
		err = w.scheduleRetry(ctx, msg, err)
	} else {
		err = w.markFailed(ctx, msg, err)
	}
	if err != nil {
		w.log.Error(ctx, "cleanup requeue failed", "version_id", msg.VersionID, "error", err)
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

// shouldRetry reports whether a removal failure may succeed later.
func shouldRetry(err error) bool {
	if errors.Is(err, common.ErrPermissionDenied) || errors.Is(err, common.ErrInvalidName) {
		return false
	}
	return true
}

func (w *CleanupWorker) scheduleRetry(ctx context.Context, msg task.CleanupMessage, procErr error) error {
	nextAttempt := msg.Attempt + 1
	if w.maxRetry == 0 || nextAttempt > w.maxRetry {
		return w.markFailed(ctx, msg, procErr)
	}

	delay := pickRetryDelay(nextAttempt, w.delays)
	msg.Attempt = nextAttempt
	msg.Reason = procErr.Error()
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.log.Warn(ctx, "orphan removal retry scheduled", "version_id", msg.VersionID, "attempt", nextAttempt, "delay", delay.String(), "error", procErr)
	return w.publisher.PublishRetry(ctx, body, delay)
}

func (w *CleanupWorker) markFailed(ctx context.Context, msg task.CleanupMessage, procErr error) error {
	dlq := dlqMessage{
		CleanupMessage: msg,
		Error:          procErr.Error(),
		FailedAt:       time.Now().UTC(),
	}
	body, err := json.Marshal(dlq)
	if err != nil {
		return err
	}
	w.log.Error(ctx, "orphan removal gave up", "version_id", msg.VersionID, "path", msg.Path, "attempt", msg.Attempt, "error", procErr)
	if err := w.publisher.PublishDLQ(ctx, body); err != nil {
		w.log.Error(ctx, "dlq publish failed", "error", err)
	}
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
