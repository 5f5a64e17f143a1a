package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tool_gateway/internal/utils"
)

// Handler processes one item. A returned error triggers a retry.
type Handler[T any] func(ctx context.Context, item T) error

// Worker drains a queue in batches, retrying failed items with exponential
// backoff and moving them to the dead letter queue once retries run out.
type Worker[T any] struct {
	queue   Queue[T]
	dlq     DeadLetterQueue[T]
	handle  Handler[T]
	config  Config
	logger  *utils.Logger
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewWorker creates a worker. dlq may be nil, in which case exhausted items are dropped.
func NewWorker[T any](name string, q Queue[T], dlq DeadLetterQueue[T], handle Handler[T], config Config) *Worker[T] {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig(name).BatchSize
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = DefaultConfig(name).BatchTimeout
	}
	return &Worker[T]{
		queue:   q,
		dlq:     dlq,
		handle:  handle,
		config:  config,
		logger:  utils.NewLogger(name + "-worker"),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the worker loop in a goroutine
func (w *Worker[T]) Start(ctx context.Context) {
	w.started.Store(true)
	go w.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight batch. Items still
// queued in a persistent backend stay there for the next run.
func (w *Worker[T]) Stop() error {
	w.once.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.stopped
	}
	return nil
}

// Enqueue adds an item to the worker's queue
func (w *Worker[T]) Enqueue(ctx context.Context, item T) error {
	return w.queue.Enqueue(ctx, item)
}

// QueueLength returns the current queue length
func (w *Worker[T]) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems lists parked items
func (w *Worker[T]) DeadLetterItems(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	if w.dlq == nil {
		return nil, errors.New("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a parked item and removes it from the dead letter queue
func (w *Worker[T]) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return errors.New("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dl := range items {
		if dl.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dl.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}
	return ErrItemNotFound
}

func (w *Worker[T]) run(ctx context.Context) {
	defer close(w.stopped)

	for {
		select {
		case <-w.stop:
			w.logger.Info("worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("worker context cancelled")
			return
		default:
		}

		if err := w.processBatch(ctx); err != nil {
			if errors.Is(err, ErrQueueClosed) {
				w.logger.Info("queue closed, worker exiting")
				return
			}
			w.logger.Error("failed to dequeue", "error", err)
			if !w.wait(ctx, time.Second) {
				return
			}
		}
	}
}

func (w *Worker[T]) processBatch(ctx context.Context) error {
	items, err := w.queue.Dequeue(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if len(items) == 0 {
		return nil
	}

	w.logger.Debug("processing batch", "count", len(items))
	for _, item := range items {
		w.processItem(ctx, item)
	}
	return nil
}

func (w *Worker[T]) processItem(ctx context.Context, item T) {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.Backoff(attempt)
			w.logger.Debug("retrying item", "attempt", attempt, "backoff", backoff)
			if !w.wait(ctx, backoff) {
				break
			}
		}

		if err := w.safeHandle(ctx, item); err != nil {
			lastErr = err
			w.logger.Warn("item failed", "attempt", attempt, "error", err)
			continue
		}
		return
	}

	if lastErr == nil {
		lastErr = errors.New("worker stopped before item was processed")
	}
	if w.dlq == nil {
		w.logger.Error("item dropped after retries", "error", lastErr)
		return
	}
	if err := w.dlq.Add(context.WithoutCancel(ctx), item, lastErr, w.config.MaxRetries); err != nil {
		w.logger.Error("failed to add to dead letter queue", "error", err)
		return
	}
	w.logger.Warn("item moved to DLQ", "error", lastErr)
}

func (w *Worker[T]) safeHandle(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handle(ctx, item)
}

// wait sleeps for d unless the worker is stopped first
func (w *Worker[T]) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
