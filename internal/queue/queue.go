// Package queue provides the asynchronous hand-off used for best-effort side
// effects (billing counters) after a tool call completes. Two backends share one
// interface:
//
//   - MemoryQueue: a bounded channel; nothing survives a restart.
//   - RedisQueue: a Redis list holding JSON items; survives restarts and can be
//     drained by several gateway replicas.
//
// Items that keep failing after MaxRetries are parked in a DeadLetterQueue.
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO of typed items.
type Queue[T any] interface {
	// Enqueue adds an item. It must not block the caller for long.
	Enqueue(ctx context.Context, item T) error

	// Dequeue waits up to timeout for the first item, then returns it together
	// with any items immediately available, up to maxItems. A timeout yields an
	// empty slice and no error.
	Dequeue(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the number of queued items.
	Length(ctx context.Context) (int, error)

	// Close stops accepting items.
	Close() error
}

// DeadLetterQueue parks items that exhausted their retries.
type DeadLetterQueue[T any] interface {
	Add(ctx context.Context, item T, cause error, retries int) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem is a failed item with its last error.
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue and worker settings.
type Config struct {
	// QueueName namespaces the Redis keys (queue:<name>, dlq:<name>).
	QueueName string

	// Capacity bounds the in-memory queue.
	Capacity int

	// BatchSize is the maximum number of items processed per batch.
	BatchSize int

	// BatchTimeout is how long a worker waits for the first item of a batch.
	BatchTimeout time.Duration

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled on each retry.
	RetryBackoff time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) Config {
	return Config{
		QueueName:    queueName,
		Capacity:     10_000,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}

// Backoff returns the wait before retry attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return c.RetryBackoff * time.Duration(1<<uint(attempt-1))
}
