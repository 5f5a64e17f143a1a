package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a Redis list of JSON items. The client is
// shared and is not closed by the queue.
type RedisQueue[T any] struct {
	client *redis.Client
	qKey   string
	closed atomic.Bool
}

// NewRedisQueue creates a Redis-backed queue under key queue:<QueueName>
func NewRedisQueue[T any](client *redis.Client, cfg Config) (*RedisQueue[T], error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisQueue[T]{
		client: client,
		qKey:   fmt.Sprintf("queue:%s", cfg.QueueName),
	}, nil
}

// Enqueue pushes an item to the tail of the list
func (q *RedisQueue[T]) Enqueue(ctx context.Context, item T) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

// Dequeue blocks on BLPOP for the first item, then drains up to maxItems.
// Undecodable entries are dropped.
func (q *RedisQueue[T]) Dequeue(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if maxItems <= 0 {
		maxItems = 1
	}

	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if errors.Is(err, redis.Nil) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// result[0] is the key, result[1] is the value
	items := make([]T, 0, maxItems)
	items = q.appendDecoded(items, result[1])

	if maxItems > 1 {
		rest, err := q.client.LPopCount(ctx, q.qKey, maxItems-1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return items, nil
		}
		for _, raw := range rest {
			items = q.appendDecoded(items, raw)
		}
	}
	return items, nil
}

func (q *RedisQueue[T]) appendDecoded(items []T, raw string) []T {
	var item T
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return items
	}
	return append(items, item)
}

// Length returns the current queue length
func (q *RedisQueue[T]) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close stops accepting items
func (q *RedisQueue[T]) Close() error {
	q.closed.Store(true)
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue on a Redis hash keyed by item id
type RedisDeadLetterQueue[T any] struct {
	client *redis.Client
	dlKey  string
}

// NewRedisDeadLetterQueue creates a Redis-backed dead letter queue under dlq:<QueueName>
func NewRedisDeadLetterQueue[T any](client *redis.Client, cfg Config) (*RedisDeadLetterQueue[T], error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisDeadLetterQueue[T]{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", cfg.QueueName),
	}, nil
}

// Add parks a failed item
func (q *RedisDeadLetterQueue[T]) Add(ctx context.Context, item T, cause error, retries int) error {
	dl := newDeadLetterItem(item, cause, retries)

	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", err)
	}

	if err := q.client.HSet(ctx, q.dlKey, dl.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}
	return nil
}

// List returns parked items, oldest first. Malformed entries are skipped.
func (q *RedisDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem[T], 0, len(results))
	for _, data := range results {
		var dl DeadLetterItem[T]
		if err := json.Unmarshal([]byte(data), &dl); err != nil {
			continue
		}
		items = append(items, dl)
	}
	return oldestFirst(items, maxItems), nil
}

// Remove deletes a parked item
func (q *RedisDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close is a no-op; the client is shared
func (q *RedisDeadLetterQueue[T]) Close() error {
	return nil
}
