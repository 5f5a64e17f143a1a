package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Queue with a bounded channel
type MemoryQueue[T any] struct {
	items chan T
	done  chan struct{}
	once  sync.Once
}

// NewMemoryQueue creates an in-memory queue holding up to cfg.Capacity items
func NewMemoryQueue[T any](cfg Config) *MemoryQueue[T] {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultConfig(cfg.QueueName).Capacity
	}
	return &MemoryQueue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue adds an item without blocking; a full queue returns ErrQueueFull
func (q *MemoryQueue[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue waits up to timeout for items
func (q *MemoryQueue[T]) Dequeue(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	if maxItems <= 0 {
		maxItems = 1
	}

	var first T
	select {
	case first = <-q.items:
	default:
		select {
		case <-q.done:
			return nil, ErrQueueClosed
		default:
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case first = <-q.items:
		case <-timer.C:
			return []T{}, nil
		case <-q.done:
			return nil, ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	items := []T{first}
	for len(items) < maxItems {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items, nil
		}
	}
	return items, nil
}

// Length returns the current queue length
func (q *MemoryQueue[T]) Length(ctx context.Context) (int, error) {
	return len(q.items), nil
}

// Close stops accepting items. Queued items can still be dequeued.
func (q *MemoryQueue[T]) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

// MemoryDeadLetterQueue implements DeadLetterQueue in process memory
type MemoryDeadLetterQueue[T any] struct {
	mu     sync.Mutex
	items  map[string]DeadLetterItem[T]
	closed bool
}

// NewMemoryDeadLetterQueue creates an in-memory dead letter queue
func NewMemoryDeadLetterQueue[T any]() *MemoryDeadLetterQueue[T] {
	return &MemoryDeadLetterQueue[T]{items: make(map[string]DeadLetterItem[T])}
}

// Add parks a failed item
func (q *MemoryDeadLetterQueue[T]) Add(ctx context.Context, item T, cause error, retries int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	dl := newDeadLetterItem(item, cause, retries)
	q.items[dl.ID] = dl
	return nil
}

// List returns parked items, oldest first
func (q *MemoryDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	out := make([]DeadLetterItem[T], 0, len(q.items))
	for _, item := range q.items {
		out = append(out, item)
	}
	return oldestFirst(out, maxItems), nil
}

// Remove deletes a parked item
func (q *MemoryDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(q.items, id)
	return nil
}

// Close releases the parked items
func (q *MemoryDeadLetterQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	return nil
}

func newDeadLetterItem[T any](item T, cause error, retries int) DeadLetterItem[T] {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return DeadLetterItem[T]{
		ID:        uuid.NewString(),
		Item:      item,
		Error:     msg,
		Timestamp: time.Now().UTC(),
		Retries:   retries,
	}
}

func oldestFirst[T any](items []DeadLetterItem[T], maxItems int) []DeadLetterItem[T] {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}
