package logging

import (
	"context"
	"errors"
	"sync"
	"time"

	"tool_gateway/internal/queue"
	"tool_gateway/internal/utils"
)

// S3SinkConfig configures batching for the S3 sink
type S3SinkConfig struct {
	BufferSize    int           // records held in memory
	FlushSize     int           // records per object
	FlushInterval time.Duration // max wait before a partial batch is written
}

// DefaultS3SinkConfig returns the default batching parameters
func DefaultS3SinkConfig() S3SinkConfig {
	return S3SinkConfig{
		BufferSize:    10000,
		FlushSize:     500,
		FlushInterval: time.Minute,
	}
}

// S3Sink buffers audit records in a queue and writes them to S3 in batches
type S3Sink struct {
	queue         queue.Queue[*LogRecord]
	writer        *S3Writer
	flushSize     int
	flushInterval time.Duration
	logger        *utils.Logger

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewS3Sink creates the sink over an in-memory queue and starts the flush loop
func NewS3Sink(writer *S3Writer, cfg S3SinkConfig) *S3Sink {
	qcfg := queue.DefaultConfig("audit")
	if cfg.BufferSize > 0 {
		qcfg.Capacity = cfg.BufferSize
	}
	return NewS3SinkWithQueue(writer, queue.NewMemoryQueue[*LogRecord](qcfg), cfg)
}

// NewS3SinkWithQueue creates the sink over a caller-supplied queue
func NewS3SinkWithQueue(writer *S3Writer, q queue.Queue[*LogRecord], cfg S3SinkConfig) *S3Sink {
	defaults := DefaultS3SinkConfig()
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = defaults.FlushSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	s := &S3Sink{
		queue:         q,
		writer:        writer,
		flushSize:     cfg.FlushSize,
		flushInterval: cfg.FlushInterval,
		logger:        utils.NewLogger("audit-s3"),
	}
	s.wg.Add(1)
	go s.run(context.Background())
	return s
}

// Enqueue queues a record for the next batch
func (s *S3Sink) Enqueue(rec *LogRecord) error {
	if rec == nil {
		return nil
	}
	err := s.queue.Enqueue(context.Background(), rec)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return ErrSinkFull
	case errors.Is(err, queue.ErrQueueClosed):
		return ErrSinkClosed
	}
	return err
}

func (s *S3Sink) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		batch, err := s.queue.Dequeue(ctx, s.flushSize, s.flushInterval)
		if errors.Is(err, queue.ErrQueueClosed) {
			return
		}
		if err != nil {
			s.logger.Error("Failed to dequeue audit records", "error", err)
			time.Sleep(time.Second)
			continue
		}
		s.flush(ctx, batch)
	}
}

func (s *S3Sink) flush(ctx context.Context, batch []*LogRecord) {
	if len(batch) == 0 {
		return
	}
	if _, err := s.writer.WriteBatch(ctx, batch); err != nil {
		// Best-effort archive: the batch is dropped after logging.
		s.logger.Error("Failed to write audit batch", "count", len(batch), "error", err)
	}
}

// Shutdown stops intake, writes whatever is still queued, and waits for the
// flush loop or ctx, whichever comes first
func (s *S3Sink) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		_ = s.queue.Close()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
