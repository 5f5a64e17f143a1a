// Package logging archives one audit record per tool call. Records are
// buffered and written asynchronously; a full buffer drops records rather
// than slowing down the call path.
package logging

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrSinkFull is returned when a sink's buffer cannot take another record
	ErrSinkFull = errors.New("audit sink buffer full")

	// ErrSinkClosed is returned when enqueuing after Shutdown
	ErrSinkClosed = errors.New("audit sink closed")
)

// LogRecord is the audit entry written for every tool call.
type LogRecord struct {
	Timestamp        time.Time       `json:"timestamp"`
	RequestID        string          `json:"request_id"`
	CallerKey        string          `json:"caller_key,omitempty"`
	Tool             string          `json:"tool"`
	ReasoningTier    string          `json:"reasoning_tier,omitempty"`
	Status           string          `json:"status"`
	Streamed         bool            `json:"streamed"`
	ExecutionMS      int64           `json:"execution_ms"`
	MeteredCalls     int             `json:"metered_calls"`
	VolumeTier       string          `json:"volume_tier,omitempty"`
	EstimatedCostUSD decimal.Decimal `json:"estimated_cost_usd"`
	ActualCostUSD    decimal.Decimal `json:"actual_cost_usd"`
	Error            string          `json:"error,omitempty"`
}

// Sink receives audit records from the gateway.
type Sink interface {
	Enqueue(rec *LogRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *LogRecord) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}

// MultiSink fans records out to several sinks. Enqueue reports the first
// failure but still offers the record to every sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks, skipping nil entries
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Enqueue(rec *LogRecord) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Enqueue(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}
