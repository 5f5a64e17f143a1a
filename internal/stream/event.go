// Package stream implements the per-call progress event protocol:
//
//	connected, progress*, (complete | error), end
//
// Events carry strictly increasing ids starting at 1. There is no resumption; a
// dropped stream is retried as a new call.
package stream

import (
	"errors"
	"fmt"
	"time"

	"tool_gateway/internal/models"
	"tool_gateway/internal/tools"
)

// EventType is the closed set of stream events.
type EventType int

const (
	EventConnected EventType = iota + 1
	EventProgress
	EventComplete
	EventError
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is one framed message on the stream.
type Event struct {
	ID   int64
	Type EventType
	Data any
}

// ConnectedData is sent as soon as a streaming call is accepted.
type ConnectedData struct {
	RequestID string               `json:"request_id"`
	Tool      string               `json:"tool"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressData reports a coarse milestone. The processing milestone carries
// the cost estimate.
type ProgressData struct {
	Message  string               `json:"message"`
	Progress float64              `json:"progress"`
	Estimate *models.CostEstimate `json:"estimate,omitempty"`
}

// CompleteData carries the successful result.
type CompleteData struct {
	RequestID    string              `json:"request_id"`
	Tool         string              `json:"tool"`
	Result       tools.Result        `json:"result"`
	CostTracking models.CostTracking `json:"cost_tracking"`
}

// ErrorData carries a failure. Result is set when the tool itself reported an error.
type ErrorData struct {
	RequestID    string               `json:"request_id"`
	Type         string               `json:"type"`
	Message      string               `json:"message"`
	Result       *tools.Result        `json:"result,omitempty"`
	CostTracking *models.CostTracking `json:"cost_tracking,omitempty"`
}

// EndData closes the stream.
type EndData struct {
	RequestID string `json:"request_id"`
}

// Milestones emitted around dispatch.
const (
	MilestoneProcessing = 0.3
	MilestoneFinalizing = 0.9
)

var (
	ErrInvalidTransition = errors.New("stream: invalid event transition")
	ErrNonIncreasingID   = errors.New("stream: event id not strictly increasing")
	ErrInvalidProgress   = errors.New("stream: progress must be within [0,1] and non-decreasing")
	ErrStreamClosed      = errors.New("stream: end already sent")
)
