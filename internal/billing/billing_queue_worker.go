package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tool_gateway/internal/queue"
)

// UsageEvent is one completed tool call to be counted against its caller.
type UsageEvent struct {
	RequestID string          `json:"request_id"`
	CallerKey string          `json:"caller_key"`
	ToolName  string          `json:"tool_name"`
	Calls     int64           `json:"calls"`
	CostUSD   decimal.Decimal `json:"cost_usd"`
	Timestamp time.Time       `json:"timestamp"`
}

// BillingQueueWorker applies usage events to a VolumeService asynchronously
type BillingQueueWorker struct {
	*queue.Worker[UsageEvent]
	service VolumeService
}

// NewBillingQueueWorker creates a new billing queue worker
func NewBillingQueueWorker(q queue.Queue[UsageEvent], dlq queue.DeadLetterQueue[UsageEvent], service VolumeService, config queue.Config) *BillingQueueWorker {
	w := &BillingQueueWorker{service: service}
	w.Worker = queue.NewWorker[UsageEvent]("billing", q, dlq, w.apply, config)
	return w
}

func (w *BillingQueueWorker) apply(ctx context.Context, event UsageEvent) error {
	if event.CallerKey == "" {
		return nil
	}
	calls := event.Calls
	if calls <= 0 {
		calls = 1
	}
	return w.service.AddUsage(ctx, event.CallerKey, calls, event.CostUSD)
}
