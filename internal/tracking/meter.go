package tracking

import (
	"context"
	"time"

	"tool_gateway/internal/models"
)

type meterKey struct{}

// Meter lets code running on behalf of a request record sub-operations and usage
// without knowing the request id. A nil Meter discards everything.
type Meter struct {
	tracker   *Tracker
	requestID string
}

// NewMeter binds a meter to one request.
func (t *Tracker) NewMeter(requestID string) *Meter {
	return &Meter{tracker: t, requestID: requestID}
}

// WithMeter attaches m to ctx.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFromContext returns the request's meter, or nil when none is attached.
func MeterFromContext(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}

// RequestID returns the bound request id.
func (m *Meter) RequestID() string {
	if m == nil {
		return ""
	}
	return m.requestID
}

// Record appends one metered sub-operation.
func (m *Meter) Record(ctx context.Context, kind string, duration time.Duration, size int64) {
	if m == nil {
		return
	}
	m.tracker.RecordSubOperation(ctx, m.requestID, kind, duration, size)
}

// Observe records a sub-operation that started at start and ends now.
func (m *Meter) Observe(ctx context.Context, kind string, start time.Time, size int64) {
	m.Record(ctx, kind, time.Since(start), size)
}

// ReportUsage adds externally reported usage.
func (m *Meter) ReportUsage(ctx context.Context, usage models.Usage) {
	if m == nil {
		return
	}
	m.tracker.ReportUsage(ctx, m.requestID, usage)
}
