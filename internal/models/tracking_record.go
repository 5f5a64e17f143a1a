package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// RequestStatus is the lifecycle state of a tool request (stored as TEXT in Postgres).
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo allows pending→completed and pending→failed only.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// MeteredCall is one countable sub-operation performed while serving a tool call.
type MeteredCall struct {
	Kind       string    `json:"kind"`
	DurationMS int64     `json:"duration_ms"`
	Size       int64     `json:"size"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MeteredCalls is the append-only jsonb array stored on a tracking record.
type MeteredCalls []MeteredCall

func (m MeteredCalls) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]MeteredCall(m))
}

func (m *MeteredCalls) Scan(value any) error {
	b, err := jsonbBytes("MeteredCalls", value)
	if err != nil || b == nil {
		*m = nil
		return err
	}
	return json.Unmarshal(b, (*[]MeteredCall)(m))
}

// TotalSize sums the size/row count of every metered call.
func (m MeteredCalls) TotalSize() int64 {
	var total int64
	for _, c := range m {
		total += c.Size
	}
	return total
}

// Usage carries externally reported consumption for a single request.
type Usage struct {
	InferenceTokens  int64 `json:"inference_tokens"`
	ExternalAPICalls int64 `json:"external_api_calls"`
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InferenceTokens:  u.InferenceTokens + other.InferenceTokens,
		ExternalAPICalls: u.ExternalAPICalls + other.ExternalAPICalls,
	}
}

// TrackingRecord is the per-call lifecycle and cost-accounting row (tool_requests table).
type TrackingRecord struct {
	RequestID        string         `db:"request_id" json:"request_id"`
	ToolName         string         `db:"tool_name" json:"tool_name"`
	CallerKey        string         `db:"caller_key" json:"caller_key"`
	ReasoningTier    string         `db:"reasoning_tier" json:"reasoning_tier"`
	Status           RequestStatus  `db:"status" json:"status"`
	QueryParams      JSONB          `db:"query_params" json:"query_params"`
	ExecutionTimeMS  *int64         `db:"execution_time_ms" json:"execution_time_ms,omitempty"`
	ErrorMessage     *string        `db:"error_message" json:"error_message,omitempty"`
	MeteredCalls     MeteredCalls   `db:"metered_calls" json:"metered_calls"`
	InferenceTokens  int64          `db:"inference_tokens" json:"inference_tokens"`
	ExternalAPICalls int64          `db:"external_api_calls" json:"external_api_calls"`
	CostBreakdown    *CostBreakdown `db:"cost_breakdown" json:"cost_breakdown,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// Usage returns the externally reported usage stored on the record.
func (r *TrackingRecord) Usage() Usage {
	return Usage{InferenceTokens: r.InferenceTokens, ExternalAPICalls: r.ExternalAPICalls}
}

// Clone returns a deep copy safe to hand to callers outside the tracker's lock.
func (r *TrackingRecord) Clone() *TrackingRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.QueryParams != nil {
		out.QueryParams = make(JSONB, len(r.QueryParams))
		for k, v := range r.QueryParams {
			out.QueryParams[k] = v
		}
	}
	if r.MeteredCalls != nil {
		out.MeteredCalls = append(MeteredCalls(nil), r.MeteredCalls...)
	}
	if r.ExecutionTimeMS != nil {
		v := *r.ExecutionTimeMS
		out.ExecutionTimeMS = &v
	}
	if r.ErrorMessage != nil {
		v := *r.ErrorMessage
		out.ErrorMessage = &v
	}
	if r.CostBreakdown != nil {
		b := r.CostBreakdown.Clone()
		out.CostBreakdown = &b
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

// Finalization is the single terminal write applied to a pending record.
type Finalization struct {
	Status          RequestStatus
	ExecutionTimeMS int64
	ErrorMessage    string
	Usage           Usage
	CostBreakdown   CostBreakdown
	CompletedAt     time.Time
}
