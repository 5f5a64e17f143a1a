// Package tracking owns the lifecycle record of every tool request, from the
// pending insert at call start to the single terminal write at call end.
//
// All persistence is best-effort: store calls run on a detached, timeout-bounded
// context and failures are logged, never returned. The in-memory record is the
// source of truth for the cost breakdown.
package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tool_gateway/internal/models"
	"tool_gateway/internal/storage"
	"tool_gateway/internal/utils"
)

// Store persists tracking records.
type Store interface {
	Insert(ctx context.Context, record *models.TrackingRecord) error
	AppendMeteredCall(ctx context.Context, requestID string, call models.MeteredCall) error
	Finalize(ctx context.Context, requestID string, fin models.Finalization) error
	Get(ctx context.Context, requestID string) (*models.TrackingRecord, error)
}

// Pricer turns consumption into a cost breakdown.
type Pricer interface {
	Breakdown(usage models.Usage, calls models.MeteredCalls, externalUnitCost decimal.Decimal) models.CostBreakdown
}

// Config controls store timeouts and the completed-record cache.
type Config struct {
	StoreTimeout       time.Duration
	CompletedCacheSize int
	CompletedCacheTTL  time.Duration
}

// DefaultConfig returns sensible tracker defaults.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:       2 * time.Second,
		CompletedCacheSize: 10_000,
		CompletedCacheTTL:  15 * time.Minute,
	}
}

// Completion carries the terminal outcome of a request.
type Completion struct {
	ExecutionTime time.Duration
	Status        models.RequestStatus
	ErrorMessage  string
	// Usage is added to whatever was reported during execution.
	Usage models.Usage
	// ExternalUnitCostUSD prices external API calls; it is the volume-tier unit cost
	// fixed when the request was estimated.
	ExternalUnitCostUSD decimal.Decimal
}

type liveRecord struct {
	mu     sync.Mutex
	record *models.TrackingRecord
}

// Tracker records request lifecycles. Pending records are locked individually;
// there is no lock shared across requests.
type Tracker struct {
	store     Store
	pricer    Pricer
	cfg       Config
	logger    *utils.Logger
	live      sync.Map // request id -> *liveRecord
	completed *storage.LRUCache[*models.TrackingRecord]
	now       func() time.Time
}

// NewTracker creates a tracker. store may be nil, in which case nothing is persisted.
func NewTracker(store Store, pricer Pricer, cfg Config) *Tracker {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultConfig().StoreTimeout
	}
	if cfg.CompletedCacheTTL <= 0 {
		cfg.CompletedCacheTTL = DefaultConfig().CompletedCacheTTL
	}
	return &Tracker{
		store:     store,
		pricer:    pricer,
		cfg:       cfg,
		logger:    utils.NewLogger("tracker"),
		completed: storage.NewLRUCache[*models.TrackingRecord](cfg.CompletedCacheSize, cfg.CompletedCacheTTL),
		now:       time.Now,
	}
}

// SetLogger replaces the tracker's logger.
func (t *Tracker) SetLogger(logger *utils.Logger) {
	t.logger = logger
}

// CreateOption customizes a new record.
type CreateOption func(*models.TrackingRecord)

// WithReasoningTier stores the requested reasoning tier on the record.
func WithReasoningTier(tier string) CreateOption {
	return func(r *models.TrackingRecord) {
		r.ReasoningTier = tier
	}
}

// Create registers a pending record. It never fails; persistence errors are logged.
func (t *Tracker) Create(ctx context.Context, requestID, toolName, callerKey string, queryParams map[string]any, opts ...CreateOption) {
	record := &models.TrackingRecord{
		RequestID:    requestID,
		ToolName:     toolName,
		CallerKey:    callerKey,
		Status:       models.StatusPending,
		QueryParams:  models.JSONB(queryParams),
		MeteredCalls: models.MeteredCalls{},
		CreatedAt:    t.now().UTC(),
	}
	for _, opt := range opts {
		opt(record)
	}

	lr := &liveRecord{record: record}
	if _, loaded := t.live.LoadOrStore(requestID, lr); loaded {
		t.logger.Error("request id reused, keeping original record", "request_id", requestID)
		return
	}

	snapshot := record.Clone()
	t.persist(ctx, "insert", requestID, func(ctx context.Context) error {
		return t.store.Insert(ctx, snapshot)
	})
}

// RecordSubOperation appends a metered call. Calls for unknown or already
// completed requests are ignored.
func (t *Tracker) RecordSubOperation(ctx context.Context, requestID, kind string, duration time.Duration, size int64) {
	lr, ok := t.loadLive(requestID)
	if !ok {
		t.logger.Warn("sub-operation for unknown or completed request ignored", "request_id", requestID, "kind", kind)
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.record.Status.IsTerminal() {
		t.logger.Warn("sub-operation after completion ignored", "request_id", requestID, "kind", kind)
		return
	}

	call := models.MeteredCall{
		Kind:       kind,
		DurationMS: duration.Milliseconds(),
		Size:       size,
		RecordedAt: t.now().UTC(),
	}
	lr.record.MeteredCalls = append(lr.record.MeteredCalls, call)

	t.persist(ctx, "append_metered_call", requestID, func(ctx context.Context) error {
		return t.store.AppendMeteredCall(ctx, requestID, call)
	})
}

// ReportUsage accumulates externally reported consumption on a pending request.
func (t *Tracker) ReportUsage(ctx context.Context, requestID string, usage models.Usage) {
	lr, ok := t.loadLive(requestID)
	if !ok {
		t.logger.Warn("usage for unknown or completed request ignored", "request_id", requestID)
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.record.Status.IsTerminal() {
		t.logger.Warn("usage after completion ignored", "request_id", requestID)
		return
	}
	lr.record.InferenceTokens += usage.InferenceTokens
	lr.record.ExternalAPICalls += usage.ExternalAPICalls
}

// Complete performs the terminal transition exactly once and returns the cost
// breakdown. Later calls for the same request return the stored breakdown
// unchanged. A non-terminal status is coerced to failed.
func (t *Tracker) Complete(ctx context.Context, requestID string, c Completion) models.CostBreakdown {
	if !c.Status.IsTerminal() {
		t.logger.Warn("non-terminal completion status coerced to failed", "request_id", requestID, "status", c.Status)
		if c.ErrorMessage == "" {
			c.ErrorMessage = "completed with non-terminal status " + string(c.Status)
		}
		c.Status = models.StatusFailed
	}

	lr, ok := t.loadLive(requestID)
	if !ok {
		return t.completeDetached(ctx, requestID, c)
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	record := lr.record
	if record.Status.IsTerminal() {
		return storedBreakdown(record)
	}

	usage := record.Usage().Add(c.Usage)
	breakdown := t.pricer.Breakdown(usage, record.MeteredCalls, c.ExternalUnitCostUSD)
	completedAt := t.now().UTC()
	execMS := c.ExecutionTime.Milliseconds()

	record.Status = c.Status
	record.ExecutionTimeMS = &execMS
	record.InferenceTokens = usage.InferenceTokens
	record.ExternalAPICalls = usage.ExternalAPICalls
	record.CostBreakdown = &breakdown
	record.CompletedAt = &completedAt
	if c.Status == models.StatusFailed && c.ErrorMessage != "" {
		msg := c.ErrorMessage
		record.ErrorMessage = &msg
	}

	t.completed.Set(requestID, record.Clone())
	t.live.Delete(requestID)

	fin := models.Finalization{
		Status:          record.Status,
		ExecutionTimeMS: execMS,
		Usage:           usage,
		CostBreakdown:   breakdown.Clone(),
		CompletedAt:     completedAt,
	}
	if record.ErrorMessage != nil {
		fin.ErrorMessage = *record.ErrorMessage
	}
	t.persist(ctx, "finalize", requestID, func(ctx context.Context) error {
		return t.store.Finalize(ctx, requestID, fin)
	})

	return breakdown.Clone()
}

// completeDetached handles a completion for a request that is no longer live:
// a repeat completion after eviction, or an id the tracker never saw.
func (t *Tracker) completeDetached(ctx context.Context, requestID string, c Completion) models.CostBreakdown {
	if record, ok := t.completed.Get(requestID); ok {
		return storedBreakdown(record)
	}

	if t.store != nil {
		record, err := t.lookupStore(ctx, requestID)
		if err == nil && record.Status.IsTerminal() && record.CostBreakdown != nil {
			return storedBreakdown(record)
		}
	}

	t.logger.Error("completion for unknown request, not persisted", "request_id", requestID, "status", c.Status)
	return t.pricer.Breakdown(c.Usage, nil, c.ExternalUnitCostUSD)
}

// Get returns a copy of the record, looking in memory first and then in the store.
func (t *Tracker) Get(ctx context.Context, requestID string) (*models.TrackingRecord, error) {
	if lr, ok := t.loadLive(requestID); ok {
		lr.mu.Lock()
		defer lr.mu.Unlock()
		return lr.record.Clone(), nil
	}
	if record, ok := t.completed.Get(requestID); ok {
		return record.Clone(), nil
	}
	if t.store == nil {
		return nil, storage.ErrTrackingRecordNotFound
	}
	return t.lookupStore(ctx, requestID)
}

// Pending returns the number of requests awaiting completion.
func (t *Tracker) Pending() int {
	n := 0
	t.live.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (t *Tracker) loadLive(requestID string) (*liveRecord, bool) {
	v, ok := t.live.Load(requestID)
	if !ok {
		return nil, false
	}
	return v.(*liveRecord), true
}

func (t *Tracker) lookupStore(ctx context.Context, requestID string) (record *models.TrackingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tracking store panicked", "op", "get", "request_id", requestID, "panic", r)
			record, err = nil, storage.ErrTrackingRecordNotFound
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.StoreTimeout)
	defer cancel()
	return t.store.Get(ctx, requestID)
}

// persist runs a store write on a context detached from the caller and bounded by
// StoreTimeout. Errors and panics are logged and swallowed.
func (t *Tracker) persist(ctx context.Context, op, requestID string, write func(ctx context.Context) error) {
	if t.store == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tracking store panicked", "op", op, "request_id", requestID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.StoreTimeout)
	defer cancel()

	if err := write(ctx); err != nil {
		t.logger.Warn("tracking store write failed", "op", op, "request_id", requestID, "error", err)
	}
}

func storedBreakdown(record *models.TrackingRecord) models.CostBreakdown {
	if record.CostBreakdown == nil {
		return models.NewCostBreakdown()
	}
	return record.CostBreakdown.Clone()
}
