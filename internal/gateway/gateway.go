// Package gateway composes the tool-call lifecycle: every call gets a request
// id, a pending tracking record and an up-front estimate, is dispatched to its
// tool, and always ends with exactly one terminal transition and a cost
// breakdown. Billing and audit writes after completion are best-effort.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tool_gateway/internal/billing"
	"tool_gateway/internal/logging"
	"tool_gateway/internal/models"
	"tool_gateway/internal/pricing"
	"tool_gateway/internal/stream"
	"tool_gateway/internal/tools"
	"tool_gateway/internal/tracking"
	"tool_gateway/internal/utils"
)

// Error types reported to callers
const (
	ErrorTypeUnknownTool = "unknown_tool"
	ErrorTypeToolError   = "tool_error"
	ErrorTypeInternal    = "internal_error"
)

// ErrInternal marks failures of the gateway itself
var ErrInternal = errors.New("internal error")

// InternalError is returned when handling a call panicked. The record has
// already been completed as failed.
type InternalError struct {
	RequestID string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (request %s)", e.RequestID)
}

func (e *InternalError) Unwrap() error {
	return ErrInternal
}

// Dispatcher runs a named tool
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) (tools.Result, error)
}

// UsageEnqueuer accepts billing usage events
type UsageEnqueuer interface {
	Enqueue(ctx context.Context, event billing.UsageEvent) error
}

// Call is one tool invocation
type Call struct {
	ToolName      string
	Arguments     map[string]any
	ReasoningTier string
	CallerKey     string
}

// Response is the outcome of a synchronous call
type Response struct {
	RequestID    string
	Tool         string
	Result       tools.Result
	CostTracking models.CostTracking
}

// Config holds gateway tuning
type Config struct {
	VolumeLookupTimeout time.Duration
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() Config {
	return Config{VolumeLookupTimeout: 250 * time.Millisecond}
}

// Dependencies are the gateway's collaborators. Volume, Billing and Audit are optional.
type Dependencies struct {
	Tracker *tracking.Tracker
	Router  Dispatcher
	Pricing *pricing.Model
	Volume  billing.VolumeService
	Billing UsageEnqueuer
	Audit   logging.Sink
}

// Option customizes a Gateway
type Option func(*Gateway)

// WithTracer overrides the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = tracer }
}

// WithLogger overrides the logger
func WithLogger(logger *utils.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithIDGenerator overrides request id generation
func WithIDGenerator(newID func() string) Option {
	return func(g *Gateway) { g.newID = newID }
}

// Gateway runs tool calls end to end
type Gateway struct {
	tracker *tracking.Tracker
	router  Dispatcher
	pricing *pricing.Model
	volume  billing.VolumeService
	billing UsageEnqueuer
	audit   logging.Sink
	cfg     Config

	tracer trace.Tracer
	logger *utils.Logger
	newID  func() string
	now    func() time.Time
}

// New creates a gateway
func New(deps Dependencies, cfg Config, opts ...Option) (*Gateway, error) {
	if deps.Tracker == nil || deps.Router == nil || deps.Pricing == nil {
		return nil, errors.New("gateway requires a tracker, a router and a pricing model")
	}
	if cfg.VolumeLookupTimeout <= 0 {
		cfg.VolumeLookupTimeout = DefaultConfig().VolumeLookupTimeout
	}
	g := &Gateway{
		tracker: deps.Tracker,
		router:  deps.Router,
		pricing: deps.Pricing,
		volume:  deps.Volume,
		billing: deps.Billing,
		audit:   deps.Audit,
		cfg:     cfg,
		tracer:  otel.Tracer("tool_gateway/internal/gateway"),
		logger:  utils.NewLogger("gateway"),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	if g.volume == nil {
		g.volume = billing.NewNoopVolumeService()
	}
	if g.audit == nil {
		g.audit = logging.NewNoopSink()
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Tools lists the tool names the gateway serves
func (g *Gateway) Tools() []tools.ToolID {
	return append([]tools.ToolID(nil), tools.All...)
}

// Pending returns the number of calls still in flight
func (g *Gateway) Pending() int {
	return g.tracker.Pending()
}

// Record returns the tracking record of a request
func (g *Gateway) Record(ctx context.Context, requestID string) (*models.TrackingRecord, error) {
	return g.tracker.Get(ctx, requestID)
}

// execution is the per-call state shared by Handle and Stream
type execution struct {
	requestID string
	call      Call
	tier      pricing.ReasoningTier
	start     time.Time
	ctx       context.Context
	estimate  models.CostEstimate
	streamed  bool
	rejected  bool
	finished  bool
	breakdown models.CostBreakdown
}

func (e *execution) costTracking() models.CostTracking {
	ct := models.CostTracking{RequestID: e.requestID, EstimateBefore: e.estimate}
	if e.finished {
		bd := e.breakdown.Clone()
		ct.ActualCost = &bd
	}
	return ct
}

// newExecution assigns the request id. It does no I/O.
func (g *Gateway) newExecution(ctx context.Context, call Call, streamed bool) *execution {
	tier := pricing.TierStandard
	if raw := strings.ToLower(strings.TrimSpace(call.ReasoningTier)); raw != "" {
		tier = pricing.ReasoningTier(raw)
	}
	return &execution{
		requestID: g.newID(),
		call:      call,
		tier:      tier,
		start:     g.now(),
		streamed:  streamed,
		ctx:       ctx,
	}
}

// register records the pending call and attaches the request's meter
func (g *Gateway) register(ctx context.Context, exec *execution) {
	recordTier := exec.tier
	if !recordTier.Valid() {
		recordTier = pricing.TierStandard
	}
	g.tracker.Create(ctx, exec.requestID, exec.call.ToolName, exec.call.CallerKey, exec.call.Arguments,
		tracking.WithReasoningTier(string(recordTier)))
	exec.ctx = tracking.WithMeter(ctx, g.tracker.NewMeter(exec.requestID))
}

// estimate prices the call against a fresh monthly volume. It never fails.
func (g *Gateway) estimate(ctx context.Context, exec *execution) {
	volume, volErr := g.monthlyVolume(ctx, exec.call.CallerKey)
	est := g.pricing.Estimate(exec.call.ToolName, tools.QueryLength(exec.call.Arguments), exec.tier, volume)
	if volErr != nil {
		est.EstimationNotes = append(est.EstimationNotes, "monthly volume unavailable, priced at 0 monthly calls")
	}
	exec.estimate = est
}

func (g *Gateway) monthlyVolume(ctx context.Context, callerKey string) (int64, error) {
	if callerKey == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.VolumeLookupTimeout)
	defer cancel()

	volume, err := g.volume.MonthlyCalls(ctx, callerKey)
	if err != nil {
		g.logger.Warn("monthly volume lookup failed", "caller", callerKey, "error", err)
		return 0, err
	}
	return volume, nil
}

// finish completes the record once and hands the outcome to billing and audit.
// Calls rejected before dispatch are audited but never billed.
func (g *Gateway) finish(ctx context.Context, exec *execution, status models.RequestStatus, errMsg string) models.CostBreakdown {
	if exec.finished {
		return exec.breakdown.Clone()
	}

	exec.breakdown = g.tracker.Complete(ctx, exec.requestID, tracking.Completion{
		ExecutionTime:       g.now().Sub(exec.start),
		Status:              status,
		ErrorMessage:        errMsg,
		ExternalUnitCostUSD: exec.estimate.UnitCostUSD,
	})
	exec.finished = true

	if !exec.rejected {
		g.enqueueUsage(ctx, exec)
	}
	g.enqueueAudit(ctx, exec, status, errMsg)
	return exec.breakdown.Clone()
}

func (g *Gateway) enqueueUsage(ctx context.Context, exec *execution) {
	if g.billing == nil || exec.call.CallerKey == "" {
		return
	}
	event := billing.UsageEvent{
		RequestID: exec.requestID,
		CallerKey: exec.call.CallerKey,
		ToolName:  exec.call.ToolName,
		Calls:     1,
		CostUSD:   exec.breakdown.TotalUSD,
		Timestamp: g.now().UTC(),
	}
	if err := g.billing.Enqueue(context.WithoutCancel(ctx), event); err != nil {
		g.logger.Warn("failed to enqueue usage event", "request_id", exec.requestID, "error", err)
	}
}

func (g *Gateway) enqueueAudit(ctx context.Context, exec *execution, status models.RequestStatus, errMsg string) {
	rec := &logging.LogRecord{
		Timestamp:        g.now().UTC(),
		RequestID:        exec.requestID,
		CallerKey:        exec.call.CallerKey,
		Tool:             exec.call.ToolName,
		ReasoningTier:    string(exec.tier),
		Status:           string(status),
		Streamed:         exec.streamed,
		VolumeTier:       exec.estimate.VolumeTier,
		EstimatedCostUSD: exec.estimate.EstimatedCostUSD,
		ActualCostUSD:    exec.breakdown.TotalUSD,
		Error:            errMsg,
	}
	if stored, err := g.tracker.Get(ctx, exec.requestID); err == nil {
		rec.MeteredCalls = len(stored.MeteredCalls)
		if stored.ExecutionTimeMS != nil {
			rec.ExecutionMS = *stored.ExecutionTimeMS
		}
		rec.Status = string(stored.Status)
	}
	if err := g.audit.Enqueue(rec); err != nil {
		g.logger.Warn("failed to enqueue audit record", "request_id", exec.requestID, "error", err)
	}
}

// recoverInternal completes a panicking call as failed
func (g *Gateway) recoverInternal(ctx context.Context, exec *execution, p any, span trace.Span) *InternalError {
	g.logger.Error("panic while handling tool call", "request_id", exec.requestID, "tool", exec.call.ToolName, "panic", p)
	span.SetStatus(codes.Error, "panic")
	span.RecordError(fmt.Errorf("panic: %v", p))
	g.finish(ctx, exec, models.StatusFailed, "internal error")
	return &InternalError{RequestID: exec.requestID}
}

func (g *Gateway) startSpan(ctx context.Context, call Call, streamed bool) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "gateway.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("tools.name", call.ToolName),
			attribute.String("tools.reasoning_tier", call.ReasoningTier),
			attribute.Bool("gateway.streamed", streamed),
		),
	)
}

func isUnknownTool(err error) bool {
	var unknown *tools.UnknownToolError
	return errors.As(err, &unknown)
}

func finalStatus(result tools.Result) (models.RequestStatus, string) {
	if result.IsError {
		return models.StatusFailed, result.Text()
	}
	return models.StatusCompleted, ""
}

// Handle runs a call synchronously. An unknown tool returns a
// *tools.UnknownToolError alongside a Response carrying the request id and
// cost tracking; a tool-level failure is a Response whose Result.IsError is set.
func (g *Gateway) Handle(ctx context.Context, call Call) (resp Response, err error) {
	ctx, span := g.startSpan(ctx, call, false)
	defer span.End()

	exec := g.newExecution(ctx, call, false)
	span.SetAttributes(attribute.String("gateway.request_id", exec.requestID))
	resp = Response{RequestID: exec.requestID, Tool: call.ToolName}

	defer func() {
		if p := recover(); p != nil {
			err = g.recoverInternal(ctx, exec, p, span)
			resp.Result = tools.Result{}
			resp.CostTracking = exec.costTracking()
		}
	}()

	g.register(ctx, exec)
	g.estimate(ctx, exec)

	result, dispatchErr := g.router.Dispatch(exec.ctx, call.ToolName, call.Arguments)
	if dispatchErr != nil {
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, "dispatch rejected")
		exec.rejected = isUnknownTool(dispatchErr)
		g.finish(ctx, exec, models.StatusFailed, dispatchErr.Error())
		resp.CostTracking = exec.costTracking()
		return resp, dispatchErr
	}

	status, errMsg := finalStatus(result)
	if result.IsError {
		span.SetStatus(codes.Error, "tool error")
	}
	g.finish(ctx, exec, status, errMsg)

	resp.Result = result
	resp.CostTracking = exec.costTracking()
	span.SetAttributes(attribute.String("gateway.actual_cost_usd", exec.breakdown.TotalUSD.String()))
	return resp, nil
}

// Stream runs a call while reporting progress to emitter. The stream always
// ends with an end event. The returned error is a *tools.UnknownToolError or
// *InternalError when the call could not run; tool failures are reported on
// the stream only.
func (g *Gateway) Stream(ctx context.Context, call Call, emitter stream.Emitter) (requestID string, err error) {
	ctx, span := g.startSpan(ctx, call, true)
	defer span.End()

	exec := g.newExecution(ctx, call, true)
	requestID = exec.requestID
	span.SetAttributes(attribute.String("gateway.request_id", exec.requestID))

	responder := stream.NewResponder(emitter, exec.requestID)
	defer responder.Close()
	responder.Connected(call.ToolName, stream.ConnectedData{Timestamp: g.now().UTC()})

	defer func() {
		if p := recover(); p != nil {
			ierr := g.recoverInternal(ctx, exec, p, span)
			ct := exec.costTracking()
			responder.Fail(stream.ErrorData{Type: ErrorTypeInternal, Message: ierr.Error(), CostTracking: &ct})
			err = ierr
		}
	}()

	g.register(ctx, exec)
	g.estimate(ctx, exec)
	estimate := exec.estimate
	responder.ProgressWith(stream.ProgressData{Message: "processing", Progress: stream.MilestoneProcessing, Estimate: &estimate})

	result, dispatchErr := g.router.Dispatch(exec.ctx, call.ToolName, call.Arguments)
	if dispatchErr != nil {
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, "dispatch rejected")
		exec.rejected = isUnknownTool(dispatchErr)
		g.finish(ctx, exec, models.StatusFailed, dispatchErr.Error())
		ct := exec.costTracking()
		errType := ErrorTypeInternal
		if exec.rejected {
			errType = ErrorTypeUnknownTool
		}
		responder.Fail(stream.ErrorData{Type: errType, Message: dispatchErr.Error(), CostTracking: &ct})
		return exec.requestID, dispatchErr
	}

	responder.Progress("finalizing", stream.MilestoneFinalizing)

	status, errMsg := finalStatus(result)
	g.finish(ctx, exec, status, errMsg)
	ct := exec.costTracking()

	if result.IsError {
		span.SetStatus(codes.Error, "tool error")
		responder.Fail(stream.ErrorData{Type: ErrorTypeToolError, Message: errMsg, Result: &result, CostTracking: &ct})
	} else {
		responder.Complete(stream.CompleteData{Tool: call.ToolName, Result: result, CostTracking: ct})
	}

	if werr := responder.WriteErr(); werr != nil {
		g.logger.Info("client disconnected before stream end", "request_id", exec.requestID, "error", werr)
	}
	return exec.requestID, nil
}
