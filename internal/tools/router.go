package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tool_gateway/internal/utils"
)

// Executor runs one tool. The returned payload is JSON-encoded into the result.
type Executor func(ctx context.Context, args map[string]any) (any, error)

// Executors holds one executor per tool. Every field is required.
type Executors struct {
	SearchEntities      Executor
	GetEntity           Executor
	GetEntityDetails    Executor
	ListRelatedEntities Executor
}

// ErrMissingExecutor is returned by NewRouter when a tool has no executor.
var ErrMissingExecutor = errors.New("missing executor")

// ErrExecutionTimeout is the message surfaced when an executor overruns.
var ErrExecutionTimeout = errors.New("tool execution timed out")

// Config bounds executor run time. Zero disables the bound.
type Config struct {
	ExecutionTimeout time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = tracer
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *utils.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// Router dispatches tool calls by name.
type Router struct {
	executors map[ToolID]Executor
	timeout   time.Duration
	tracer    trace.Tracer
	logger    *utils.Logger
}

// NewRouter builds a router, rejecting any tool left without an executor.
func NewRouter(execs Executors, cfg Config, opts ...Option) (*Router, error) {
	byID := map[ToolID]Executor{
		SearchEntities:      execs.SearchEntities,
		GetEntity:           execs.GetEntity,
		GetEntityDetails:    execs.GetEntityDetails,
		ListRelatedEntities: execs.ListRelatedEntities,
	}
	for _, id := range All {
		if byID[id] == nil {
			return nil, fmt.Errorf("%w for tool %s", ErrMissingExecutor, id)
		}
	}

	r := &Router{
		executors: byID,
		timeout:   cfg.ExecutionTimeout,
		tracer:    otel.Tracer("tool_gateway/internal/tools"),
		logger:    utils.NewLogger("tools"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type outcome struct {
	payload any
	err     error
}

// Dispatch runs the named tool. An unknown name returns *UnknownToolError before
// any executor runs; every other failure becomes an error Result with a nil error.
//
// The executor runs on a context detached from ctx's cancellation, so a caller
// that goes away does not stop it. If it overruns the execution timeout, Dispatch
// returns a timeout result and the executor is left to finish on its own.
func (r *Router) Dispatch(ctx context.Context, name string, args map[string]any) (Result, error) {
	id, err := ParseToolID(name)
	if err != nil {
		return Result{}, err
	}

	ctx, span := r.tracer.Start(
		ctx,
		"tools.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tools.name", id.String()),
			attribute.Int("tools.arg_count", len(args)),
		),
	)
	defer span.End()

	execCtx := context.WithoutCancel(ctx)
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		payload, err := r.executors[id](execCtx, args)
		done <- outcome{payload: payload, err: err}
	}()

	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var out outcome
	select {
	case out = <-done:
	case <-timeout:
		r.logger.Warn("tool execution timed out", "tool", id.String(), "timeout", r.timeout)
		span.RecordError(ErrExecutionTimeout)
		span.SetStatus(codes.Error, "tool execution timed out")
		return ErrorResult(ErrExecutionTimeout.Error()), nil
	}

	span.SetAttributes(attribute.Int64("tools.duration_ms", time.Since(start).Milliseconds()))

	if out.err != nil {
		r.logger.Info("tool execution failed", "tool", id.String(), "error", out.err)
		span.RecordError(out.err)
		span.SetStatus(codes.Error, "tool execution failed")
		return ErrorResult(out.err.Error()), nil
	}

	result, err := JSONResult(out.payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode tool result failed")
		return ErrorResult(fmt.Sprintf("failed to encode tool result: %v", err)), nil
	}
	return result, nil
}

// Tools lists the tools this router serves.
func (r *Router) Tools() []ToolID {
	return append([]ToolID(nil), All...)
}
