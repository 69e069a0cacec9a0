// Package gateway validates and routes single tool-call requests, enforcing
// per-tool concurrency limits, timeouts and retry of transient failures.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chemgate/chemgate/adapter"
	"github.com/chemgate/chemgate/metrics"
	"github.com/chemgate/chemgate/registry"
	"github.com/chemgate/chemgate/types"
)

// Config holds dispatch policy. Zero values fall back to the defaults below.
type Config struct {
	DefaultTimeout    time.Duration
	DefaultMaxRetries int
	ToolConcurrency   int // concurrent calls allowed per tool name
	BackoffBase       time.Duration
	BackoffCap        time.Duration
}

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxRetries      = 2
	defaultToolConcurrency = 4
	defaultBackoffBase     = 50 * time.Millisecond
	defaultBackoffCap      = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.DefaultMaxRetries < 0 {
		c.DefaultMaxRetries = defaultMaxRetries
	}
	if c.ToolConcurrency <= 0 {
		c.ToolConcurrency = defaultToolConcurrency
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	return c
}

// Gateway dispatches tool requests against the registry.
type Gateway struct {
	registry  *registry.Registry
	collector *metrics.Collector
	logger    *slog.Logger
	cfg       Config

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// New creates a Gateway. collector and logger may be nil.
func New(reg *registry.Registry, collector *metrics.Collector, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{
		registry:  reg,
		collector: collector,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		slots:     make(map[string]chan struct{}),
	}
}

// DefaultTimeout returns the timeout applied when a caller passes zero.
func (g *Gateway) DefaultTimeout() time.Duration { return g.cfg.DefaultTimeout }

// DefaultMaxRetries returns the retry budget applied when a caller passes a
// negative value.
func (g *Gateway) DefaultMaxRetries() int { return g.cfg.DefaultMaxRetries }

// Invoke executes one tool request. timeout bounds each attempt (zero means
// the configured default); maxRetries is the number of retries after the
// first attempt (negative means the configured default). The returned
// ToolResult always carries the request ID; failures are embedded as a
// structured error, never returned as a Go error.
func (g *Gateway) Invoke(ctx context.Context, req types.ToolRequest, timeout time.Duration, maxRetries int) types.ToolResult {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if timeout <= 0 {
		timeout = g.cfg.DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = g.cfg.DefaultMaxRetries
	}

	start := time.Now()
	result := g.invoke(ctx, req, timeout, maxRetries)
	g.record(req.ToolName, time.Since(start), result)
	return result
}

func (g *Gateway) invoke(ctx context.Context, req types.ToolRequest, timeout time.Duration, maxRetries int) types.ToolResult {
	tool, err := g.registry.Resolve(req.ToolName)
	if err != nil {
		return errResult(req.RequestID, types.AsError(err))
	}

	schema, ok := tool.Schema(req.Operation)
	if !ok {
		return errResult(req.RequestID, types.NewError(types.CodePermanent,
			"tool %q has no operation %q", req.ToolName, req.Operation))
	}

	// Validation happens before any adapter invocation: no partial side
	// effects on bad input.
	if offending := schema.Validate(req.Arguments); len(offending) > 0 {
		e := types.NewError(types.CodeInvalidArgument,
			"invalid arguments for %s.%s", req.ToolName, req.Operation)
		return errResult(req.RequestID, e.WithDetails(map[string]interface{}{"keys": offending}))
	}

	// Backpressure: wait for a concurrency slot rather than reject.
	slot := g.slot(req.ToolName)
	select {
	case slot <- struct{}{}:
		defer func() { <-slot }()
	case <-ctx.Done():
		return errResult(req.RequestID, types.NewError(types.CodeTimeout,
			"timed out waiting for a %q concurrency slot", req.ToolName))
	}

	var lastErr *types.Error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, g.backoff(attempt)); err != nil {
				break
			}
		}

		payload, callErr := g.attempt(ctx, tool, req, timeout)
		if callErr == nil {
			return types.ToolResult{RequestID: req.RequestID, Status: types.ResultOK, Payload: payload}
		}

		lastErr = callErr
		if !callErr.Transient() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		g.logger.Debug("retrying tool call",
			"tool", req.ToolName, "operation", req.Operation,
			"attempt", attempt+1, "code", callErr.Code)
	}

	return errResult(req.RequestID, lastErr)
}

// attempt runs one time-bounded adapter call. The adapter receives a context
// that is cancelled at the deadline, so cancellation is observable to it
// rather than merely ignored client-side.
func (g *Gateway) attempt(ctx context.Context, tool adapter.Tool, req types.ToolRequest, timeout time.Duration) (map[string]interface{}, *types.Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		payload map[string]interface{}
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := tool.Call(attemptCtx, req.Operation, req.Arguments)
		done <- outcome{payload, err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.payload, nil
		}
		if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(out.err, context.Canceled) {
			return nil, timeoutError(req, timeout)
		}
		return nil, types.AsError(out.err)
	case <-attemptCtx.Done():
		return nil, timeoutError(req, timeout)
	}
}

func timeoutError(req types.ToolRequest, timeout time.Duration) *types.Error {
	return types.NewError(types.CodeTimeout,
		"%s.%s did not complete within %s", req.ToolName, req.Operation, timeout)
}

// backoff returns the delay before retry attempt n (1-based): base doubling
// each time, capped.
func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.cfg.BackoffBase << (attempt - 1)
	if d > g.cfg.BackoffCap || d <= 0 {
		d = g.cfg.BackoffCap
	}
	return d
}

func (g *Gateway) slot(toolName string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[toolName]
	if !ok {
		s = make(chan struct{}, g.cfg.ToolConcurrency)
		g.slots[toolName] = s
	}
	return s
}

func (g *Gateway) record(toolName string, elapsed time.Duration, result types.ToolResult) {
	code := ""
	if result.Error != nil {
		code = result.Error.Code
	}
	if g.collector != nil {
		g.collector.Record(toolName, elapsed, code)
	}
	if code != "" {
		g.logger.Info("tool call failed", "tool", toolName, "code", code, "elapsed", elapsed)
	} else {
		g.logger.Debug("tool call ok", "tool", toolName, "elapsed", elapsed)
	}
}

func errResult(requestID string, e *types.Error) types.ToolResult {
	return types.ToolResult{RequestID: requestID, Status: types.ResultError, Error: e}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
