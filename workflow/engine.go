// Package workflow executes ordered, conditional sequences of tool calls as
// single logical runs, binding each step's output into later steps' input.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/songzhibin97/gkit/generator"

	"github.com/chemgate/chemgate/events"
	"github.com/chemgate/chemgate/rules"
	"github.com/chemgate/chemgate/storage"
	"github.com/chemgate/chemgate/types"
)

// Standard error definitions
var (
	ErrRunNotFound     = errors.New("workflow run not found")
	ErrEmptyDefinition = errors.New("workflow definition has no steps")
)

// Invoker dispatches one tool request. Satisfied by *gateway.Gateway.
type Invoker interface {
	Invoke(ctx context.Context, req types.ToolRequest, timeout time.Duration, maxRetries int) types.ToolResult
}

// Config holds engine policy. Zero values fall back to defaults.
type Config struct {
	// MaxConcurrentRuns bounds how many runs execute at once; further
	// submissions stay pending until a slot frees. Default 8.
	MaxConcurrentRuns int
}

const defaultMaxConcurrentRuns = 8

// Engine manages workflow runs.
type Engine struct {
	invoker   Invoker
	storage   storage.Storage
	evaluator rules.Evaluator
	bus       *events.Bus
	generate  generator.Generator
	logger    *slog.Logger

	mu      sync.RWMutex
	runs    map[uint64]types.WorkflowRun
	cancels map[uint64]context.CancelFunc
	slots   chan struct{}
}

// NewEngine creates an Engine. generate and invoker are required; a nil
// store falls back to in-memory storage, a nil evaluator to the expr
// evaluator, a nil logger to a nop logger.
func NewEngine(generate generator.Generator, store storage.Storage, invoker Invoker, evaluator rules.Evaluator, cfg Config, logger *slog.Logger) (*Engine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}
	if invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if evaluator == nil {
		evaluator = rules.NewExprEvaluator()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = defaultMaxConcurrentRuns
	}

	return &Engine{
		invoker:   invoker,
		storage:   store,
		evaluator: evaluator,
		bus:       events.NewBus(),
		generate:  generate,
		logger:    logger,
		runs:      make(map[uint64]types.WorkflowRun),
		cancels:   make(map[uint64]context.CancelFunc),
		slots:     make(chan struct{}, cfg.MaxConcurrentRuns),
	}, nil
}

// SubscribeEvent subscribes a handler to run lifecycle events.
func (e *Engine) SubscribeEvent(eventType string, handler events.Handler) {
	e.bus.Subscribe(eventType, handler)
}

// Submit validates a definition, creates a pending run and starts executing
// it asynchronously. The run ID is available immediately.
func (e *Engine) Submit(ctx context.Context, def types.WorkflowDefinition) (*types.WorkflowRun, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	id, err := e.generate.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	now := time.Now().UnixMilli()
	run := types.WorkflowRun{
		ID:          id,
		Definition:  def,
		State:       types.RunPending,
		StepResults: []types.ToolResult{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.saveRun(ctx, run); err != nil {
		return nil, err
	}
	e.publish(ctx, events.TypeRunStateChanged, run.ID, map[string]interface{}{"state": run.State})

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()

	go e.execute(runCtx, run)

	return &run, nil
}

func validateDefinition(def types.WorkflowDefinition) error {
	if len(def.Steps) == 0 {
		return ErrEmptyDefinition
	}
	for i, step := range def.Steps {
		if step.ToolName == "" || step.Operation == "" {
			return fmt.Errorf("step %d: toolName and operation are required", i)
		}
		for name, value := range step.InputBindings {
			idx, _, isRef, err := parseRef(value)
			if err != nil {
				return fmt.Errorf("step %d binding %q: %w", i, name, err)
			}
			if isRef && idx >= i {
				return fmt.Errorf("step %d binding %q references step %d, which does not precede it", i, name, idx)
			}
		}
	}
	return nil
}

// execute runs all steps of one run sequentially. Steps never overlap within
// a run: step N+1 is not dispatched before step N's result is recorded.
func (e *Engine) execute(ctx context.Context, run types.WorkflowRun) {
	defer func() {
		e.mu.Lock()
		delete(e.cancels, run.ID)
		e.mu.Unlock()
	}()

	// Run-level concurrency slot; the run stays pending until one frees.
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		e.finish(&run, types.RunAborted)
		return
	}

	e.setState(&run, types.RunRunning)

	for i, step := range run.Definition.Steps {
		if ctx.Err() != nil {
			e.finish(&run, types.RunAborted)
			return
		}

		proceed, err := e.evaluator.Evaluate(step.Condition, conditionEnv(run.StepResults))
		if err != nil {
			res := types.ToolResult{
				Status: types.ResultError,
				Error: types.NewError(types.CodePermanent,
					"step %d condition failed to evaluate: %v", i, err),
			}
			e.recordStep(&run, res)
			e.finish(&run, types.RunFailed)
			return
		}
		if !proceed {
			e.recordStep(&run, types.ToolResult{Status: types.ResultSkipped})
			continue
		}

		args, bindErr := resolveBindings(step.InputBindings, run.StepResults)
		if bindErr != nil {
			// Binding errors fail the whole run, optional or not.
			e.recordStep(&run, types.ToolResult{Status: types.ResultError, Error: bindErr})
			e.finish(&run, types.RunFailed)
			return
		}

		result := e.invoker.Invoke(ctx, types.ToolRequest{
			ToolName:  step.ToolName,
			Operation: step.Operation,
			Arguments: args,
		}, time.Duration(step.TimeoutSec)*time.Second, retriesFor(step))

		if ctx.Err() != nil {
			// Cancelled mid-step: the gateway call was cancelled too. Keep
			// the already-recorded results, drop this one.
			e.finish(&run, types.RunAborted)
			return
		}

		e.recordStep(&run, result)

		if !result.OK() && !step.Optional {
			e.finish(&run, types.RunFailed)
			return
		}
	}

	e.finish(&run, types.RunCompleted)
}

// retriesFor maps a step's retry override to the gateway convention: a
// positive value overrides, otherwise -1 selects the gateway default.
func retriesFor(step types.StepSpec) int {
	if step.MaxRetries > 0 {
		return step.MaxRetries
	}
	return -1
}

func (e *Engine) recordStep(run *types.WorkflowRun, res types.ToolResult) {
	run.StepResults = append(run.StepResults, res)
	run.CurrentStepIndex = len(run.StepResults)
	run.UpdatedAt = time.Now().UnixMilli()

	ctx := context.Background()
	if err := e.saveRun(ctx, *run); err != nil {
		e.logger.Error("failed to save run", "run", run.ID, "err", err)
	}
	e.publish(ctx, events.TypeStepRecorded, run.ID, map[string]interface{}{
		"step":   run.CurrentStepIndex - 1,
		"status": res.Status,
	})
}

func (e *Engine) setState(run *types.WorkflowRun, state string) {
	run.State = state
	run.UpdatedAt = time.Now().UnixMilli()

	ctx := context.Background()
	if err := e.saveRun(ctx, *run); err != nil {
		e.logger.Error("failed to save run", "run", run.ID, "err", err)
	}
	e.publish(ctx, events.TypeRunStateChanged, run.ID, map[string]interface{}{"state": state})
}

func (e *Engine) finish(run *types.WorkflowRun, state string) {
	e.setState(run, state)
	e.logger.Info("run finished", "run", run.ID, "state", state, "steps", len(run.StepResults))
}

// Cancel aborts a run: the currently-executing step's gateway call is
// cancelled and no further steps start. Cancelling a terminal run is a
// no-op.
func (e *Engine) Cancel(ctx context.Context, runID uint64) error {
	run, err := e.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}

	e.mu.Lock()
	cancel, executing := e.cancels[runID]
	e.mu.Unlock()

	if executing {
		cancel()
		return nil
	}

	// Not executing (e.g. loaded from storage after a restart): mark
	// aborted directly.
	run.State = types.RunAborted
	run.UpdatedAt = time.Now().UnixMilli()
	if err := e.saveRun(ctx, *run); err != nil {
		return err
	}
	e.publish(ctx, events.TypeRunStateChanged, run.ID, map[string]interface{}{"state": run.State})
	return nil
}

// GetRun retrieves a run by ID, checking cache first then storage.
func (e *Engine) GetRun(ctx context.Context, runID uint64) (*types.WorkflowRun, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	e.mu.RLock()
	run, ok := e.runs[runID]
	e.mu.RUnlock()
	if ok {
		return &run, nil
	}

	run, err := e.storage.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	return &run, nil
}

// saveRun saves a run to both cache and storage.
func (e *Engine) saveRun(ctx context.Context, run types.WorkflowRun) error {
	if err := e.storage.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	return nil
}

func (e *Engine) publish(ctx context.Context, eventType string, runID uint64, data map[string]interface{}) {
	if !e.bus.HasSubscribers(eventType) {
		return
	}
	if err := e.bus.Publish(ctx, events.Event{Type: eventType, RunID: runID, Data: data}); err != nil {
		e.logger.Debug("event publish failed", "type", eventType, "run", runID, "err", err)
	}
}

// Stop gracefully stops the engine's event bus.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.bus.Stop()
		return nil
	}
}
