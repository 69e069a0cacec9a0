// Package adapter defines the uniform contract a backend capability is
// wrapped behind, and the reference adapters shipped with the gateway.
package adapter

import (
	"context"
	"time"

	"github.com/chemgate/chemgate/types"
)

// Tool is the capability set the gateway consumes. Implementations may be
// synchronous-fast or simulate long-running work, but Call must observe ctx
// cancellation: the gateway positively cancels timed-out invocations.
type Tool interface {
	// Name returns the tool's registered name.
	Name() string

	// Operations returns the operation names the tool supports.
	Operations() []string

	// Schema returns the argument schema for an operation, and whether the
	// operation exists.
	Schema(operation string) (Schema, bool)

	// Call executes one operation and returns its payload.
	Call(ctx context.Context, operation string, args map[string]interface{}) (map[string]interface{}, error)
}

// Operation bundles a schema with its handler. Used to assemble tools from
// plain functions.
type Operation struct {
	Schema  Schema
	Handler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// FuncTool is a Tool assembled from named operations.
type FuncTool struct {
	name  string
	ops   map[string]Operation
	order []string
}

// NewFuncTool creates a tool with the given name and no operations.
func NewFuncTool(name string) *FuncTool {
	return &FuncTool{name: name, ops: make(map[string]Operation)}
}

// AddOperation registers an operation. Re-adding a name replaces it.
func (t *FuncTool) AddOperation(name string, op Operation) *FuncTool {
	if _, ok := t.ops[name]; !ok {
		t.order = append(t.order, name)
	}
	t.ops[name] = op
	return t
}

func (t *FuncTool) Name() string { return t.name }

func (t *FuncTool) Operations() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *FuncTool) Schema(operation string) (Schema, bool) {
	op, ok := t.ops[operation]
	return op.Schema, ok
}

func (t *FuncTool) Call(ctx context.Context, operation string, args map[string]interface{}) (map[string]interface{}, error) {
	op, ok := t.ops[operation]
	if !ok {
		return nil, types.NewError(types.CodePermanent, "tool %q has no operation %q", t.name, operation)
	}
	return op.Handler(ctx, args)
}

// Sleep simulates work for d while staying cancellable.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
