package storage

import (
	"context"
	"errors"

	"github.com/chemgate/chemgate/types"
)

// ErrRunNotFound is returned when no run exists under the requested ID.
var ErrRunNotFound = errors.New("workflow run not found")

// Storage persists workflow runs. Definitions travel inside the run; the
// registry is deliberately not persisted (it holds live adapter handles).
type Storage interface {
	// SaveRun saves a workflow run, overwriting any previous version.
	SaveRun(ctx context.Context, run types.WorkflowRun) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id uint64) (types.WorkflowRun, error)
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}
