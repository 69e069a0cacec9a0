// Package registry tracks known tool adapters, their capabilities and their
// liveness. All operations share one lock; tool calls that resolved their
// adapter earlier are never blocked by it.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chemgate/chemgate/adapter"
	"github.com/chemgate/chemgate/types"
)

// Consecutive failed heartbeats before an active tool is degraded. One more
// failure after that takes it offline.
const degradeThreshold = 3

var (
	// ErrNotFound indicates no adapter is registered under the name.
	ErrNotFound = errors.New("tool not registered")
)

// entry pairs a descriptor with its live adapter and heartbeat streak.
type entry struct {
	desc       types.ToolDescriptor
	tool       adapter.Tool
	failStreak int
}

// Registry is the in-process service registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register inserts a tool with status active. It fails with
// DuplicateNameError if an active adapter with the same name already exists;
// a degraded or offline entry is replaced and re-appended to the
// registration order.
func (r *Registry) Register(ctx context.Context, desc types.ToolDescriptor, tool adapter.Tool) error {
	if desc.Name == "" || tool == nil {
		return errors.New("descriptor name and adapter are required")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		r.mu.Lock()
		defer r.mu.Unlock()

		if existing, ok := r.entries[desc.Name]; ok {
			if existing.desc.Status == types.StatusActive {
				return types.NewError(types.CodeDuplicateName,
					"tool %q is already registered and active", desc.Name)
			}
			r.removeOrderLocked(desc.Name)
		}

		desc.Status = types.StatusActive
		desc.LastHeartbeat = time.Now().UnixMilli()
		r.entries[desc.Name] = &entry{desc: desc, tool: tool}
		r.order = append(r.order, desc.Name)
		return nil
	}
}

// Deregister removes a tool. Idempotent; absent names are a no-op.
func (r *Registry) Deregister(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.entries[name]; !ok {
			return nil
		}
		delete(r.entries, name)
		r.removeOrderLocked(name)
		return nil
	}
}

// Discover returns descriptors of active tools declaring the capability, in
// registration order. An empty result is not an error.
func (r *Registry) Discover(ctx context.Context, capability string) ([]types.ToolDescriptor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		r.mu.RLock()
		defer r.mu.RUnlock()

		var out []types.ToolDescriptor
		for _, name := range r.order {
			e := r.entries[name]
			if e.desc.Status == types.StatusActive && e.desc.HasCapability(capability) {
				out = append(out, e.desc)
			}
		}
		return out, nil
	}
}

// Resolve returns the live adapter for an active tool. It fails with
// ToolNotFoundError when the name is unknown or the tool is not active.
func (r *Registry) Resolve(name string) (adapter.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok || e.desc.Status != types.StatusActive {
		return nil, types.NewError(types.CodeToolNotFound, "no active tool %q", name)
	}
	return e.tool, nil
}

// Heartbeat records a liveness probe outcome. Three consecutive failures
// degrade an active tool; one further failure takes it offline. Any success
// restores active immediately.
func (r *Registry) Heartbeat(ctx context.Context, name string, ok bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		r.mu.Lock()
		defer r.mu.Unlock()

		e, found := r.entries[name]
		if !found {
			return ErrNotFound
		}

		e.desc.LastHeartbeat = time.Now().UnixMilli()
		if ok {
			e.failStreak = 0
			e.desc.Status = types.StatusActive
			return nil
		}

		e.failStreak++
		switch {
		case e.desc.Status == types.StatusActive && e.failStreak >= degradeThreshold:
			e.desc.Status = types.StatusDegraded
		case e.desc.Status == types.StatusDegraded:
			e.desc.Status = types.StatusOffline
		}
		return nil
	}
}

// ListTools returns every descriptor in registration order.
func (r *Registry) ListTools(ctx context.Context) ([]types.ToolDescriptor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		r.mu.RLock()
		defer r.mu.RUnlock()

		out := make([]types.ToolDescriptor, 0, len(r.order))
		for _, name := range r.order {
			out = append(out, r.entries[name].desc)
		}
		return out, nil
	}
}

// Health summarizes registry state: "ok" when every tool is active,
// "degraded" otherwise, with per-tool statuses.
type Health struct {
	Status        string            `json:"status"`
	PerToolStatus map[string]string `json:"perToolStatus"`
}

// Health reports the aggregate health of all registered tools.
func (r *Registry) Health(ctx context.Context) (Health, error) {
	select {
	case <-ctx.Done():
		return Health{}, ctx.Err()
	default:
		r.mu.RLock()
		defer r.mu.RUnlock()

		h := Health{Status: "ok", PerToolStatus: make(map[string]string, len(r.entries))}
		for name, e := range r.entries {
			h.PerToolStatus[name] = e.desc.Status
			if e.desc.Status != types.StatusActive {
				h.Status = "degraded"
			}
		}
		return h, nil
	}
}

func (r *Registry) removeOrderLocked(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
