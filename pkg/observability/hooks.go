// Package observability provides event hooks for release, task, and cache
// operations.
//
// Hooks let a caller attach metrics or tracing backends without the core
// packages depending on any instrumentation framework. A Registry carries
// the hook set and is passed explicitly to the components that emit events;
// every accessor returns a no-op implementation until a real one is set, so
// call sites never nil-check.
package observability

import (
	"context"
	"sync"
	"time"
)

// ReleaseHooks receives events from release workflow steps.
type ReleaseHooks interface {
	OnStepStart(ctx context.Context, step string)
	OnStepComplete(ctx context.Context, step string, duration time.Duration, err error)
}

// TaskHooks receives events from task execution.
type TaskHooks interface {
	OnTaskStart(ctx context.Context, pkg, task string)
	OnTaskComplete(ctx context.Context, pkg, task, status string, duration time.Duration)
}

// CacheHooks receives events from response-cache operations.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, key string)
	OnCacheMiss(ctx context.Context, key string)
}

// NoopReleaseHooks is a no-op implementation of ReleaseHooks.
type NoopReleaseHooks struct{}

func (NoopReleaseHooks) OnStepStart(context.Context, string)                          {}
func (NoopReleaseHooks) OnStepComplete(context.Context, string, time.Duration, error) {}

// NoopTaskHooks is a no-op implementation of TaskHooks.
type NoopTaskHooks struct{}

func (NoopTaskHooks) OnTaskStart(context.Context, string, string)                            {}
func (NoopTaskHooks) OnTaskComplete(context.Context, string, string, string, time.Duration) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)  {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string) {}

// Registry carries the hook set for one engine instance. The zero value is
// usable and returns no-ops everywhere.
type Registry struct {
	mu      sync.RWMutex
	release ReleaseHooks
	task    TaskHooks
	cache   CacheHooks
}

// NewRegistry creates a registry with no-op hooks.
func NewRegistry() *Registry { return &Registry{} }

// SetReleaseHooks registers release hooks. Nil is ignored.
func (r *Registry) SetReleaseHooks(h ReleaseHooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h != nil {
		r.release = h
	}
}

// SetTaskHooks registers task hooks. Nil is ignored.
func (r *Registry) SetTaskHooks(h TaskHooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h != nil {
		r.task = h
	}
}

// SetCacheHooks registers cache hooks. Nil is ignored.
func (r *Registry) SetCacheHooks(h CacheHooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h != nil {
		r.cache = h
	}
}

// Release returns the registered release hooks. Safe on a nil registry.
func (r *Registry) Release() ReleaseHooks {
	if r == nil {
		return NoopReleaseHooks{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.release == nil {
		return NoopReleaseHooks{}
	}
	return r.release
}

// Task returns the registered task hooks. Safe on a nil registry.
func (r *Registry) Task() TaskHooks {
	if r == nil {
		return NoopTaskHooks{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.task == nil {
		return NoopTaskHooks{}
	}
	return r.task
}

// Cache returns the registered cache hooks. Safe on a nil registry.
func (r *Registry) Cache() CacheHooks {
	if r == nil {
		return NoopCacheHooks{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cache == nil {
		return NoopCacheHooks{}
	}
	return r.cache
}
