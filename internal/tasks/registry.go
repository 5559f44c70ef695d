// Package tasks implements the durable task data plane (registry, claim,
// execute, record) and the control plane (periodic ticker, startup
// reaper) described by the orchestration substrate's scheduler contract.
package tasks

import (
	"context"
	"sync"

	"github.com/aristath/trading-core/internal/statestore"
)

// Result is what a Handler returns after processing one task.
type Result struct {
	// Skipped, when true, moves the task straight to completed without
	// counting it as a failure or a success-worth-logging attempt.
	Skipped bool
	Reason  string
}

// Handler executes one task. A returned error is classified retryable via
// apierrors.Retryable/NonRetryable by the Service.
type Handler func(ctx context.Context, task statestore.Task) (Result, error)

// Registry maps a task type to exactly one handler; registering a type
// twice replaces the previous handler, matching the "register_handler"
// contract's replace-on-duplicate semantics.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs handler for taskType, replacing any existing one.
func (r *Registry) Register(taskType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = handler
}

// Get returns the handler for taskType, or nil if none is registered.
func (r *Registry) Get(taskType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[taskType]
}

// Types returns every registered task type.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
