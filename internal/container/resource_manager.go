package container

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// taskCleanupTimeout is a 5 s per-task bound. Cleanup does not use it: a
// tracked task is only its cancel func, so Cleanup calls that func and
// does not wait for the task's goroutine to exit.
const taskCleanupTimeout = 5 * time.Second

// ResourceManager is centralized resource lifecycle tracking, ported from
// the original background-scheduler's ResourceManager: file handles,
// background tasks, and cleanup callbacks, released in one place on
// shutdown. The original also tracked WebSocket connections via weakref;
// this module has no websockets in scope, so only file handles, tasks, and
// callbacks are carried over.
type ResourceManager struct {
	mu        sync.Mutex
	handles   map[io.Closer]string
	tasks     map[string]context.CancelFunc
	callbacks map[string]func() error
	shutdown  bool
	log       zerolog.Logger
}

// NewResourceManager builds an empty ResourceManager.
func NewResourceManager(log zerolog.Logger) *ResourceManager {
	return &ResourceManager{
		handles:   make(map[io.Closer]string),
		tasks:     make(map[string]context.CancelFunc),
		callbacks: make(map[string]func() error),
		log:       log.With().Str("component", "resource_manager").Logger(),
	}
}

// RegisterFileHandle tracks handle under name for Cleanup to close.
func (r *ResourceManager) RegisterFileHandle(handle io.Closer, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[handle] = name
	r.log.Debug().Str("name", name).Msg("registered file handle")
}

// UnregisterFileHandle stops tracking handle (e.g. once its owner closed
// it directly).
func (r *ResourceManager) UnregisterFileHandle(handle io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, handle)
}

// RegisterTask tracks a background goroutine's cancel func under name, so
// Cleanup can force it to stop.
func (r *ResourceManager) RegisterTask(name string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = cancel
	r.log.Debug().Str("name", name).Msg("registered task")
}

// UnregisterTask stops tracking a task that has already completed on its
// own.
func (r *ResourceManager) UnregisterTask(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, name)
}

// RegisterCleanupCallback installs a named callback Cleanup runs before
// releasing tracked tasks and handles.
func (r *ResourceManager) RegisterCleanupCallback(name string, callback func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[name] = callback
	r.log.Debug().Str("name", name).Msg("registered cleanup callback")
}

// Stats reports current resource counts for the health/diagnostics surface.
func (r *ResourceManager) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]int{
		"file_handles":      len(r.handles),
		"tasks":             len(r.tasks),
		"cleanup_callbacks": len(r.callbacks),
	}
}

// Cleanup runs every registered callback, then calls every tracked task's
// cancel func (without waiting for the task to finish), then closes every
// tracked file handle. Idempotent: a second call is a no-op.
func (r *ResourceManager) Cleanup() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	callbacks := make(map[string]func() error, len(r.callbacks))
	for k, v := range r.callbacks {
		callbacks[k] = v
	}
	tasks := make(map[string]context.CancelFunc, len(r.tasks))
	for k, v := range r.tasks {
		tasks[k] = v
	}
	handles := make(map[io.Closer]string, len(r.handles))
	for k, v := range r.handles {
		handles[k] = v
	}
	r.mu.Unlock()

	r.log.Info().Msg("starting resource cleanup")

	for name, callback := range callbacks {
		if err := callback(); err != nil {
			r.log.Error().Err(err).Str("name", name).Msg("cleanup callback failed")
		}
	}

	for name, cancel := range tasks {
		cancel()
		r.log.Debug().Str("name", name).Msg("task cancelled")
	}

	for handle, name := range handles {
		if err := handle.Close(); err != nil {
			r.log.Debug().Err(err).Str("name", name).Msg("file handle close error")
		}
	}

	r.mu.Lock()
	r.handles = make(map[io.Closer]string)
	r.tasks = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	r.log.Info().Msg("resource cleanup complete")
}
