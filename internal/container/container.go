// Package container builds the process's dependency graph once and tears
// it down in reverse on shutdown.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrNotRegistered is returned by Get for an unknown name.
var ErrNotRegistered = errors.New("container: not registered")

// Factory builds one singleton instance on first Get.
type Factory func() (interface{}, error)

// Cleanup releases a singleton's resources during Shutdown. It receives a
// context bounded by the per-callback shutdown timeout.
type Cleanup func(ctx context.Context) error

// cleanupTimeout bounds each registered cleanup callback during Shutdown.
const cleanupTimeout = 5 * time.Second

// Container is a lazy-singleton factory registry: RegisterSingleton
// installs a factory, and the first Get for that name invokes it under a
// per-name lock (via singleflight, so concurrent first-Gets collapse into
// one construction); every later Get returns the cached instance.
type Container struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]interface{}
	cleanups  map[string]Cleanup
	order     []string // registration order; Shutdown runs cleanups in reverse
	group     singleflight.Group
	log       zerolog.Logger
}

// New builds an empty Container.
func New(log zerolog.Logger) *Container {
	return &Container{
		factories: make(map[string]Factory),
		instances: make(map[string]interface{}),
		cleanups:  make(map[string]Cleanup),
		log:       log.With().Str("component", "container").Logger(),
	}
}

// RegisterSingleton installs factory under name. Re-registering the same
// name before its first Get replaces the factory without disturbing its
// position in the shutdown order; registering it again after it has
// already been constructed has no effect on the cached instance.
func (c *Container) RegisterSingleton(name string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.factories[name]; !seen {
		c.order = append(c.order, name)
	}
	c.factories[name] = factory
}

// RegisterCleanup attaches a cleanup callback to name, run during Shutdown
// in reverse-registration order regardless of whether name was ever Get.
func (c *Container) RegisterCleanup(name string, cleanup Cleanup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups[name] = cleanup
}

// Get returns the cached singleton for name, constructing it on first call.
// Returns ErrNotRegistered if name was never registered.
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.Lock()
	if inst, ok := c.instances[name]; ok {
		c.mu.Unlock()
		return inst, nil
	}
	factory, ok := c.factories[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		c.mu.Lock()
		if inst, ok := c.instances[name]; ok {
			c.mu.Unlock()
			return inst, nil
		}
		c.mu.Unlock()

		inst, err := factory()
		if err != nil {
			return nil, fmt.Errorf("container: construct %q: %w", name, err)
		}

		c.mu.Lock()
		c.instances[name] = inst
		c.mu.Unlock()
		return inst, nil
	})
	return v, err
}

// Shutdown invokes every registered cleanup callback in reverse-
// registration order, each bounded by a 5s timeout; a callback's error or
// timeout is logged and does not stop the remaining callbacks.
func (c *Container) Shutdown() {
	c.mu.Lock()
	order := append([]string(nil), c.order...)
	c.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		c.mu.Lock()
		cleanup, ok := c.cleanups[name]
		c.mu.Unlock()
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		done := make(chan error, 1)
		go func() { done <- cleanup(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				c.log.Error().Err(err).Str("name", name).Msg("cleanup callback failed")
			}
		case <-ctx.Done():
			c.log.Error().Str("name", name).Msg("cleanup callback timed out")
		}
		cancel()
	}
}
