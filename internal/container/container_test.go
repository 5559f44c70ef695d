package container

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_GetConstructsOnceAndCaches(t *testing.T) {
	c := New(zerolog.Nop())
	var builds int32
	c.RegisterSingleton("thing", func() (interface{}, error) {
		atomic.AddInt32(&builds, 1)
		return "instance", nil
	})

	v1, err := c.Get("thing")
	require.NoError(t, err)
	v2, err := c.Get("thing")
	require.NoError(t, err)

	assert.Equal(t, "instance", v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestContainer_GetUnregisteredReturnsErrNotRegistered(t *testing.T) {
	c := New(zerolog.Nop())
	_, err := c.Get("missing")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestContainer_ConcurrentFirstGetConstructsOnce(t *testing.T) {
	c := New(zerolog.Nop())
	var builds int32
	c.RegisterSingleton("thing", func() (interface{}, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(10 * time.Millisecond)
		return "instance", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get("thing")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestContainer_FactoryErrorPropagatesAndIsNotCached(t *testing.T) {
	c := New(zerolog.Nop())
	var calls int32
	c.RegisterSingleton("broken", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	})

	_, err := c.Get("broken")
	assert.Error(t, err)
	_, err = c.Get("broken")
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "a failed construction must be retried, not cached")
}

func TestContainer_ShutdownRunsCleanupsInReverseOrder(t *testing.T) {
	c := New(zerolog.Nop())
	var order []string
	var mu sync.Mutex

	record := func(name string) Cleanup {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	c.RegisterSingleton("a", func() (interface{}, error) { return "a", nil })
	c.RegisterCleanup("a", record("a"))
	c.RegisterSingleton("b", func() (interface{}, error) { return "b", nil })
	c.RegisterCleanup("b", record("b"))
	c.RegisterSingleton("c", func() (interface{}, error) { return "c", nil })
	c.RegisterCleanup("c", record("c"))

	c.Shutdown()

	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestContainer_ShutdownToleratesCleanupErrorAndTimeout(t *testing.T) {
	c := New(zerolog.Nop())
	c.RegisterSingleton("failing", func() (interface{}, error) { return "x", nil })
	c.RegisterCleanup("failing", func(ctx context.Context) error { return errors.New("cleanup failed") })

	c.RegisterSingleton("slow", func() (interface{}, error) { return "y", nil })
	c.RegisterCleanup("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * cleanupTimeout):
		t.Fatal("Shutdown did not return within twice the per-callback timeout")
	}
}
