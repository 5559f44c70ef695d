package container

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeCloser struct {
	closed bool
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestResourceManager_StatsReflectsRegistrations(t *testing.T) {
	rm := NewResourceManager(zerolog.Nop())
	h := &fakeCloser{}
	rm.RegisterFileHandle(h, "handle-1")
	rm.RegisterTask("worker-1", func() {})
	rm.RegisterCleanupCallback("flush", func() error { return nil })

	stats := rm.Stats()
	assert.Equal(t, 1, stats["file_handles"])
	assert.Equal(t, 1, stats["tasks"])
	assert.Equal(t, 1, stats["cleanup_callbacks"])
}

func TestResourceManager_UnregisterRemovesTracking(t *testing.T) {
	rm := NewResourceManager(zerolog.Nop())
	h := &fakeCloser{}
	rm.RegisterFileHandle(h, "handle-1")
	rm.UnregisterFileHandle(h)

	assert.Equal(t, 0, rm.Stats()["file_handles"])
}

func TestResourceManager_CleanupRunsCallbacksThenCancelsTasksThenClosesHandles(t *testing.T) {
	rm := NewResourceManager(zerolog.Nop())
	h := &fakeCloser{}
	rm.RegisterFileHandle(h, "handle-1")

	var cancelled bool
	_, cancel := context.WithCancel(context.Background())
	rm.RegisterTask("worker-1", func() { cancelled = true; cancel() })

	var callbackRan bool
	rm.RegisterCleanupCallback("flush", func() error { callbackRan = true; return nil })

	rm.Cleanup()

	assert.True(t, callbackRan)
	assert.True(t, cancelled)
	assert.True(t, h.closed)
	assert.Equal(t, 0, rm.Stats()["tasks"])
	assert.Equal(t, 0, rm.Stats()["file_handles"])
}

func TestResourceManager_CleanupIsIdempotent(t *testing.T) {
	rm := NewResourceManager(zerolog.Nop())
	var calls int
	rm.RegisterCleanupCallback("flush", func() error { calls++; return nil })

	rm.Cleanup()
	rm.Cleanup()

	assert.Equal(t, 1, calls)
}

func TestResourceManager_CleanupToleratesCallbackError(t *testing.T) {
	rm := NewResourceManager(zerolog.Nop())
	rm.RegisterCleanupCallback("broken", func() error { return errors.New("boom") })

	var secondRan bool
	rm.RegisterCleanupCallback("second", func() error { secondRan = true; return nil })

	rm.Cleanup()
	assert.True(t, secondRan)
}
