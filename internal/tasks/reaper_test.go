package tasks

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trading-core/internal/statestore"
)

func TestDefaultMaxRunTime_Is15xHandlerTimeout(t *testing.T) {
	assert.Equal(t, 75*time.Minute, DefaultMaxRunTime(5*time.Minute))
}

func TestDefaultMaxRunTime_FallsBackWhenHandlerTimeoutUnset(t *testing.T) {
	assert.Equal(t, DefaultMaxRunTime(DefaultConfig().HandlerTimeout), DefaultMaxRunTime(0))
}

func TestReapStartupStale_ReturnsStaleRunningTasksToPending(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Enqueue(statestore.Task{Type: "old_job", MaxAttempts: 1})
	require.NoError(t, err)
	task, err := store.ClaimNext("old_job")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.ID)

	require.NoError(t, ReapStartupStale(store, -time.Second, zerolog.Nop()))

	reclaimed, err := store.ClaimNext("old_job")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, id, reclaimed.ID)
}
