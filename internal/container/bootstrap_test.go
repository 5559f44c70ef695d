package container

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/aristath/trading-core/internal/config"
	"github.com/aristath/trading-core/internal/statestore"
	"github.com/aristath/trading-core/internal/tasks"
)

func testConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	return &appconfig.Config{
		DataDir:               t.TempDir(),
		Environment:           appconfig.EnvDryRun,
		APIKeys:               []string{"k1"},
		RequestsPerMinute:     60,
		BurstLimit:            5,
		FailureThreshold:      5,
		RecoveryTimeoutSecs:   60,
		MaxRetries:            5,
		InitialBackoffSeconds: 2,
		MaxBackoffSeconds:     120,
		JitterEnabled:         true,
		BackupEnabled:         true,
		BackupIntervalHours:   1,
		MaxBackups:            7,
		ShutdownGraceSecs:     30,
		MaxRunTimeMinutes:     75,
		DefaultHandlerSecs:    300,
	}
}

func TestBootstrap_ConstructsStateStoreLazily(t *testing.T) {
	c, err := Bootstrap(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	storeAny, err := c.Get(NameStateStore)
	require.NoError(t, err)
	_, ok := storeAny.(*statestore.Store)
	assert.True(t, ok)
}

func TestBootstrap_StartReapsStaleThenStartsTicker(t *testing.T) {
	c, err := Bootstrap(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	require.NoError(t, Start(c))

	tickerAny, err := c.Get(NameTaskTicker)
	require.NoError(t, err)
	_, ok := tickerAny.(*tasks.Ticker)
	assert.True(t, ok)
}

func TestBootstrap_ShutdownStopsTaskServiceAndTicker(t *testing.T) {
	c, err := Bootstrap(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, Start(c))

	c.Shutdown() // must not hang or panic
}
