package statestore

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trading-core/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestPortfolio_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	empty, err := store.GetPortfolio()
	require.NoError(t, err)
	assert.Nil(t, empty)

	snap := PortfolioSnapshot{
		Cash:          map[string]float64{"USD": 1000},
		Holdings:      []Holding{{Symbol: "AAPL", Qty: 10, AvgPrice: 150}},
		ExposureTotal: 1500,
	}
	require.NoError(t, store.PutPortfolio(snap))

	got, err := store.GetPortfolio()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1000.0, got.Cash["USD"])
	assert.Equal(t, "AAPL", got.Holdings[0].Symbol)
	assert.Equal(t, 1500.0, got.ExposureTotal)

	// Replaces wholesale, never accumulates.
	require.NoError(t, store.PutPortfolio(PortfolioSnapshot{Cash: map[string]float64{"USD": 50}}))
	got2, err := store.GetPortfolio()
	require.NoError(t, err)
	assert.Equal(t, 50.0, got2.Cash["USD"])
	assert.Empty(t, got2.Holdings)
}

func TestIntents_CreateUpdateListFilter(t *testing.T) {
	store := newTestStore(t)

	intent, err := store.CreateIntent("AAPL", map[string]interface{}{"direction": "buy"}, "analyzer")
	require.NoError(t, err)
	assert.Equal(t, IntentPending, intent.Status)

	intent.Status = IntentApproved
	now := time.Now().UTC()
	intent.ApprovedAt = &now
	require.NoError(t, store.UpdateIntent(*intent))

	fetched, err := store.GetIntent(intent.ID)
	require.NoError(t, err)
	assert.Equal(t, IntentApproved, fetched.Status)
	require.NotNil(t, fetched.ApprovedAt)

	list, err := store.ListIntents(IntentFilter{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetIntent("does-not-exist")
	assert.Error(t, err)
}

func TestTasks_EnqueueClaimCompleteLifecycle(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Enqueue(Task{Type: "news_fetch", Payload: map[string]interface{}{"symbol": "AAPL"}})
	require.NoError(t, err)

	claimed, err := store.ClaimNext("news_fetch")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, TaskRunning, claimed.Status)
	assert.Equal(t, id, claimed.ID)

	// No further task to claim in this queue.
	none, err := store.ClaimNext("news_fetch")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, store.MarkCompleted(id))

	final, err := store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
}

func TestTasks_ClaimRespectsPriorityThenScheduledAt(t *testing.T) {
	store := newTestStore(t)

	lowID, err := store.Enqueue(Task{Type: "t", Priority: 5})
	require.NoError(t, err)
	highID, err := store.Enqueue(Task{Type: "t", Priority: 10})
	require.NoError(t, err)

	first, err := store.ClaimNext("t")
	require.NoError(t, err)
	assert.Equal(t, highID, first.ID)

	second, err := store.ClaimNext("t")
	require.NoError(t, err)
	assert.Equal(t, lowID, second.ID)
}

func TestTasks_MarkFailedReschedulesUntilMaxAttempts(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Enqueue(Task{Type: "t", MaxAttempts: 2})
	require.NoError(t, err)

	claimed, err := store.ClaimNext("t")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	soon := time.Now().UTC().Add(-time.Second) // already due
	require.NoError(t, store.MarkFailed(id, "boom", &soon))

	rescheduled, err := store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, rescheduled.Status)
	assert.Equal(t, 1, rescheduled.Attempts)
	assert.Equal(t, "boom", rescheduled.LastError)

	claimed2, err := store.ClaimNext("t")
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	require.NoError(t, store.MarkFailed(id, "boom again", nil))

	failed, err := store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, failed.Status)
	require.NotNil(t, failed.CompletedAt)
}

func TestTasks_ReapStaleReturnsRunningTasksToPending(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Enqueue(Task{Type: "t"})
	require.NoError(t, err)
	_, err = store.ClaimNext("t")
	require.NoError(t, err)

	n, err := store.ReapStale(0) // zero max age: every running task is stale
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, task.Status)
	assert.Nil(t, task.StartedAt)
}

func TestExecutionHistory_RecordAndPrune(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordExecution(ExecutionRecord{
			TaskName: "news_fetch", TaskID: "x", ExecutionType: "scheduled", Status: "completed",
		}, 3))
	}

	records, err := store.QueryExecution(ExecutionFilter{TaskName: "news_fetch"})
	require.NoError(t, err)
	assert.Len(t, records, 3, "retention should prune to maxHistory")
}

func TestEarnings_DuplicateFiscalPeriodConflicts(t *testing.T) {
	store := newTestStore(t)

	rep := EarningsReport{Symbol: "AAPL", FiscalPeriod: "Q1-2026", ReportDate: time.Now().UTC()}
	_, err := store.SaveEarningsReport(rep)
	require.NoError(t, err)

	_, err = store.SaveEarningsReport(rep)
	require.Error(t, err)
}

func TestCheckpoint_CreateThenRestoreRecoversPortfolio(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPortfolio(PortfolioSnapshot{Cash: map[string]float64{"USD": 500}}))
	id, err := store.CreateCheckpoint("before-rebalance", nil)
	require.NoError(t, err)

	require.NoError(t, store.PutPortfolio(PortfolioSnapshot{Cash: map[string]float64{"USD": 0}}))

	ok, err := store.RestoreCheckpoint(id)
	require.NoError(t, err)
	assert.True(t, ok)

	restored, err := store.GetPortfolio()
	require.NoError(t, err)
	assert.Equal(t, 500.0, restored.Cash["USD"])
}

func TestSettings_RoundTripAndPrefixList(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetSetting("risk.max_position_pct")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.PutSetting("risk.max_position_pct", "5"))
	require.NoError(t, store.PutSetting("risk.max_daily_trades", "10"))
	require.NoError(t, store.PutSetting("scheduler.default_frequency", "300"))

	entry, err := store.GetSetting("risk.max_position_pct")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "5", entry.Value)

	riskSettings, err := store.ListSettings("risk.")
	require.NoError(t, err)
	assert.Len(t, riskSettings, 2)

	require.NoError(t, store.DeleteSetting("risk.max_position_pct"))
	afterDelete, err := store.GetSetting("risk.max_position_pct")
	require.NoError(t, err)
	assert.Nil(t, afterDelete)
}

func TestFetchTracking_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	zero, err := store.GetLastFetch("AAPL", FetchKindNews)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SetLastFetch("AAPL", FetchKindNews, now))

	got, err := store.GetLastFetch("AAPL", FetchKindNews)
	require.NoError(t, err)
	assert.WithinDuration(t, now, got, time.Second)

	// Earnings cadence is tracked independently of news.
	earningsZero, err := store.GetLastFetch("AAPL", FetchKindEarnings)
	require.NoError(t, err)
	assert.True(t, earningsZero.IsZero())
}
