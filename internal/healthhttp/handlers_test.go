package healthhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trading-core/internal/apiclient"
	"github.com/aristath/trading-core/internal/container"
	"github.com/aristath/trading-core/internal/database"
	"github.com/aristath/trading-core/internal/statestore"
)

func newTestStore(t *testing.T) *statestore.Store {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := statestore.New(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestHandlers_Healthz_ReportsOKForLiveStore(t *testing.T) {
	h := New(newTestStore(t), nil, container.NewDiagnostics(), zerolog.Nop())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthzResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestHandlers_CircuitMetrics_HandlesNilClient(t *testing.T) {
	h := New(newTestStore(t), nil, container.NewDiagnostics(), zerolog.Nop())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics/circuit")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlers_CircuitMetrics_ReportsClientHealth(t *testing.T) {
	client := apiclient.New(apiclient.Config{Name: "test", Keys: []string{"k1"}, RequestsPerMinute: 60, FailureThreshold: 5}, zerolog.Nop())
	h := New(newTestStore(t), client, container.NewDiagnostics(), zerolog.Nop())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics/circuit")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health apiclient.Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, apiclient.CircuitClosed, health.CircuitState)
}

func TestHandlers_QueueMetrics_ReportsPendingCounts(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Enqueue(statestore.Task{Type: "fetch_news", MaxAttempts: 1})
	require.NoError(t, err)

	h := New(store, nil, container.NewDiagnostics(), zerolog.Nop())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics/queues")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Queues []statestore.QueueStat `json:"queues"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Queues, 1)
	assert.Equal(t, "fetch_news", body.Queues[0].QueueKey)
	assert.Equal(t, 1, body.Queues[0].Pending)
}
