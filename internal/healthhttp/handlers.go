// Package healthhttp exposes read-only operational endpoints over the
// orchestration substrate: process health, circuit-breaker state, and
// queue depth, grounded on the teacher's chi-routed system_handlers.go.
package healthhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-core/internal/apiclient"
	"github.com/aristath/trading-core/internal/container"
	"github.com/aristath/trading-core/internal/statestore"
)

// Handlers serves the read-only diagnostics surface. All three routes are
// read-only: no route here can mutate state.
type Handlers struct {
	store       *statestore.Store
	apiClient   *apiclient.Client
	diagnostics *container.Diagnostics
	startedAt   time.Time
	log         zerolog.Logger
}

// New builds Handlers over the given components. apiClient may be nil if
// no outbound provider is configured; the circuit metrics route then
// reports an empty client list rather than erroring.
func New(store *statestore.Store, apiClient *apiclient.Client, diagnostics *container.Diagnostics, log zerolog.Logger) *Handlers {
	return &Handlers{
		store:       store,
		apiClient:   apiClient,
		diagnostics: diagnostics,
		startedAt:   time.Now(),
		log:         log.With().Str("component", "healthhttp").Logger(),
	}
}

// Router builds a chi.Router mounting the three read-only routes under
// whatever prefix the caller chooses to Mount it at.
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", h.handleHealthz)
	r.Get("/metrics/circuit", h.handleCircuitMetrics)
	r.Get("/metrics/queues", h.handleQueueMetrics)
	return r
}

type healthzResponse struct {
	Status    string  `json:"status"`
	UptimeSec float64 `json:"uptime_seconds"`
	CPU       float64 `json:"cpu_percent"`
	RAM       float64 `json:"ram_percent"`
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.store.Ping(); err != nil {
		status = "degraded"
	}

	sample := h.diagnostics.Sample()
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:    status,
		UptimeSec: time.Since(h.startedAt).Seconds(),
		CPU:       sample.CPUPercent,
		RAM:       sample.RAMPercent,
	})
}

func (h *Handlers) handleCircuitMetrics(w http.ResponseWriter, r *http.Request) {
	if h.apiClient == nil {
		writeJSON(w, http.StatusOK, apiclient.Health{})
		return
	}
	writeJSON(w, http.StatusOK, h.apiClient.Health())
}

func (h *Handlers) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.QueueStats()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read queue stats")
		http.Error(w, "failed to read queue stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queues": stats})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
