package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/avalactf/avala/internal/auth"
	"github.com/avalactf/avala/internal/server/intake"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/tick"
	"github.com/avalactf/avala/pkg/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StateStore is the subset of the state store handlers need.
type StateStore interface {
	Get(ctx context.Context, key string, v interface{}) (bool, error)
}

// Handler implements the HTTP surface over the pipeline's components.
type Handler struct {
	Clock    tick.Clock
	GameInfo wire.GameInfo
	State    StateStore
	Intake   *intake.Intake
	Ready    attackdataReadySignal
}

// attackdataReadySignal is the minimal surface handlers need from
// pkg/eventbus.Signal, kept narrow so this package doesn't need to know
// about the refresher's internals.
type attackdataReadySignal interface {
	Wait() <-chan struct{}
}

// Health answers GET /connect/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Game answers GET /connect/game.
func (h *Handler) Game(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.GameInfo)
}

// Schedule answers GET /connect/schedule with the tick timetable; it
// carries no exploit information, which the client alone is responsible
// for scheduling.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	totalTicks := 0
	if h.Clock.GameEndsAfter > 0 {
		totalTicks = int(h.Clock.GameEndsAfter / h.Clock.TickDuration)
	}

	writeJSON(w, http.StatusOK, wire.Schedule{
		FirstTickStart:  h.Clock.GameStartsAt,
		TickDuration:    h.Clock.TickDuration.Seconds(),
		NetworkOpenTick: int(h.Clock.NetworksOpenAfter / h.Clock.TickDuration),
		TotalTicks:      totalTicks,
		TZ:              h.Clock.GameStartsAt.Location().String(),
	})
}

// EnqueueFlags answers POST /flags/queue. Duplicate values (already known
// to the flag store) are silently discarded, per the wire contract.
func (h *Handler) EnqueueFlags(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())

	var req wire.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	result, err := h.Intake.Enqueue(r.Context(), principal.Name, req.Exploit, req.Target, req.Values)
	if err != nil {
		log.Warnf("httpapi: enqueue for %s failed: %v", principal.Name, err)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, wire.EnqueueResponse{Enqueued: len(result.Enqueued), Discarded: len(result.Discarded)})
}

// AttackDataCurrent answers GET /attack-data/current with whatever is
// currently cached, not waiting for a refresh in progress.
func (h *Handler) AttackDataCurrent(w http.ResponseWriter, r *http.Request) {
	var data wire.AttackData
	found, err := h.State.Get(r.Context(), "attack_data", &data)
	if err != nil {
		http.Error(w, "attack data unavailable", http.StatusInternalServerError)
		return
	}
	if !found {
		writeJSON(w, http.StatusAccepted, wire.AttackData{})
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// AttackDataSubscribe answers GET /attack-data/subscribe, long-polling
// until the refresher signals new data is ready or the request's context
// is canceled (the client disconnects or its own timeout fires).
func (h *Handler) AttackDataSubscribe(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.Ready.Wait():
	case <-r.Context().Done():
		return
	case <-time.After(30 * time.Second):
	}
	h.AttackDataCurrent(w, r)
}

// Metrics exposes the Prometheus default registry.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("httpapi: encode response failed: %v", err)
	}
}

// logWriter adapts pkg/log to io.Writer for gorilla/handlers'
// CombinedLoggingHandler.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Info(string(p))
	return len(p), nil
}
